/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type memStore map[string]string

func (m memStore) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}
func (m memStore) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memStore) Delete(service, key string) error     { delete(m, service+"/"+key); return nil }

// isolate points the config path into a temp dir and stubs the keyring.
func isolate(t *testing.T) (string, memStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("SHC_CONFIG", path)
	t.Setenv(EnvServerSecret, "")
	store := memStore{}
	old := SetTokenStore(store)
	t.Cleanup(func() { SetTokenStore(old) })
	return path, store
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, secret, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if secret != "" {
		t.Fatalf("expected empty secret, got %q", secret)
	}
	if cfg.Render.MaxLongCastSteps != 4096 || cfg.Render.DefaultColor != "#000000" {
		t.Fatalf("render defaults not applied: %#v", cfg.Render)
	}
	if !cfg.Cache.Enabled || cfg.Cache.MaxBytes != 256<<20 || cfg.Cache.Dir == "" {
		t.Fatalf("cache defaults not applied: %#v", cfg.Cache)
	}
}

func TestSaveAndLoadRoundTripsFileAndSecret(t *testing.T) {
	_, store := isolate(t)
	cfg := Defaults()
	cfg.Render.MaxLongCastSteps = 1000
	cfg.Tables = TablesConfig{"long-cast": {12: 90}}
	cfg.Server.DatabaseURL = "postgres://localhost/shadow"
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if store["shadowcaster/server_secret"] != "s3cret" {
		t.Fatalf("secret not stored in keyring: %v", store)
	}
	got, secret, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if secret != "s3cret" {
		t.Fatalf("secret = %q", secret)
	}
	if got.Render.MaxLongCastSteps != 1000 || got.Server.DatabaseURL != "postgres://localhost/shadow" {
		t.Fatalf("file values lost: %#v", got)
	}
	if got.Tables["long-cast"][12] != 90 {
		t.Fatalf("table override lost: %#v", got.Tables)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("render: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvMaxSteps, "250")
	t.Setenv(EnvMaxPixels, "1000000")
	t.Setenv(EnvCacheEnabled, "off")
	t.Setenv(EnvCacheMax, "1024")
	t.Setenv(EnvDatabaseURL, "postgres://db/x")
	t.Setenv(EnvServerSecret, "from-env")
	t.Setenv(EnvLogLevel, "ERROR")
	t.Setenv(EnvLogSource, "1")
	cfg, secret, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Render.MaxLongCastSteps != 250 || cfg.Render.MaxCanvasPixels != 1000000 || cfg.Cache.Enabled || cfg.Cache.MaxBytes != 1024 {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	if cfg.Server.DatabaseURL != "postgres://db/x" || secret != "from-env" {
		t.Fatalf("server overrides not applied: %#v %q", cfg.Server, secret)
	}
	if cfg.Logging.Level != "error" || !cfg.Logging.Source {
		t.Fatalf("logging overrides not applied: %#v", cfg.Logging)
	}
}

func TestInvalidNumericEnvIgnored(t *testing.T) {
	isolate(t)
	t.Setenv(EnvMaxSteps, "lots")
	t.Setenv(EnvMaxPixels, "-5")
	cfg, _, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Render.MaxCanvasPixels != 1<<26 {
		t.Fatalf("negative pixel limit should keep default, got %d", cfg.Render.MaxCanvasPixels)
	}
	if cfg.Render.MaxLongCastSteps != 4096 {
		t.Fatalf("invalid env should keep default, got %d", cfg.Render.MaxLongCastSteps)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = " DEBUG "
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/var/log/shc.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/var/log/shc.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverrideFor(t *testing.T) {
	t.Setenv(EnvCacheDir, "/tmp/x")
	t.Setenv(EnvServerAddr, "")
	if env, ok := EnvOverrideFor("cache.dir"); !ok || env != EnvCacheDir {
		t.Fatalf("cache.dir override not reported: %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("server.addr"); ok {
		t.Fatalf("unset env must not report an override")
	}
	if _, ok := EnvOverrideFor("no.such.key"); ok {
		t.Fatalf("unknown key must not report an override")
	}
}
