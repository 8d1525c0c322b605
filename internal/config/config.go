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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides applied at load time.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Render        RenderConfig  `yaml:"render"`
	Tables        TablesConfig  `yaml:"tables,omitempty"`
	Cache         CacheConfig   `yaml:"cache"`
	Server        ServerConfig  `yaml:"server"`
	Logging       LoggingConfig `yaml:"logging"`
}

type RenderConfig struct {
	MaxLongCastSteps int     `yaml:"max_long_cast_steps"`
	MaxCanvasPixels  int     `yaml:"max_canvas_pixels"`
	DefaultColor     string  `yaml:"default_color"`
	DefaultSquash    float64 `yaml:"default_squash"`
	ImageDir         string  `yaml:"image_dir"` // source directory of the image selector node
}

// TablesConfig overrides clock tables per style name: style -> hour -> degrees.
// Styles without an entry keep their built-in table.
type TablesConfig map[string]map[int]float64

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	TokenTTLMin int    `yaml:"token_ttl_minutes"`
	// The signing secret is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Render:        RenderConfig{MaxLongCastSteps: 4096, MaxCanvasPixels: 1 << 26, DefaultColor: "#000000", DefaultSquash: 0.5},
		Cache:         CacheConfig{Enabled: true, MaxBytes: 256 << 20},
		Server:        ServerConfig{Addr: ":8080", TokenTTLMin: 60},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvMaxSteps     = "SHC_MAX_LONG_CAST_STEPS"
	EnvMaxPixels    = "SHC_MAX_CANVAS_PIXELS"
	EnvImageDir     = "SHC_IMAGE_DIR"
	EnvCacheEnabled = "SHC_CACHE_ENABLED"
	EnvCacheDir     = "SHC_CACHE_DIR"
	EnvCacheMax     = "SHC_CACHE_MAX_BYTES"
	EnvServerAddr   = "SHC_SERVER_ADDR"
	EnvDatabaseURL  = "SHC_DATABASE_URL"
	EnvServerSecret = "SHC_SERVER_SECRET"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SHC_LOG_LEVEL"
	EnvLogFormat = "SHC_LOG_FORMAT"
	EnvLogSource = "SHC_LOG_SOURCE"
	EnvLogFile   = "SHC_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "shadowcaster"
	keyringSecret  = "server_secret"
)

// TokenStore abstracts the OS keyring so tests can swap in a map.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the secret store and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	old := tokenStore
	tokenStore = ts
	return old
}

// osKeyring implements TokenStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error   { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error       { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. SHC_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("SHC_CONFIG")); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Shadowcaster")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Shadowcaster")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "shadowcaster")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DefaultCacheDir is used when cache.dir is empty.
func DefaultCacheDir() string {
	if d, err := os.UserCacheDir(); err == nil && d != "" {
		return filepath.Join(d, "shadowcaster")
	}
	return filepath.Join(os.TempDir(), "shadowcaster-cache")
}

// Load reads the user config file (if present), applies defaults and merges environment
// overrides. The server signing secret comes from SHC_SERVER_SECRET or the keyring and is
// returned separately. A malformed file is an error; a missing one is not.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = DefaultCacheDir()
	}
	secret := strings.TrimSpace(os.Getenv(EnvServerSecret))
	if secret == "" {
		secret, _ = tokenStore.Get(keyringService, keyringSecret)
	}
	return cfg, secret, nil
}

// Save writes the user config YAML and persists the secret into the OS keyring (if non-empty).
func Save(cfg AppConfig, secret string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if secret != "" {
		if err := tokenStore.Set(keyringService, keyringSecret, secret); err != nil {
			return fmt.Errorf("store server secret: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.Render.MaxLongCastSteps > 0 {
		dst.Render.MaxLongCastSteps = src.Render.MaxLongCastSteps
	}
	if src.Render.MaxCanvasPixels > 0 {
		dst.Render.MaxCanvasPixels = src.Render.MaxCanvasPixels
	}
	if strings.TrimSpace(src.Render.DefaultColor) != "" {
		dst.Render.DefaultColor = strings.TrimSpace(src.Render.DefaultColor)
	}
	if src.Render.DefaultSquash > 0 {
		dst.Render.DefaultSquash = src.Render.DefaultSquash
	}
	if src.Render.ImageDir != "" {
		dst.Render.ImageDir = src.Render.ImageDir
	}
	if len(src.Tables) > 0 {
		dst.Tables = TablesConfig{}
		for style, hours := range src.Tables {
			dst.Tables[strings.ToLower(strings.TrimSpace(style))] = hours
		}
	}
	// booleans copy straight from the file so user preferences persist
	dst.Cache.Enabled = src.Cache.Enabled
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Cache.MaxBytes > 0 {
		dst.Cache.MaxBytes = src.Cache.MaxBytes
	}
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.DatabaseURL != "" {
		dst.Server.DatabaseURL = src.Server.DatabaseURL
	}
	if src.Server.TokenTTLMin > 0 {
		dst.Server.TokenTTLMin = src.Server.TokenTTLMin
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvMaxSteps)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Render.MaxLongCastSteps = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxPixels)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Render.MaxCanvasPixels = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvImageDir)); v != "" {
		cfg.Render.ImageDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheEnabled)); v != "" {
		cfg.Cache.Enabled = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		cfg.Cache.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheMax)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Server.DatabaseURL = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"render.max_long_cast_steps": EnvMaxSteps,
	"render.max_canvas_pixels":   EnvMaxPixels,
	"render.image_dir":           EnvImageDir,
	"cache.enabled":              EnvCacheEnabled,
	"cache.dir":                  EnvCacheDir,
	"cache.max_bytes":            EnvCacheMax,
	"server.addr":                EnvServerAddr,
	"server.database_url":        EnvDatabaseURL,
	"logging.level":              EnvLogLevel,
	"logging.format":             EnvLogFormat,
	"logging.source":             EnvLogSource,
	"logging.file":               EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
