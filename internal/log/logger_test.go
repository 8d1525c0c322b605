/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lastJSONLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(b))
	var last string
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

func TestInitWritesRotatedJSONFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "render.json")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, MaxSizeMB: 1, Console: &console})
	t.Cleanup(func() { _ = Close() })

	l := WithOperation(WithComponent("shadow"), "render")
	l.Info("composited", slog.Int("width", 350), slog.String("style", "simple-offset"))

	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	m := lastJSONLine(t, b)
	if m["app"] != "shadowcaster" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "shadow" || m["op"] != "render" {
		t.Fatalf("context attrs mismatch: %v / %v", m["component"], m["op"])
	}
	if m["msg"] != "composited" || m["style"] != "simple-offset" {
		t.Fatalf("record mismatch: %v", m)
	}
	if w, _ := m["width"].(float64); w != 350 {
		t.Fatalf("width attr = %v", m["width"])
	}
	// console mirrors the file in json mode
	if !strings.Contains(console.String(), `"component":"shadow"`) {
		t.Fatalf("console output missing component: %q", console.String())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SHC_LOG_LEVEL", "debug")
	t.Setenv("SHC_LOG_FORMAT", "json")
	t.Setenv("SHC_LOG_SOURCE", "TRUE")
	t.Setenv("SHC_LOG_FILE", "/tmp/shc.log")
	o := FromEnv()
	if o.Level != "debug" || o.Format != "json" || !o.AddSource || o.File != "/tmp/shc.log" {
		t.Fatalf("unexpected options: %+v", o)
	}

	t.Setenv("SHC_LOG_LEVEL", "")
	t.Setenv("SHC_LOG_FORMAT", "")
	t.Setenv("SHC_LOG_SOURCE", "")
	t.Setenv("SHC_LOG_FILE", "")
	o = FromEnv()
	if o.Level != "info" || o.Format != "console" || o.AddSource || o.File != "" {
		t.Fatalf("defaults not applied: %+v", o)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyHandlerFormatsAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelDebug}, w: &buf}
	l := slog.New(h).With(slog.String("k", "v")).WithGroup("node")
	l.Error("bad parameter", slog.Int("n", 42), slog.Float64("angle", 13.5), slog.Bool("ok", false))

	out := buf.String()
	for _, want := range []string{" ERR ", "bad parameter", "k=v", "node.n=42", "node.angle=13.5", "node.ok=false"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("output should be newline terminated: %q", out)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(&prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf})
	l.Info("hidden")
	l.Debug("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "WRN shown") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestPrettyHandlerAddsSource(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(&prettyTextHandler{opts: prettyOpts{Level: slog.LevelInfo, AddSource: true}, w: &buf})
	l.Info("where")
	if out := buf.String(); !strings.Contains(out, " src=") || !strings.Contains(out, "logger_test.go:") {
		t.Fatalf("source missing: %q", out)
	}

	buf.Reset()
	slog.New(&prettyTextHandler{opts: prettyOpts{Level: slog.LevelInfo}, w: &buf}).Info("quiet")
	if strings.Contains(buf.String(), "src=") {
		t.Fatalf("source printed without AddSource: %q", buf.String())
	}
}
