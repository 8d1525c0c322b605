/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shadowcaster/internal/backend"
	"shadowcaster/internal/config"
	"shadowcaster/internal/effects"
	"shadowcaster/internal/export"
	applog "shadowcaster/internal/log"
	"shadowcaster/internal/nodes"
	"shadowcaster/internal/pipeline"
	"shadowcaster/internal/shadow"
	"shadowcaster/internal/storage"
)

// app bundles what the commands share. Fields are nil when the feature is off.
type app struct {
	cfg    config.AppConfig
	secret string
	env    *nodes.Env
	runner *pipeline.Runner
	cache  *storage.Cache
	jobs   *backend.JobStore
}

// buildEnv turns the render and tables sections into a node environment.
func buildEnv(cfg config.AppConfig) (*nodes.Env, error) {
	env := &nodes.Env{
		MaxSteps:      cfg.Render.MaxLongCastSteps,
		MaxPixels:     cfg.Render.MaxCanvasPixels,
		Tables:        map[shadow.Style]shadow.DirectionTable{},
		ParamDefaults: map[string]any{},
		Images:        effects.Selector{Dir: cfg.Render.ImageDir},
	}
	if c := strings.TrimSpace(cfg.Render.DefaultColor); c != "" {
		if _, err := shadow.ParseColor(c); err != nil {
			return nil, fmt.Errorf("render.default_color: %w", err)
		}
		env.ParamDefaults["shadow_color"] = c
	}
	if cfg.Render.DefaultSquash > 0 {
		env.ParamDefaults["squash"] = cfg.Render.DefaultSquash
	}
	for name, hours := range cfg.Tables {
		style, err := shadow.ParseStyle(name)
		if err != nil {
			return nil, fmt.Errorf("tables: %w", err)
		}
		t, err := shadow.OverrideTable(style, hours)
		if err != nil {
			return nil, fmt.Errorf("tables.%s: %w", name, err)
		}
		env.Tables[style] = t
	}
	return env, nil
}

// openApp loads the config and wires registry, cache and job store. withJobs connects to
// Postgres when a database URL is configured.
func openApp(ctx context.Context, withJobs bool) (*app, error) {
	l := applog.WithComponent("cli")
	cfg, secret, err := config.Load()
	if err != nil {
		return nil, err
	}
	env, err := buildEnv(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, secret: secret, env: env}

	var opts []pipeline.Option
	if cfg.Cache.Enabled {
		c, err := storage.OpenCache(cfg.Cache.Dir, cfg.Cache.MaxBytes)
		if err != nil {
			// rendering works without a cache
			l.Warn("render cache unavailable", slog.Any("err", err), slog.String("dir", cfg.Cache.Dir))
		} else {
			a.cache = c
			opts = append(opts, pipeline.WithCache(c))
		}
	}
	rec := backend.LogRecorder()
	if withJobs && cfg.Server.DatabaseURL != "" {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		js, err := backend.OpenJobStore(cctx, cfg.Server.DatabaseURL)
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open job store: %w", err)
		}
		a.jobs = js
		rec = js
	}
	opts = append(opts, pipeline.WithRecorder(rec))
	a.runner = pipeline.NewRunner(nodes.Builtins(env), opts...)
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.jobs != nil {
		_ = a.jobs.Close()
	}
}

// parseParams reads key=value pairs. Values that parse as JSON (numbers, booleans, quoted
// strings) keep their type; anything else is taken as a string.
func parseParams(args []string) (nodes.Params, error) {
	p := nodes.Params{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q: want key=value", a)
		}
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = v
		}
		p[k] = val
	}
	return p, nil
}

// sweepSteps returns the directions a sweep renders for style: 30 degree steps for degree
// tables, the twelve hours otherwise.
func sweepSteps(t shadow.DirectionTable) ([]float64, func(float64) string) {
	if _, ok := t.(shadow.DegreeTable); ok {
		steps := make([]float64, 12)
		for i := range steps {
			steps[i] = float64(i * 30)
		}
		return steps, func(s float64) string { return fmt.Sprintf("%g deg", s) }
	}
	hours := []float64{}
	if ct, ok := t.(shadow.ClockTable); ok {
		for _, h := range ct.Hours() {
			hours = append(hours, float64(h))
		}
	}
	if len(hours) == 0 {
		hours = export.ClockHours()
	}
	return hours, func(s float64) string { return fmt.Sprintf("%g o'clock", s) }
}
