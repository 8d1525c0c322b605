/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package nodes describes the operations a host can call: each node has a name, image inputs
// and outputs, a JSON Schema for its parameters and an entry point. The registry fills in
// schema defaults, validates parameters and runs the entry point.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"shadowcaster/internal/effects"
	applog "shadowcaster/internal/log"
	"shadowcaster/internal/shadow"
)

// Params are the decoded JSON parameters of one invocation.
type Params map[string]any

// Decode copies p into a typed parameter struct through its json tags.
func (p Params) Decode(v any) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Func is a node entry point. inputs has one image per declared input, in order.
type Func func(ctx context.Context, env *Env, inputs []image.Image, p Params) ([]*image.NRGBA, error)

// Descriptor is what a host needs to present and call a node.
type Descriptor struct {
	Name        string
	DisplayName string
	Category    string
	Inputs      []string
	Outputs     []string
	// Schema is a JSON Schema object for the parameters. Property defaults and ranges are
	// presentation metadata; the compositor validates independently.
	Schema string
	Run    Func
	// Source fingerprints state the node reads besides its inputs and params, such as files
	// on disk. Nil for pure nodes.
	Source func(env *Env, p Params) (string, error)

	compiled *gojsonschema.Schema
	defaults map[string]any
}

// Info is the JSON view of a descriptor.
type Info struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Category    string          `json:"category"`
	Inputs      []string        `json:"inputs"`
	Outputs     []string        `json:"outputs"`
	Schema      json.RawMessage `json:"schema"`
}

// Env carries render settings shared by all invocations.
type Env struct {
	// Tables replaces a style's default direction table.
	Tables   map[shadow.Style]shadow.DirectionTable
	MaxSteps int
	// MaxPixels bounds layer and canvas sizes; 0 means shadow.DefaultMaxPixels.
	MaxPixels int
	// ParamDefaults win over schema defaults for parameters the caller leaves out.
	ParamDefaults map[string]any
	Images        effects.Selector
}

func (e *Env) table(s shadow.Style) shadow.DirectionTable {
	if e != nil {
		if t, ok := e.Tables[s]; ok && t != nil {
			return t
		}
	}
	return shadow.DefaultTable(s)
}

// Registry holds descriptors by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Descriptor
	env   *Env
}

// NewRegistry returns an empty registry bound to env (nil means built-in defaults).
func NewRegistry(env *Env) *Registry {
	if env == nil {
		env = &Env{}
	}
	return &Registry{nodes: map[string]*Descriptor{}, env: env}
}

// Register compiles the descriptor's schema and adds it. Names must be unique.
func (r *Registry) Register(d Descriptor) error {
	if strings.TrimSpace(d.Name) == "" || d.Run == nil {
		return fmt.Errorf("register node: name and entry point are required")
	}
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(d.Schema))
	if err != nil {
		return fmt.Errorf("register node %s: compile schema: %w", d.Name, err)
	}
	var doc struct {
		Properties map[string]struct {
			Default any `json:"default"`
		} `json:"properties"`
	}
	if err := json.Unmarshal([]byte(d.Schema), &doc); err != nil {
		return fmt.Errorf("register node %s: read schema: %w", d.Name, err)
	}
	d.compiled = sch
	d.defaults = map[string]any{}
	for k, p := range doc.Properties {
		if p.Default != nil {
			d.defaults[k] = p.Default
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.nodes[d.Name]; dup {
		return fmt.Errorf("register node %s: already registered", d.Name)
	}
	r.nodes[d.Name] = &d
	return nil
}

// MustRegister panics on error; used for the built-in set.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns a registered descriptor.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.nodes[name]
	return d, ok
}

// List returns descriptor infos ordered by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.nodes))
	for _, d := range r.nodes {
		out = append(out, Info{
			Name: d.Name, DisplayName: d.DisplayName, Category: d.Category,
			Inputs: d.Inputs, Outputs: d.Outputs, Schema: json.RawMessage(d.Schema),
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns a copy of params with defaults filled in, validated against the node schema.
// Violations are shadow.ConfigurationErrors.
func (r *Registry) Resolve(name string, params Params) (*Descriptor, Params, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, nil, &shadow.ConfigurationError{Field: "node", Value: name, Reason: "not registered"}
	}
	full := Params{}
	for k, v := range d.defaults {
		full[k] = v
	}
	for k, v := range r.env.ParamDefaults {
		if _, known := d.defaults[k]; known {
			full[k] = v
		}
	}
	for k, v := range params {
		full[k] = v
	}
	res, err := d.compiled.Validate(gojsonschema.NewGoLoader(map[string]any(full)))
	if err != nil {
		return nil, nil, &shadow.ConfigurationError{Field: "parameters", Value: name, Reason: err.Error()}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		sort.Strings(msgs)
		return nil, nil, &shadow.ConfigurationError{Field: "parameters", Value: name, Reason: strings.Join(msgs, "; ")}
	}
	return d, full, nil
}

// SourceKey returns d's fingerprint of external state for resolved params p, or "" when the
// node reads none.
func (r *Registry) SourceKey(d *Descriptor, p Params) (string, error) {
	if d.Source == nil {
		return "", nil
	}
	return d.Source(r.env, p)
}

// Invoke resolves params and runs the node.
func (r *Registry) Invoke(ctx context.Context, name string, inputs []image.Image, params Params) ([]*image.NRGBA, error) {
	d, full, err := r.Resolve(name, params)
	if err != nil {
		return nil, err
	}
	if len(inputs) != len(d.Inputs) {
		return nil, &shadow.ConfigurationError{Field: "inputs", Value: len(inputs), Reason: fmt.Sprintf("node %s takes %d image(s)", name, len(d.Inputs))}
	}
	for i, in := range inputs {
		if in == nil {
			return nil, &shadow.ConfigurationError{Field: "inputs", Value: d.Inputs[i], Reason: "missing image"}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := applog.WithOperation(applog.WithComponent("nodes"), "invoke")
	l.Debug("invoke", slog.String("node", name), slog.Any("params", map[string]any(full)))
	out, err := d.Run(ctx, r.env, inputs, full)
	if err != nil {
		l.Warn("node failed", slog.String("node", name), slog.String("kind", shadow.Kind(err)), slog.Any("err", err))
		return nil, err
	}
	return out, nil
}
