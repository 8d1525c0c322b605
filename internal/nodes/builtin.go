/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package nodes

import (
	"context"
	"image"

	"shadowcaster/internal/effects"
	"shadowcaster/internal/shadow"
)

const (
	categoryShadows = "image/shadows"
	categoryUtils   = "image/utils"
)

// Built-in node names.
const (
	NodeDropShadow        = "DropShadow"
	NodeAnchoredShadow    = "AnchoredShadow"
	NodePerfectShadow     = "PerfectShadow"
	NodeSpotlight         = "Spotlight"
	NodeDirectionalShadow = "DirectionalShadow"
	NodeAddPadding        = "AddPadding"
	NodeImageComposite    = "ImageComposite"
	NodeImageSelector     = "ImageSelector"
)

// Builtins returns a registry holding every built-in node.
func Builtins(env *Env) *Registry {
	r := NewRegistry(env)
	for _, d := range builtinDescriptors() {
		r.MustRegister(d)
	}
	return r
}

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name: NodeDropShadow, DisplayName: "Drop Shadow", Category: categoryShadows,
			Inputs: []string{"image"}, Outputs: []string{"image"},
			Schema: `{
  "type": "object",
  "properties": {
    "shadow_angle":    {"type": "integer", "minimum": 0, "maximum": 360, "default": 135},
    "shadow_distance": {"type": "integer", "minimum": 0, "maximum": 500, "default": 50},
    "shadow_blur":     {"type": "integer", "minimum": 0, "maximum": 200, "default": 20},
    "shadow_scale":    {"type": "number", "minimum": 0.1, "maximum": 5, "default": 1.5},
    "shadow_color":    {"type": "string", "default": "#000000"}
  },
  "additionalProperties": false
}`,
			Run: runDropShadow,
		},
		{
			Name: NodeAnchoredShadow, DisplayName: "Anchored Shadow", Category: categoryShadows,
			Inputs: []string{"image"}, Outputs: []string{"image"},
			Schema: `{
  "type": "object",
  "properties": {
    "cast_hour":       {"type": "integer", "minimum": 1, "maximum": 12, "default": 6},
    "shadow_distance": {"type": "integer", "minimum": 0, "maximum": 500, "default": 20},
    "shadow_blur":     {"type": "integer", "minimum": 0, "maximum": 200, "default": 15},
    "shadow_scale":    {"type": "number", "minimum": 0.1, "maximum": 5, "default": 1.0},
    "squash":          {"type": "number", "minimum": 0.05, "maximum": 1, "default": 0.5},
    "shadow_color":    {"type": "string", "default": "#000000"}
  },
  "additionalProperties": false
}`,
			Run: runAnchoredShadow,
		},
		{
			Name: NodePerfectShadow, DisplayName: "Perfect Shadow", Category: categoryShadows,
			Inputs: []string{"image"}, Outputs: []string{"image"},
			Schema: `{
  "type": "object",
  "properties": {
    "light_from":    {"type": "integer", "minimum": 1, "maximum": 12, "default": 12},
    "shadow_length": {"type": "number", "minimum": 0, "default": 2000},
    "shadow_blur":   {"type": "integer", "minimum": 0, "maximum": 200, "default": 10},
    "shrink":        {"type": "number", "minimum": -0.5, "maximum": 0.5, "default": 0},
    "shadow_color":  {"type": "string", "default": "#000000"}
  },
  "additionalProperties": false
}`,
			Run: runPerfectShadow,
		},
		{
			Name: NodeSpotlight, DisplayName: "Spotlight Shadow", Category: categoryShadows,
			Inputs: []string{"image"}, Outputs: []string{"image"},
			Schema: `{
  "type": "object",
  "properties": {
    "light_from":    {"type": "integer", "minimum": 1, "maximum": 12, "default": 12},
    "shadow_length": {"type": "number", "minimum": 1, "maximum": 10, "default": 5},
    "shadow_blur":   {"type": "integer", "minimum": 0, "maximum": 200, "default": 20},
    "shadow_color":  {"type": "string", "default": "#000000"}
  },
  "additionalProperties": false
}`,
			Run: runSpotlight,
		},
		{
			Name: NodeDirectionalShadow, DisplayName: "Directional Shadow", Category: categoryShadows,
			Inputs: []string{"image"}, Outputs: []string{"image"},
			Schema: `{
  "type": "object",
  "properties": {
    "style":     {"type": "string", "enum": ["simple-offset", "anchored-projection", "anchored-raymarch", "long-cast"], "default": "anchored-projection"},
    "direction": {"type": "number", "default": 135, "description": "degrees for degree tables, clock hour otherwise"},
    "distance":  {"type": "number", "minimum": 0, "maximum": 4096, "description": "not for long-cast"},
    "scale":     {"type": "number", "minimum": 0.05, "maximum": 5, "description": "not for long-cast; 1 when omitted"},
    "squash":    {"type": "number", "minimum": 0, "maximum": 1, "description": "anchored styles only"},
    "length":    {"type": "number", "minimum": 0, "description": "long-cast only; 100 when omitted"},
    "shrink":    {"type": "number", "minimum": -1, "maximum": 1, "description": "long-cast only"},
    "blur":      {"type": "number", "minimum": 0, "maximum": 200, "default": 0},
    "shadow_color": {"type": "string", "default": "#000000"}
  },
  "additionalProperties": false
}`,
			Run: runDirectional,
		},
		{
			Name: NodeAddPadding, DisplayName: "Add Padding", Category: categoryUtils,
			Inputs: []string{"image"}, Outputs: []string{"image_4_channel", "image_3_channel"},
			Schema: `{
  "type": "object",
  "properties": {
    "left":   {"type": "integer", "minimum": 0, "maximum": 4096, "default": 0},
    "top":    {"type": "integer", "minimum": 0, "maximum": 4096, "default": 0},
    "right":  {"type": "integer", "minimum": 0, "maximum": 4096, "default": 0},
    "bottom": {"type": "integer", "minimum": 0, "maximum": 4096, "default": 0}
  },
  "additionalProperties": false
}`,
			Run: runAddPadding,
		},
		{
			Name: NodeImageComposite, DisplayName: "Image Composite", Category: categoryUtils,
			Inputs: []string{"background_image", "subject_image"}, Outputs: []string{"composite", "composite_rgb"},
			Schema: `{
  "type": "object",
  "properties": {
    "spacing": {"type": "integer", "minimum": 0, "maximum": 50, "default": 10}
  },
  "additionalProperties": false
}`,
			Run: runImageComposite,
		},
		{
			Name: NodeImageSelector, DisplayName: "Image Selector", Category: categoryUtils,
			Outputs: []string{"image"},
			Schema: `{
  "type": "object",
  "properties": {
    "image": {"type": "string", "minLength": 1}
  },
  "required": ["image"],
  "additionalProperties": false
}`,
			Run:    runImageSelector,
			Source: imageSelectorSource,
		},
	}
}

func render(env *Env, req shadow.Request) ([]*image.NRGBA, error) {
	if req.Table == nil {
		req.Table = env.table(req.Style)
	}
	if env != nil {
		if req.MaxSteps == 0 {
			req.MaxSteps = env.MaxSteps
		}
		if req.MaxPixels == 0 {
			req.MaxPixels = env.MaxPixels
		}
	}
	res, err := shadow.Render(req)
	if err != nil {
		return nil, err
	}
	return []*image.NRGBA{res.Image}, nil
}

func runDropShadow(_ context.Context, env *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Angle    int     `json:"shadow_angle"`
		Distance int     `json:"shadow_distance"`
		Blur     int     `json:"shadow_blur"`
		Scale    float64 `json:"shadow_scale"`
		Color    string  `json:"shadow_color"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	return render(env, shadow.Request{
		Subject: in[0], Style: shadow.StyleAnchoredProjection, Direction: shadow.Degrees(float64(v.Angle)),
		Distance: float64(v.Distance), Blur: float64(v.Blur), Scale: v.Scale, Color: v.Color,
	})
}

func runAnchoredShadow(_ context.Context, env *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Hour     int     `json:"cast_hour"`
		Distance int     `json:"shadow_distance"`
		Blur     int     `json:"shadow_blur"`
		Scale    float64 `json:"shadow_scale"`
		Squash   float64 `json:"squash"`
		Color    string  `json:"shadow_color"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	return render(env, shadow.Request{
		Subject: in[0], Style: shadow.StyleAnchoredRaymarch, Direction: shadow.Hour(v.Hour),
		Distance: float64(v.Distance), Blur: float64(v.Blur), Scale: v.Scale, Squash: v.Squash, Color: v.Color,
	})
}

func runPerfectShadow(_ context.Context, env *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Light  int     `json:"light_from"`
		Length float64 `json:"shadow_length"`
		Blur   int     `json:"shadow_blur"`
		Shrink float64 `json:"shrink"`
		Color  string  `json:"shadow_color"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	return render(env, shadow.Request{
		Subject: in[0], Style: shadow.StyleLongCast, Direction: shadow.Hour(v.Light),
		Length: v.Length, Blur: float64(v.Blur), Shrink: v.Shrink, Color: v.Color,
	})
}

// runSpotlight derives scale and distance from one length knob: 5 is neutral, longer
// shadows grow and move away from the light, shorter ones shrink and move towards it.
func runSpotlight(_ context.Context, env *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Light  int     `json:"light_from"`
		Length float64 `json:"shadow_length"`
		Blur   int     `json:"shadow_blur"`
		Color  string  `json:"shadow_color"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	req := shadow.Request{
		Subject: in[0], Style: shadow.StyleSimpleOffset, Direction: shadow.Hour(v.Light),
		Distance: (v.Length - 5) * 20, Blur: float64(v.Blur), Scale: v.Length / 5, Color: v.Color,
	}
	if req.Distance < 0 {
		ct, ok := env.table(req.Style).(shadow.ClockTable)
		if !ok {
			return nil, &shadow.ConfigurationError{Field: "shadow_length", Value: v.Length, Reason: "table cannot be reversed"}
		}
		ct.Reverse = !ct.Reverse
		req.Table = ct
		req.Distance = -req.Distance
	}
	return render(env, req)
}

// styleUses reports whether style reads the directional parameter key. A style that would
// ignore a supplied parameter rejects it instead.
func styleUses(style shadow.Style, key string) bool {
	switch key {
	case "distance", "scale":
		return style != shadow.StyleLongCast
	case "squash":
		return style == shadow.StyleAnchoredProjection || style == shadow.StyleAnchoredRaymarch
	case "length", "shrink":
		return style == shadow.StyleLongCast
	}
	return true
}

const defaultDirectionalLength = 100

func runDirectional(_ context.Context, env *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Style     string   `json:"style"`
		Direction float64  `json:"direction"`
		Distance  float64  `json:"distance"`
		Length    *float64 `json:"length"`
		Blur      float64  `json:"blur"`
		Scale     float64  `json:"scale"`
		Squash    float64  `json:"squash"`
		Shrink    float64  `json:"shrink"`
		Color     string   `json:"shadow_color"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	style, err := shadow.ParseStyle(v.Style)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{"distance", "scale", "squash", "length", "shrink"} {
		if _, set := p[k]; set && !styleUses(style, k) {
			return nil, &shadow.ConfigurationError{Field: k, Value: p[k], Reason: "not used by style " + style.String()}
		}
	}
	length := float64(defaultDirectionalLength)
	if v.Length != nil {
		length = *v.Length
	}
	dir := shadow.Direction{Unit: shadow.UnitHour, Value: v.Direction}
	if _, degrees := env.table(style).(shadow.DegreeTable); degrees {
		dir.Unit = shadow.UnitDegrees
	}
	return render(env, shadow.Request{
		Subject: in[0], Style: style, Direction: dir,
		Distance: v.Distance, Length: length, Blur: v.Blur, Scale: v.Scale,
		Squash: v.Squash, Shrink: v.Shrink, Color: v.Color,
	})
}

func runAddPadding(_ context.Context, _ *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Left   int `json:"left"`
		Top    int `json:"top"`
		Right  int `json:"right"`
		Bottom int `json:"bottom"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	out, err := effects.Pad(in[0], v.Left, v.Top, v.Right, v.Bottom)
	if err != nil {
		return nil, err
	}
	return []*image.NRGBA{out, effects.Opaque(out)}, nil
}

func runImageComposite(_ context.Context, _ *Env, in []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Spacing int `json:"spacing"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	out, err := effects.CompositeFit(in[0], in[1], v.Spacing)
	if err != nil {
		return nil, err
	}
	return []*image.NRGBA{out, effects.Opaque(out)}, nil
}

// imageSelectorSource ties cached selections to the file's current size and mtime. Without a
// folder there is nothing to fingerprint; the run reports that.
func imageSelectorSource(env *Env, p Params) (string, error) {
	if env == nil || env.Images.Dir == "" {
		return "", nil
	}
	name, _ := p["image"].(string)
	return env.Images.Fingerprint(name)
}

func runImageSelector(_ context.Context, env *Env, _ []image.Image, p Params) ([]*image.NRGBA, error) {
	var v struct {
		Image string `json:"image"`
	}
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	if env == nil || env.Images.Dir == "" {
		return nil, &shadow.ConfigurationError{Field: "image", Value: v.Image, Reason: "no image folder configured"}
	}
	img, err := env.Images.Load(v.Image)
	if err != nil {
		return nil, err
	}
	return []*image.NRGBA{img}, nil
}
