/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package shadow composites synthetic directional shadows behind cut-out subjects.
//
// A render runs EXTRACT (alpha mask and solid shadow layer), TRANSFORM (anchor, scale,
// mirror, squash or long-cast, shrink, blur) and COMPOSITE (fit a canvas, paste shadow, paste
// subject). Each call works on fresh buffers, so renders of different images may run in
// parallel without locking.
package shadow

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	applog "shadowcaster/internal/log"
)

// Request describes one render.
type Request struct {
	Subject   image.Image
	Style     Style
	Direction Direction
	// Table resolves Direction; nil selects DefaultTable(Style).
	Table DirectionTable

	Distance float64 // pixels along the cast direction, >= 0
	Length   float64 // long-cast streak length in steps
	Blur     float64 // Gaussian radius, >= 0
	Scale    float64 // shadow scale about its centre; 0 means 1
	Squash   float64 // vertical factor in (0, 1] for anchored styles; 0 means none
	Shrink   float64 // long-cast axis resize, see Shrink
	Color    string  // see ParseColor; "" is black
	MaxSteps int     // long-cast bound; 0 means DefaultMaxSteps
	// MaxPixels bounds every layer and the output canvas; 0 means DefaultMaxPixels.
	MaxPixels int
}

const (
	// DefaultMaxPixels is the pixel bound when a request sets none (64 Mpx, 256 MiB as NRGBA).
	DefaultMaxPixels = 1 << 26
	// MaxBlur is the largest accepted blur radius.
	MaxBlur = 1000
	// maxOffset bounds the shadow offset on either axis before it is rounded to int.
	maxOffset = 1 << 30
)

func (r *Request) maxPixels() int {
	if r.MaxPixels > 0 {
		return r.MaxPixels
	}
	return DefaultMaxPixels
}

// checkPixels returns a ResourceError when a w x h image would exceed limit. w and h are
// floats so oversized products are caught before they reach an int.
func checkPixels(w, h float64, limit int) error {
	if area := w * h; area > float64(limit) {
		req := math.MaxInt
		if area < float64(math.MaxInt) {
			req = int(area)
		}
		return &ResourceError{Resource: ResourcePixels, Requested: req, Limit: limit}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Result is a finished composite.
type Result struct {
	Image     *image.NRGBA
	Placement Placement
	// Anchor is the silhouette anchor on the subject's mask.
	Anchor image.Point
	// ShadowAnchor is where the anchor's silhouette pixel landed on the canvas, after the
	// shadow layer was scaled, mirrored and squashed.
	ShadowAnchor image.Point
	Direction    Vector
	Style        Style
}

type state int

const (
	stateExtract state = iota
	stateTransform
	stateComposite
)

func (s state) String() string {
	return [...]string{"extract", "transform", "composite"}[s]
}

func (r *Request) validate() error {
	if r.Style < StyleSimpleOffset || r.Style > StyleLongCast {
		return configErr("style", int(r.Style), "unknown style")
	}
	if !finite(r.Distance) || r.Distance < 0 {
		return configErr("distance", r.Distance, "must be finite and >= 0")
	}
	if r.Distance > maxOffset {
		return configErr("distance", r.Distance, fmt.Sprintf("must be <= %d", maxOffset))
	}
	if !finite(r.Blur) || r.Blur < 0 || r.Blur > MaxBlur {
		return configErr("blur", r.Blur, fmt.Sprintf("radius must be in [0, %d]", MaxBlur))
	}
	if !finite(r.Scale) {
		return configErr("scale", r.Scale, "must be finite")
	}
	if !finite(r.Shrink) {
		return configErr("shrink", r.Shrink, "must be finite")
	}
	if r.Squash != 0 && (math.IsNaN(r.Squash) || r.Squash < 0 || r.Squash > 1) {
		return configErr("squash", r.Squash, "factor must be in (0, 1]")
	}
	return nil
}

// Render runs the compositor. Failures abort before later states run and return one of
// ConfigurationError, GeometryError or ResourceError.
func Render(req Request) (*Result, error) {
	l := applog.WithOperation(applog.WithComponent("shadow"), "render")
	if err := req.validate(); err != nil {
		return nil, err
	}
	col, err := ParseColor(req.Color)
	if err != nil {
		return nil, err
	}
	table := req.Table
	if table == nil {
		table = DefaultTable(req.Style)
	}
	dir, err := table.Resolve(req.Direction)
	if err != nil {
		return nil, err
	}

	st := stateExtract
	l.Debug("state", slog.String("state", st.String()), slog.String("style", req.Style.String()), slog.String("table", table.Name()))
	sil, err := Extract(req.Subject, col)
	if err != nil {
		return nil, err
	}
	subjSize := sil.Subject.Rect.Size()

	st = stateTransform
	l.Debug("state", slog.String("state", st.String()), slog.Float64("dx", dir.DX), slog.Float64("dy", dir.DY))
	layer, anchor, offset, err := transform(&req, sil, dir, col)
	if err != nil {
		return nil, err
	}

	st = stateComposite
	pl, err := Fit(subjSize, layer.Image.Rect.Size(), offset)
	if err != nil {
		return nil, err
	}
	l.Debug("state", slog.String("state", st.String()),
		slog.Int("width", pl.Canvas.X), slog.Int("height", pl.Canvas.Y),
		slog.Int("offset_x", offset.X), slog.Int("offset_y", offset.Y))
	if err := checkPixels(float64(pl.Canvas.X), float64(pl.Canvas.Y), req.maxPixels()); err != nil {
		return nil, err
	}
	out := composite(pl, layer.Image, sil.Subject)
	return &Result{
		Image: out, Placement: pl, Anchor: anchor, ShadowAnchor: pl.Shadow.Add(layer.Mirrored),
		Direction: dir, Style: req.Style,
	}, nil
}

// transform returns the finished shadow layer, the subject anchor and the shadow offset from
// the subject's top-left.
func transform(req *Request, sil *Silhouette, d Vector, col color.NRGBA) (*Layer, image.Point, image.Point, error) {
	W, H := sil.Subject.Rect.Dx(), sil.Subject.Rect.Dy()
	cx, cy := center(W, H)
	limit := req.maxPixels()

	if req.Style == StyleLongCast {
		n, err := StepCount(req.Length, req.MaxSteps)
		if err != nil {
			return nil, image.Point{}, image.Point{}, err
		}
		sw := float64(W) + math.Abs(math.Round(float64(n)*d.DX))
		sh := float64(H) + math.Abs(math.Round(float64(n)*d.DY))
		if err := checkPixels(sw, sh, limit); err != nil {
			return nil, image.Point{}, image.Point{}, err
		}
		layer, err := LongCast(sil.Mask, col, d, req.Length, req.MaxSteps)
		if err != nil {
			return nil, image.Point{}, image.Point{}, err
		}
		if req.Shrink > 0 {
			sh *= 1 + req.Shrink
		}
		if err := checkPixels(sw, sh, limit); err != nil {
			return nil, image.Point{}, image.Point{}, err
		}
		if layer, err = Shrink(layer, req.Shrink); err != nil {
			return nil, image.Point{}, image.Point{}, err
		}
		if layer, err = Blur(layer, req.Blur); err != nil {
			return nil, image.Point{}, image.Point{}, err
		}
		return layer, geometricCenter(sil.Mask), layer.Origin.Mul(-1), nil
	}

	var anchor image.Point
	switch req.Style {
	case StyleAnchoredProjection:
		anchor = LocateMaxProjection(sil.Mask, d)
	case StyleAnchoredRaymarch:
		anchor = LocateRayMarch(sil.Mask, d)
	default:
		anchor = geometricCenter(sil.Mask)
	}
	layer := NewLayer(sil.Layer, anchor)

	scale := req.Scale
	if scale == 0 {
		scale = 1
	}
	if err := checkPixels(float64(W)*scale, float64(H)*scale, limit); err != nil {
		return nil, image.Point{}, image.Point{}, err
	}
	layer, err := ScaleAboutCenter(layer, scale)
	if err != nil {
		return nil, image.Point{}, image.Point{}, err
	}
	anchored := req.Style == StyleAnchoredProjection || req.Style == StyleAnchoredRaymarch
	if anchored {
		layer = Mirror(layer, d.Angle())
		if req.Squash != 0 {
			if layer, err = Squash(layer, req.Squash); err != nil {
				return nil, image.Point{}, image.Point{}, err
			}
		}
	}
	if layer, err = Blur(layer, req.Blur); err != nil {
		return nil, image.Point{}, image.Point{}, err
	}

	w, h := layer.size()
	tcx, tcy := center(w, h)
	// The shadow centre sits distance along d from the subject centre, pushed further out by
	// the anchor's reach along the cast axis.
	reach := 0.0
	if anchored {
		reach = math.Abs((float64(layer.Anchor.X)-tcx)*d.DX + (float64(layer.Anchor.Y)-tcy)*d.DY)
	}
	along := req.Distance + reach
	ox, oy := cx-tcx+along*d.DX, cy-tcy+along*d.DY
	if math.Abs(ox) > maxOffset || math.Abs(oy) > maxOffset {
		return nil, image.Point{}, image.Point{}, configErr("distance", req.Distance, "shadow offset out of range")
	}
	return layer, anchor, image.Pt(round(ox), round(oy)), nil
}

// composite pastes the shadow, then the subject, onto a transparent canvas.
func composite(pl Placement, shd, subj *image.NRGBA) *image.NRGBA {
	canvas := imaging.New(pl.Canvas.X, pl.Canvas.Y, color.NRGBA{})
	canvas = imaging.Overlay(canvas, shd, pl.Shadow, 1.0)
	return imaging.Overlay(canvas, subj, pl.Subject, 1.0)
}

// String renders a short summary used in logs and job records.
func (r *Result) String() string {
	return fmt.Sprintf("%s %dx%d subject@%v shadow@%v", r.Style, r.Placement.Canvas.X, r.Placement.Canvas.Y, r.Placement.Subject, r.Placement.Shadow)
}
