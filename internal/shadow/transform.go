/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shadow

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Layer is a shadow layer moving through the transformer. Every step returns a new Layer and
// leaves its input untouched.
type Layer struct {
	Image *image.NRGBA
	// Anchor is the silhouette anchor in layer pixels, remapped through scale and squash.
	// Placement uses it; flips do not move it.
	Anchor image.Point
	// Mirrored names the same silhouette pixel inside the flipped buffer; Render reports it
	// on the canvas as Result.ShadowAnchor.
	Mirrored image.Point
	FlipH    bool
	FlipV    bool
	// Origin is where the subject's top-left sits inside the layer (long-cast only).
	Origin image.Point
}

// NewLayer wraps a freshly extracted layer with its anchor.
func NewLayer(img *image.NRGBA, anchor image.Point) *Layer {
	return &Layer{Image: img, Anchor: anchor, Mirrored: anchor}
}

func (l *Layer) size() (int, int) { return l.Image.Rect.Dx(), l.Image.Rect.Dy() }

// center uses the pixel-centre convention so a w-pixel row is symmetric about (w-1)/2.
func center(w, h int) (float64, float64) {
	return float64(w-1) / 2, float64(h-1) / 2
}

func round(v float64) int { return int(math.Round(v)) }

// ScaleAboutCenter resizes the layer by s with a Lanczos filter and remaps the anchor so it
// keeps its position relative to the layer centre. s == 1 returns the layer unchanged.
func ScaleAboutCenter(l *Layer, s float64) (*Layer, error) {
	if s == 1 {
		cp := *l
		return &cp, nil
	}
	w, h := l.size()
	nw, nh := round(float64(w)*s), round(float64(h)*s)
	if math.IsNaN(s) || nw <= 0 || nh <= 0 {
		return nil, &GeometryError{Op: "scale", Width: nw, Height: nh}
	}
	img := imaging.Resize(l.Image, nw, nh, imaging.Lanczos)
	cx, cy := center(w, h)
	ncx, ncy := center(nw, nh)
	remap := func(p image.Point) image.Point {
		return clampPoint(image.Pt(
			round((float64(p.X)-cx)*s+ncx),
			round((float64(p.Y)-cy)*s+ncy),
		), nw, nh)
	}
	return &Layer{
		Image:    img,
		Anchor:   remap(l.Anchor),
		Mirrored: remap(l.Mirrored),
		FlipH:    l.FlipH,
		FlipV:    l.FlipV,
		Origin:   l.Origin,
	}, nil
}

// Mirror flips the layer for a cast at angleDeg (math convention): horizontally when the
// angle lies strictly between 90 and 270, vertically when strictly between 180 and 360.
func Mirror(l *Layer, angleDeg float64) *Layer {
	out := *l
	w, h := l.size()
	if angleDeg > 90 && angleDeg < 270 {
		out.Image = imaging.FlipH(out.Image)
		out.Mirrored.X = w - 1 - out.Mirrored.X
		out.FlipH = !out.FlipH
	}
	if angleDeg > 180 && angleDeg < 360 {
		out.Image = imaging.FlipV(out.Image)
		out.Mirrored.Y = h - 1 - out.Mirrored.Y
		out.FlipV = !out.FlipV
	}
	return &out
}

// Squash compresses the layer vertically by k in (0, 1] through an affine Catmull-Rom
// resample. Anchors keep their distance to the centre, scaled by k.
func Squash(l *Layer, k float64) (*Layer, error) {
	if math.IsNaN(k) || k <= 0 || k > 1 {
		return nil, configErr("squash", k, "factor must be in (0, 1]")
	}
	if k == 1 {
		cp := *l
		return &cp, nil
	}
	w, h := l.size()
	nh := round(float64(h) * k)
	if nh <= 0 {
		return nil, &GeometryError{Op: "squash", Width: w, Height: nh}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, nh))
	// src -> dst: x' = x, y' = k*y
	s2d := f64.Aff3{1, 0, 0, 0, k, 0}
	draw.CatmullRom.Transform(dst, s2d, l.Image, l.Image.Bounds(), draw.Src, nil)

	_, cy := center(w, h)
	_, ncy := center(w, nh)
	remapY := func(p image.Point) image.Point {
		return clampPoint(image.Pt(p.X, round((float64(p.Y)-cy)*k+ncy)), w, nh)
	}
	out := *l
	out.Image = imaging.Clone(dst)
	out.Anchor = remapY(l.Anchor)
	out.Mirrored = remapY(l.Mirrored)
	return &out, nil
}

// Shrink resizes one axis of a long-cast streak: the width by (1+s) when s < 0, the height by
// (1+s) when s > 0. The subject origin moves proportionally.
func Shrink(l *Layer, s float64) (*Layer, error) {
	if s == 0 {
		cp := *l
		return &cp, nil
	}
	w, h := l.size()
	nw, nh := w, h
	if s < 0 {
		nw = round(float64(w) * (1 + s))
	} else {
		nh = round(float64(h) * (1 + s))
	}
	if math.IsNaN(s) || nw <= 0 || nh <= 0 {
		return nil, &GeometryError{Op: "shrink", Width: nw, Height: nh}
	}
	out := *l
	out.Image = imaging.Resize(l.Image, nw, nh, imaging.Lanczos)
	sx, sy := float64(nw)/float64(w), float64(nh)/float64(h)
	out.Origin = image.Pt(round(float64(l.Origin.X)*sx), round(float64(l.Origin.Y)*sy))
	out.Anchor = clampPoint(image.Pt(round(float64(l.Anchor.X)*sx), round(float64(l.Anchor.Y)*sy)), nw, nh)
	out.Mirrored = out.Anchor
	return &out, nil
}

// Blur applies a Gaussian blur of the given radius. Radius 0 skips the filter.
func Blur(l *Layer, radius float64) (*Layer, error) {
	if math.IsNaN(radius) || radius < 0 || radius > MaxBlur {
		return nil, configErr("blur", radius, "radius must be in [0, 1000]")
	}
	out := *l
	if radius == 0 {
		return &out, nil
	}
	out.Image = imaging.Clone(blur.Gaussian(l.Image, radius))
	return &out, nil
}
