/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package effects holds the non-directional image helpers: padding, opaque conversion,
// fit-to-background compositing and selecting source images from a folder.
package effects

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"shadowcaster/internal/shadow"
)

// Pad surrounds img with transparent margins.
func Pad(img image.Image, left, top, right, bottom int) (*image.NRGBA, error) {
	if left < 0 || top < 0 || right < 0 || bottom < 0 {
		return nil, &shadow.ConfigurationError{Field: "padding", Value: [4]int{left, top, right, bottom}, Reason: "margins must be >= 0"}
	}
	b := img.Bounds()
	w, h := b.Dx()+left+right, b.Dy()+top+bottom
	if w <= 0 || h <= 0 {
		return nil, &shadow.GeometryError{Op: "pad", Width: w, Height: h}
	}
	canvas := imaging.New(w, h, color.NRGBA{})
	return imaging.Paste(canvas, img, image.Pt(left, top)), nil
}

// Opaque drops alpha and keeps the stored colour channels, so transparent regions show
// whatever colour they carry (black for cleared pixels).
func Opaque(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}
	return out
}

// CompositeFit scales subject to the background width minus spacing on each side, keeping its
// aspect ratio, and pastes it over the background at (spacing, vertically centred).
func CompositeFit(background, subject image.Image, spacing int) (*image.NRGBA, error) {
	if spacing < 0 {
		return nil, &shadow.ConfigurationError{Field: "spacing", Value: spacing, Reason: "must be >= 0"}
	}
	bg := imaging.Clone(background)
	sb := subject.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return nil, &shadow.GeometryError{Op: "composite subject", Width: sb.Dx(), Height: sb.Dy()}
	}
	nw := bg.Rect.Dx() - 2*spacing
	nh := int(float64(nw) * float64(sb.Dy()) / float64(sb.Dx()))
	if nw <= 0 || nh <= 0 {
		return nil, &shadow.GeometryError{Op: "composite fit", Width: nw, Height: nh}
	}
	resized := imaging.Resize(subject, nw, nh, imaging.Lanczos)
	pos := image.Pt(spacing, (bg.Rect.Dy()-nh)/2)
	return imaging.Overlay(bg, resized, pos, 1.0), nil
}
