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
	"image/color"

	"github.com/disintegration/imaging"
)

// Silhouette is the output of Extract. None of its images share memory with the input.
type Silhouette struct {
	// Subject is the input converted to NRGBA with its origin at (0,0). Inputs without an
	// alpha channel come out fully opaque.
	Subject *image.NRGBA
	// Mask holds the subject's alpha; 0 is background.
	Mask *image.Alpha
	// Layer is the solid shadow colour with Mask as alpha, scaled by the colour's own alpha.
	Layer *image.NRGBA
}

// Extract isolates the subject's alpha mask and builds the solid-colour shadow layer.
func Extract(src image.Image, col color.NRGBA) (*Silhouette, error) {
	if src == nil {
		return nil, &GeometryError{Op: "extract"}
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &GeometryError{Op: "extract", Width: b.Dx(), Height: b.Dy()}
	}
	subj := imaging.Clone(src)
	w, h := subj.Rect.Dx(), subj.Rect.Dy()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	layer := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := y * subj.Stride
		mi := y * mask.Stride
		li := y * layer.Stride
		for x := 0; x < w; x++ {
			a := subj.Pix[si+x*4+3]
			mask.Pix[mi+x] = a
			p := layer.Pix[li+x*4 : li+x*4+4 : li+x*4+4]
			p[0], p[1], p[2] = col.R, col.G, col.B
			p[3] = uint8(uint16(a) * uint16(col.A) / 255)
		}
	}
	return &Silhouette{Subject: subj, Mask: mask, Layer: layer}, nil
}

// colorize builds a layer of solid col with alpha taken from mask.
func colorize(mask *image.Alpha, col color.NRGBA) *image.NRGBA {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := mask.Pix[y*mask.Stride+x]
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = col.R, col.G, col.B
			out.Pix[i+3] = uint8(uint16(a) * uint16(col.A) / 255)
		}
	}
	return out
}
