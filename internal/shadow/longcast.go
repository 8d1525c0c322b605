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
	"math"
)

// DefaultMaxSteps bounds long-cast accumulation when a request sets no limit.
const DefaultMaxSteps = 4096

// StepCount validates a long-cast length and returns its step count round(length).
// Counts below 1 or above maxSteps are ResourceErrors; maxSteps <= 0 means DefaultMaxSteps.
func StepCount(length float64, maxSteps int) (int, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if math.IsNaN(length) || math.IsInf(length, 0) {
		return 0, &ResourceError{Requested: -1, Limit: maxSteps}
	}
	if length > float64(math.MaxInt32) {
		return 0, &ResourceError{Requested: math.MaxInt32, Limit: maxSteps}
	}
	n := round(length)
	if n < 1 || n > maxSteps {
		return 0, &ResourceError{Requested: n, Limit: maxSteps}
	}
	return n, nil
}

type opaquePixel struct {
	x, y int
	a    uint8
}

// LongCast stacks the silhouette at every integer step 0..N along d onto one canvas, so the
// union forms a continuous streak, and colours it. N comes from StepCount and is checked before
// any allocation. The subject's own position (step 0) is returned as the layer Origin.
func LongCast(mask *image.Alpha, col color.NRGBA, d Vector, length float64, maxSteps int) (*Layer, error) {
	n, err := StepCount(length, maxSteps)
	if err != nil {
		return nil, err
	}
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	ex, ey := round(float64(n)*d.DX), round(float64(n)*d.DY)
	cw, ch := w+abs(ex), h+abs(ey)
	origin := image.Pt(max(0, -ex), max(0, -ey))

	var px []opaquePixel
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if a := mask.Pix[y*mask.Stride+x]; a > 0 {
				px = append(px, opaquePixel{x, y, a})
			}
		}
	}

	acc := image.NewAlpha(image.Rect(0, 0, cw, ch))
	for i := 0; i <= n; i++ {
		sx := origin.X + round(float64(i)*d.DX)
		sy := origin.Y + round(float64(i)*d.DY)
		for _, p := range px {
			j := (sy+p.y)*acc.Stride + sx + p.x
			dst := uint32(acc.Pix[j])
			src := uint32(p.a)
			acc.Pix[j] = uint8(src + dst*(255-src)/255)
		}
	}

	l := NewLayer(colorize(acc, col), origin.Add(image.Pt(w/2, h/2)))
	l.Origin = origin
	return l, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
