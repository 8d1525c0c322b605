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
	"testing"
)

var red = color.NRGBA{R: 255, A: 255}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// triangle is symmetric about the vertical axis: row y covers |x - (w-1)/2| <= y/2.
func triangle(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	mid := float64(w-1) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - mid
			if dx < 0 {
				dx = -dx
			}
			if dx <= float64(y)/2 {
				img.SetNRGBA(x, y, red)
			}
		}
	}
	return img
}

// lShape is an L: a full-height left bar and a full-width bottom bar.
func lShape(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/3 || y >= 2*h/3 {
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
			}
		}
	}
	return img
}

func mustRender(t *testing.T, req Request) *Result {
	t.Helper()
	res, err := Render(req)
	if err != nil {
		t.Fatalf("Render(%s, %v): %v", req.Style, req.Direction, err)
	}
	return res
}

func brightness(c color.NRGBA) int { return int(c.R) + int(c.G) + int(c.B) }

func premul(c color.NRGBA) [4]int {
	a := int(c.A)
	return [4]int{int(c.R) * a / 255, int(c.G) * a / 255, int(c.B) * a / 255, a}
}
