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
)

// geometricCenter is the integer centre (w/2, h/2) used as the anchor fallback.
func geometricCenter(m *image.Alpha) image.Point {
	return image.Pt(m.Rect.Dx()/2, m.Rect.Dy()/2)
}

// LocateMaxProjection returns the opaque pixel whose projection x*dx + y*dy is largest. Ties
// resolve to the first pixel in row-major order. An empty mask yields the centre.
//
// For concave silhouettes the winner is a convex-hull extreme and need not sit on the edge
// that actually faces d.
func LocateMaxProjection(m *image.Alpha, d Vector) image.Point {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	best := math.Inf(-1)
	var at image.Point
	found := false
	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		for x, a := range row {
			if a == 0 {
				continue
			}
			if p := float64(x)*d.DX + float64(y)*d.DY; p > best {
				best, at, found = p, image.Pt(x, y), true
			}
		}
	}
	if !found {
		return geometricCenter(m)
	}
	return at
}

// LocateRayMarch walks from the centre towards the light (against d) one pixel per step, for at
// most 1.5*max(w/2, h/2) steps, and returns the last sample still inside the silhouette. A
// transparent centre, or a ray that never leaves the silhouette, yields the centre.
func LocateRayMarch(m *image.Alpha, d Vector) image.Point {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	c := geometricCenter(m)
	if m.Pix[c.Y*m.Stride+c.X] == 0 {
		return c
	}
	steps := int(1.5 * float64(max(w/2, h/2)))
	last := c
	for i := 1; i <= steps; i++ {
		x := c.X + int(math.Round(-d.DX*float64(i)))
		y := c.Y + int(math.Round(-d.DY*float64(i)))
		if x < 0 || y < 0 || x >= w || y >= h || m.Pix[y*m.Stride+x] == 0 {
			return last
		}
		last = image.Pt(x, y)
	}
	return c
}

func clampPoint(p image.Point, w, h int) image.Point {
	return image.Pt(min(max(p.X, 0), w-1), min(max(p.Y, 0), h-1))
}
