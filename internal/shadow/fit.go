/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shadow

import "image"

// Placement is the fitted canvas and where each layer lands on it.
type Placement struct {
	Canvas  image.Point // canvas size
	Subject image.Point // subject top-left
	Shadow  image.Point // shadow top-left
	// Offset is the signed shadow origin relative to the subject origin.
	Offset image.Point
	// ShadowSize is the transformed shadow layer's size.
	ShadowSize image.Point
}

// SubjectRect and ShadowRect are the layer rectangles on the canvas.
func (p Placement) SubjectRect(subject image.Point) image.Rectangle {
	return image.Rectangle{Min: p.Subject, Max: p.Subject.Add(subject)}
}

func (p Placement) ShadowRect() image.Rectangle {
	return image.Rectangle{Min: p.Shadow, Max: p.Shadow.Add(p.ShadowSize)}
}

// Fit computes the smallest canvas holding a subject of size subj at the origin and a shadow
// of size shd at offset, and the non-negative placement of each.
func Fit(subj, shd, offset image.Point) (Placement, error) {
	if subj.X <= 0 || subj.Y <= 0 {
		return Placement{}, &GeometryError{Op: "fit subject", Width: subj.X, Height: subj.Y}
	}
	if shd.X <= 0 || shd.Y <= 0 {
		return Placement{}, &GeometryError{Op: "fit shadow", Width: shd.X, Height: shd.Y}
	}
	minX, minY := min(0, offset.X), min(0, offset.Y)
	maxX, maxY := max(subj.X, offset.X+shd.X), max(subj.Y, offset.Y+shd.Y)
	return Placement{
		Canvas:     image.Pt(maxX-minX, maxY-minY),
		Subject:    image.Pt(-minX, -minY),
		Shadow:     image.Pt(offset.X-minX, offset.Y-minY),
		Offset:     offset,
		ShadowSize: shd,
	}, nil
}
