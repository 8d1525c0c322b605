/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	sheetPad     = 8
	labelHeight  = 16
	checkerBlock = 8
)

var (
	checkerLight = color.NRGBA{R: 235, G: 235, B: 235, A: 255}
	checkerDark  = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
	labelColor   = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
)

// ContactSheet lays images out on a grid of cols columns. Every cell is as large as the
// largest image, images sit centred on a checkerboard so transparency stays visible, and the
// matching label is printed under each cell.
func ContactSheet(images []image.Image, labels []string, cols int) (*image.NRGBA, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("contact sheet: no images")
	}
	if cols <= 0 {
		cols = 4
	}
	if cols > len(images) {
		cols = len(images)
	}
	cellW, cellH := 0, 0
	for i, img := range images {
		if img == nil {
			return nil, fmt.Errorf("contact sheet: image %d is nil", i)
		}
		b := img.Bounds()
		cellW = max(cellW, b.Dx())
		cellH = max(cellH, b.Dy())
	}
	face := basicfont.Face7x13
	for _, l := range labels {
		cellW = max(cellW, font.MeasureString(face, l).Ceil())
	}
	rows := (len(images) + cols - 1) / cols
	stepX, stepY := cellW+sheetPad, cellH+labelHeight+sheetPad
	sheet := imaging.New(cols*stepX+sheetPad, rows*stepY+sheetPad, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	for i, img := range images {
		x0 := sheetPad + (i%cols)*stepX
		y0 := sheetPad + (i/cols)*stepY
		checker(sheet, image.Rect(x0, y0, x0+cellW, y0+cellH))
		b := img.Bounds()
		pos := image.Pt(x0+(cellW-b.Dx())/2, y0+(cellH-b.Dy())/2)
		sheet = imaging.Overlay(sheet, img, pos, 1.0)
		if i < len(labels) {
			drawLabel(sheet, labels[i], x0, y0+cellH+labelHeight-4)
		}
	}
	return sheet, nil
}

func checker(dst *image.NRGBA, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := checkerLight
			if ((x-r.Min.X)/checkerBlock+(y-r.Min.Y)/checkerBlock)%2 == 1 {
				c = checkerDark
			}
			dst.SetNRGBA(x, y, c)
		}
	}
}

// drawLabel prints s with its baseline at y.
func drawLabel(dst *image.NRGBA, s string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
