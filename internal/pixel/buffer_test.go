/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pixel

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		b    Buffer
		ok   bool
	}{
		{"rgb", Buffer{Width: 2, Height: 1, Channels: 3, Data: make([]float32, 6)}, true},
		{"rgba", Buffer{Width: 1, Height: 2, Channels: 4, Data: make([]float32, 8)}, true},
		{"zero width", Buffer{Width: 0, Height: 1, Channels: 3}, false},
		{"two channels", Buffer{Width: 1, Height: 1, Channels: 2, Data: make([]float32, 2)}, false},
		{"short data", Buffer{Width: 2, Height: 2, Channels: 4, Data: make([]float32, 15)}, false},
	}
	for _, tc := range cases {
		err := tc.b.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: err = %v", tc.name, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidBuffer) {
			t.Errorf("%s: err does not wrap ErrInvalidBuffer", tc.name)
		}
	}
}

func TestToImageClipsAndFillsAlpha(t *testing.T) {
	b := Buffer{Width: 2, Height: 1, Channels: 3, Normalized: true, Data: []float32{1.2, 0.5, -0.1, 0, 1, 0.25}}
	img, err := b.ToImage()
	if err != nil {
		t.Fatal(err)
	}
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{255, 128, 0, 255}) {
		t.Fatalf("pixel 0 = %v", got)
	}
	if got := img.NRGBAAt(1, 0); got != (color.NRGBA{0, 255, 64, 255}) {
		t.Fatalf("pixel 1 = %v", got)
	}

	raw := Buffer{Width: 1, Height: 1, Channels: 4, Data: []float32{10, 300, 20.4, 128}}
	img, err = raw.ToImage()
	if err != nil {
		t.Fatal(err)
	}
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{10, 255, 20, 128}) {
		t.Fatalf("raw pixel = %v", got)
	}
}

func TestFromImageRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	src.SetNRGBA(2, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 77})

	b, err := FromImage(src, 4, true)
	if err != nil {
		t.Fatal(err)
	}
	back, err := b.ToImage()
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if back.NRGBAAt(x, y) != src.NRGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, back.NRGBAAt(x, y), src.NRGBAAt(x, y))
			}
		}
	}

	rgb, err := FromImage(src, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rgb.Data) != 18 || rgb.Data[(1*3+1)*3] != 200 {
		t.Fatalf("rgb samples = %v", rgb.Data)
	}
	if _, err := FromImage(src, 1, false); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("1 channel err = %v", err)
	}
}

func TestBatchShapes(t *testing.T) {
	a := Buffer{Width: 1, Height: 1, Channels: 3, Data: []float32{0, 0, 0}}
	b := Buffer{Width: 1, Height: 1, Channels: 4, Data: []float32{0, 0, 0, 0}}
	if err := (&Batch{}).Validate(); err == nil {
		t.Fatalf("empty batch should fail")
	}
	mixed := Batch{Items: []Buffer{a, b}}
	if err := mixed.Validate(); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("mixed batch err = %v", err)
	}
	single := Single(&a)
	imgs, err := single.Images()
	if err != nil || len(imgs) != 1 {
		t.Fatalf("Images() = %v, %v", imgs, err)
	}
}
