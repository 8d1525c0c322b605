/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pixel converts between host-side float sample buffers and Go images.
package pixel

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var ErrInvalidBuffer = errors.New("pixel: invalid buffer")

// Buffer is a row-major height x width x channels grid of samples. Channels is 3 (opaque RGB)
// or 4 (RGBA). Normalized buffers carry samples in [0,1], others in [0,255]; values outside
// the range are clipped on conversion.
type Buffer struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Channels   int       `json:"channels"`
	Normalized bool      `json:"normalized"`
	Data       []float32 `json:"data"`
}

// Validate checks the shape against the sample count.
func (b *Buffer) Validate() error {
	if b.Width < 1 || b.Height < 1 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if b.Channels != 3 && b.Channels != 4 {
		return fmt.Errorf("%w: %d channels", ErrInvalidBuffer, b.Channels)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Data) != want {
		return fmt.Errorf("%w: %d samples for %dx%dx%d", ErrInvalidBuffer, len(b.Data), b.Width, b.Height, b.Channels)
	}
	return nil
}

func (b *Buffer) scale() float64 {
	if b.Normalized {
		return 255
	}
	return 1
}

func toByte(v float32, scale float64) uint8 {
	f := float64(v) * scale
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(math.Round(f))
}

// ToImage clips samples to the display range and returns an NRGBA image. RGB buffers come
// out fully opaque.
func (b *Buffer) ToImage() (*image.NRGBA, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	s := b.scale()
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			src := (y*b.Width + x) * b.Channels
			dst := y*img.Stride + x*4
			img.Pix[dst] = toByte(b.Data[src], s)
			img.Pix[dst+1] = toByte(b.Data[src+1], s)
			img.Pix[dst+2] = toByte(b.Data[src+2], s)
			if b.Channels == 4 {
				img.Pix[dst+3] = toByte(b.Data[src+3], s)
			} else {
				img.Pix[dst+3] = 255
			}
		}
	}
	return img, nil
}

// FromImage samples img into a buffer with the given channel count. Dropping to 3 channels
// keeps the colour channels and discards alpha, like an RGB conversion.
func FromImage(img image.Image, channels int, normalized bool) (*Buffer, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidBuffer, channels)
	}
	n := imaging.Clone(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidBuffer, w, h)
	}
	b := &Buffer{Width: w, Height: h, Channels: channels, Normalized: normalized, Data: make([]float32, w*h*channels)}
	div := float32(1)
	if normalized {
		div = 255
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := y*n.Stride + x*4
			dst := (y*w + x) * channels
			for c := 0; c < channels; c++ {
				b.Data[dst+c] = float32(n.Pix[src+c]) / div
			}
		}
	}
	return b, nil
}

// Batch is a stack of equally sized buffers, the way hosts pass images around.
type Batch struct {
	Items []Buffer `json:"items"`
}

// Validate checks every item and that all share one shape.
func (bt *Batch) Validate() error {
	if len(bt.Items) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidBuffer)
	}
	first := bt.Items[0]
	for i := range bt.Items {
		it := &bt.Items[i]
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if it.Width != first.Width || it.Height != first.Height || it.Channels != first.Channels {
			return fmt.Errorf("%w: item %d is %dx%dx%d, batch is %dx%dx%d", ErrInvalidBuffer, i,
				it.Width, it.Height, it.Channels, first.Width, first.Height, first.Channels)
		}
	}
	return nil
}

// Images converts every item.
func (bt *Batch) Images() ([]*image.NRGBA, error) {
	if err := bt.Validate(); err != nil {
		return nil, err
	}
	out := make([]*image.NRGBA, len(bt.Items))
	for i := range bt.Items {
		img, err := bt.Items[i].ToImage()
		if err != nil {
			return nil, err
		}
		out[i] = img
	}
	return out, nil
}

// Single wraps one buffer in a batch.
func Single(b *Buffer) Batch { return Batch{Items: []Buffer{*b}} }
