/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RenderFunc renders one direction step.
type RenderFunc func(ctx context.Context, step float64) (*image.NRGBA, error)

// Frame is one rendered step of a sweep.
type Frame struct {
	Step  float64
	Label string
	Image *image.NRGBA
}

// DirectionSweep renders every step concurrently and returns the frames in step order. The
// first failure cancels the remaining renders.
func DirectionSweep(ctx context.Context, render RenderFunc, steps []float64, label func(float64) string) ([]Frame, error) {
	if label == nil {
		label = func(s float64) string { return fmt.Sprintf("%g", s) }
	}
	frames := make([]Frame, len(steps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range steps {
		g.Go(func() error {
			img, err := render(ctx, s)
			if err != nil {
				return fmt.Errorf("step %s: %w", label(s), err)
			}
			frames[i] = Frame{Step: s, Label: label(s), Image: img}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// ClockHours returns the steps 1..12.
func ClockHours() []float64 {
	hs := make([]float64, 12)
	for i := range hs {
		hs[i] = float64(i + 1)
	}
	return hs
}

// Images returns the frame images and labels, ready for ContactSheet or ProofSheetPDF.
func Images(frames []Frame) ([]image.Image, []string) {
	imgs := make([]image.Image, len(frames))
	labels := make([]string, len(frames))
	for i, f := range frames {
		imgs[i] = f.Image
		labels[i] = f.Label
	}
	return imgs, labels
}
