/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pipeline runs nodes with a content-addressed render cache and job history.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	applog "shadowcaster/internal/log"
	"shadowcaster/internal/nodes"
	"shadowcaster/internal/shadow"
)

// Cache stores encoded node outputs by content key.
type Cache interface {
	Get(ctx context.Context, key string) ([][]byte, bool, error)
	Put(ctx context.Context, key, node string, outputs [][]byte) error
}

// Job is one finished invocation.
type Job struct {
	ID        int64          `json:"id"`
	Node      string         `json:"node"`
	Key       string         `json:"key"`
	Params    map[string]any `json:"params"`
	Outputs   int            `json:"outputs"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Cached    bool           `json:"cached"`
	Duration  time.Duration  `json:"duration_ns"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder keeps job history.
type Recorder interface {
	Record(ctx context.Context, j Job) error
}

// Request names a node, its parameters and its input images.
type Request struct {
	Node   string
	Params nodes.Params
	Inputs []image.Image
}

// Output holds decoded images and their PNG encoding, in node output order.
type Output struct {
	Key    string
	Names  []string
	Images []*image.NRGBA
	PNG    [][]byte
	Cached bool
}

// Runner is safe for concurrent use. Identical requests running at the same time share one
// render.
type Runner struct {
	reg   *nodes.Registry
	cache Cache
	rec   Recorder
	group singleflight.Group
	now   func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithCache enables the render cache.
func WithCache(c Cache) Option { return func(r *Runner) { r.cache = c } }

// WithRecorder records every job.
func WithRecorder(rec Recorder) Option { return func(r *Runner) { r.rec = rec } }

// NewRunner returns a runner over reg.
func NewRunner(reg *nodes.Registry, opts ...Option) *Runner {
	r := &Runner{reg: reg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the node registry the runner invokes.
func (r *Runner) Registry() *nodes.Registry { return r.reg }

// Run resolves parameters, serves a cached result when one exists, and otherwise invokes
// the node and caches its PNG outputs.
func (r *Runner) Run(ctx context.Context, req Request) (*Output, error) {
	start := r.now()
	l := applog.WithOperation(applog.WithComponent("pipeline"), "run").With(slog.String("node", req.Node))
	job := Job{Node: req.Node, Params: req.Params, CreatedAt: start.UTC()}

	out, err := r.run(ctx, req, &job)
	job.Duration = r.now().Sub(start)
	if err != nil {
		job.ErrorKind = shadow.Kind(err)
		job.Error = err.Error()
		l.Warn("run failed", slog.String("kind", job.ErrorKind), slog.Any("err", err))
	} else {
		job.Cached = out.Cached
		job.Outputs = len(out.Images)
		if len(out.Images) > 0 {
			job.Width, job.Height = out.Images[0].Rect.Dx(), out.Images[0].Rect.Dy()
		}
		l.Info("run done", slog.String("key", out.Key[:12]), slog.Bool("cached", out.Cached), slog.Duration("took", job.Duration))
	}
	if r.rec != nil {
		if rerr := r.rec.Record(context.WithoutCancel(ctx), job); rerr != nil {
			l.Warn("record job failed", slog.Any("err", rerr))
		}
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, req Request, job *Job) (*Output, error) {
	d, params, err := r.reg.Resolve(req.Node, req.Params)
	if err != nil {
		return nil, err
	}
	job.Params = params
	if len(req.Inputs) != len(d.Inputs) {
		return nil, &shadow.ConfigurationError{Field: "inputs", Value: len(req.Inputs), Reason: fmt.Sprintf("node %s takes %d image(s)", req.Node, len(d.Inputs))}
	}
	src, err := r.reg.SourceKey(d, params)
	if err != nil {
		return nil, err
	}
	key, err := ContentKey(req.Node, params, req.Inputs, src)
	if err != nil {
		return nil, err
	}
	job.Key = key

	if r.cache != nil {
		blobs, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			applog.WithComponent("pipeline").Warn("cache get failed", slog.Any("err", err))
		} else if ok {
			imgs, err := decodeAll(blobs)
			if err == nil {
				return &Output{Key: key, Names: d.Outputs, Images: imgs, PNG: blobs, Cached: true}, nil
			}
			applog.WithComponent("pipeline").Warn("cached render unreadable", slog.Any("err", err))
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		imgs, err := r.reg.Invoke(ctx, req.Node, req.Inputs, params)
		if err != nil {
			return nil, err
		}
		blobs, err := encodeAll(imgs)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.Put(ctx, key, req.Node, blobs); err != nil {
				applog.WithComponent("pipeline").Warn("cache put failed", slog.Any("err", err))
			}
		}
		return &Output{Key: key, Names: d.Outputs, Images: imgs, PNG: blobs}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Output), nil
}

// ContentKey hashes the node name, the JSON encoding of params (map keys sorted), every
// input's size and NRGBA pixels, and any source fingerprints (see nodes.Descriptor.Source).
func ContentKey(node string, params map[string]any, inputs []image.Image, sources ...string) (string, error) {
	h := sha256.New()
	h.Write([]byte(node))
	h.Write([]byte{0})
	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("content key: %w", err)
	}
	h.Write(p)
	for _, in := range inputs {
		if in == nil {
			h.Write([]byte{0})
			continue
		}
		img := imaging.Clone(in)
		var dims [8]byte
		binary.BigEndian.PutUint32(dims[:4], uint32(img.Rect.Dx()))
		binary.BigEndian.PutUint32(dims[4:], uint32(img.Rect.Dy()))
		h.Write(dims[:])
		h.Write(img.Pix)
	}
	for _, src := range sources {
		if src == "" {
			continue
		}
		h.Write([]byte{0})
		h.Write([]byte(src))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func encodeAll(imgs []*image.NRGBA) ([][]byte, error) {
	out := make([][]byte, len(imgs))
	for i, img := range imgs {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode output %d: %w", i, err)
		}
		out[i] = buf.Bytes()
	}
	return out, nil
}

func decodeAll(blobs [][]byte) ([]*image.NRGBA, error) {
	out := make([]*image.NRGBA, len(blobs))
	for i, b := range blobs {
		img, err := imaging.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("decode output %d: %w", i, err)
		}
		out[i] = imaging.Clone(img)
	}
	return out, nil
}
