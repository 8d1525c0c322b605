/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend serves the node registry over HTTP and keeps job history in Postgres.
package backend

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	applog "shadowcaster/internal/log"
	"shadowcaster/internal/nodes"
	"shadowcaster/internal/pipeline"
	"shadowcaster/internal/pixel"
	"shadowcaster/internal/shadow"
	"shadowcaster/internal/version"
)

const maxBodyBytes = 64 << 20

// Config holds server settings.
type Config struct {
	Addr     string // http bind address, e.g. ":8080"
	Secret   string // HMAC key for bearer tokens
	TokenTTL time.Duration
}

// Server exposes the runner's registry.
type Server struct {
	cfg    Config
	runner *pipeline.Runner
	jobs   *JobStore // nil when no database is configured
	secret string
	now    func() time.Time
	log    *slog.Logger
}

// NewServer wires a server. jobs may be nil.
func NewServer(cfg Config, runner *pipeline.Runner, jobs *JobStore) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	s := &Server{cfg: cfg, runner: runner, jobs: jobs, secret: cfg.Secret, now: time.Now, log: applog.WithComponent("backend")}
	if s.secret == "" {
		s.secret = "dev-secret-change-me"
		s.log.Warn("no server secret configured; using insecure dev secret")
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("GET /api/nodes", s.withAuth(s.handleListNodes))
	mux.HandleFunc("POST /api/nodes/{name}", s.withAuth(s.handleInvoke))
	mux.HandleFunc("POST /api/nodes/{name}/tensor", s.withAuth(s.handleInvokeTensor))
	mux.HandleFunc("GET /api/jobs", s.withAuth(s.handleJobs))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", slog.String("addr", s.cfg.Addr), slog.Bool("jobs_db", s.jobs != nil))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.jobs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.jobs.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// POST /api/auth/token {subject, secret, ttl_seconds} -> {token, expires_at}
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		Secret     string `json:"secret"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !hmac.Equal([]byte(req.Secret), []byte(s.secret)) {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("%w: wrong secret", errUnauthorized))
		return
	}
	if req.Subject == "" {
		req.Subject = "anonymous"
	}
	ttl := s.cfg.TokenTTL
	if req.TTLSeconds > 0 && time.Duration(req.TTLSeconds)*time.Second < ttl {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	exp := s.now().Add(ttl)
	tok, err := signToken(s.secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Registry().List())
}

// InvokeRequest carries parameters and base64 PNG inputs, one per node input.
type InvokeRequest struct {
	Params nodes.Params `json:"params"`
	Images []string     `json:"images"`
}

// InvokeOutput is one node output.
type InvokeOutput struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    string `json:"png"`
}

// InvokeResponse is the result of POST /api/nodes/{name}.
type InvokeResponse struct {
	Node    string         `json:"node"`
	Key     string         `json:"key"`
	Cached  bool           `json:"cached"`
	Outputs []InvokeOutput `json:"outputs"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req InvokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inputs := make([]image.Image, len(req.Images))
	for i, enc := range req.Images {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("image %d: %w", i, err))
			return
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("image %d: %w", i, err))
			return
		}
		inputs[i] = img
	}
	out, err := s.runner.Run(r.Context(), pipeline.Request{Node: name, Params: req.Params, Inputs: inputs})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := InvokeResponse{Node: name, Key: out.Key, Cached: out.Cached}
	for i, img := range out.Images {
		resp.Outputs = append(resp.Outputs, InvokeOutput{
			Name: outputName(out.Names, i), Width: img.Rect.Dx(), Height: img.Rect.Dy(),
			PNG: base64.StdEncoding.EncodeToString(out.PNG[i]),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TensorRequest carries parameters and one batch per node input. All batches share a length;
// the node runs once per batch index.
type TensorRequest struct {
	Params nodes.Params  `json:"params"`
	Inputs []pixel.Batch `json:"inputs"`
}

// TensorOutput is one node output across the batch.
type TensorOutput struct {
	Name  string      `json:"name"`
	Batch pixel.Batch `json:"batch"`
}

func (s *Server) handleInvokeTensor(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req TensorRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, normalized := 1, true
	batches := make([][]*image.NRGBA, len(req.Inputs))
	for i := range req.Inputs {
		imgs, err := req.Inputs[i].Images()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("input %d: %w", i, err))
			return
		}
		if i == 0 {
			n, normalized = len(imgs), req.Inputs[0].Items[0].Normalized
		} else if len(imgs) != n {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: input %d has batch size %d, want %d", pixel.ErrInvalidBuffer, i, len(imgs), n))
			return
		}
		batches[i] = imgs
	}
	var outs []TensorOutput
	for b := 0; b < n; b++ {
		inputs := make([]image.Image, len(batches))
		for i := range batches {
			inputs[i] = batches[i][b]
		}
		res, err := s.runner.Run(r.Context(), pipeline.Request{Node: name, Params: req.Params, Inputs: inputs})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if outs == nil {
			outs = make([]TensorOutput, len(res.Images))
			for i := range outs {
				outs[i].Name = outputName(res.Names, i)
			}
		}
		for i, img := range res.Images {
			buf, err := pixel.FromImage(img, outputChannels(outs[i].Name), normalized)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			outs[i].Batch.Items = append(outs[i].Batch.Items, *buf)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": name, "outputs": outs})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("job history needs a database"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.jobs.Recent(r.Context(), r.URL.Query().Get("node"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []pipeline.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func outputName(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return "output_" + strconv.Itoa(i)
}

// outputChannels returns 3 for the opaque variants nodes emit next to their RGBA output.
func outputChannels(name string) int {
	if strings.HasSuffix(name, "_3_channel") || strings.HasSuffix(name, "_rgb") {
		return 3
	}
	return 4
}

// statusFor maps compositor error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shadow.ErrConfiguration), errors.Is(err, pixel.ErrInvalidBuffer):
		return http.StatusBadRequest
	case errors.Is(err, shadow.ErrGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shadow.ErrResource):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]any{"error": err.Error()}
	if k := shadow.Kind(err); k != "" {
		body["kind"] = k
	}
	writeJSON(w, status, body)
}
