/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"shadowcaster/internal/nodes"
	"shadowcaster/internal/pipeline"
	"shadowcaster/internal/shadow"
)

// Client is a minimal HTTP client for the node service.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-2xx response. It matches the compositor error sentinels by kind.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case shadow.ErrConfiguration:
		return e.Kind == "configuration"
	case shadow.ErrGeometry:
		return e.Kind == "geometry"
	case shadow.ErrResource:
		return e.Kind == "resource"
	case errUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Kind: eb.Kind, Message: eb.Error}
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Login exchanges the server secret for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, subject, secret string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", map[string]any{"subject": subject, "secret": secret}, &resp); err != nil {
		return err
	}
	c.Token = resp.Token
	return nil
}

// ListNodes returns the server's node descriptors.
func (c *Client) ListNodes(ctx context.Context) ([]nodes.Info, error) {
	var list []nodes.Info
	if err := c.doJSON(ctx, http.MethodGet, "/api/nodes", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Invoke runs a node remotely and returns its decoded outputs in order.
func (c *Client) Invoke(ctx context.Context, node string, params nodes.Params, inputs []image.Image) ([]*image.NRGBA, error) {
	req := InvokeRequest{Params: params}
	for i, img := range inputs {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode input %d: %w", i, err)
		}
		req.Images = append(req.Images, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	var resp InvokeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/nodes/"+url.PathEscape(node), req, &resp); err != nil {
		return nil, err
	}
	out := make([]*image.NRGBA, len(resp.Outputs))
	for i, o := range resp.Outputs {
		raw, err := base64.StdEncoding.DecodeString(o.PNG)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
		out[i] = imaging.Clone(img)
	}
	return out, nil
}

// Jobs lists recent jobs, newest first.
func (c *Client) Jobs(ctx context.Context, node string, limit int) ([]pipeline.Job, error) {
	q := url.Values{}
	if node != "" {
		q.Set("node", node)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list []pipeline.Job
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}
