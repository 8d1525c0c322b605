/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shadow

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every error returned by this package matches exactly one.
var (
	ErrConfiguration = errors.New("shadow: configuration error")
	ErrGeometry      = errors.New("shadow: geometry error")
	ErrResource      = errors.New("shadow: resource error")
)

// ConfigurationError reports an unusable parameter: a colour that does not parse, a
// direction outside its table, a negative blur radius.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("shadow: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// GeometryError reports a transform that would produce an empty or negative image.
type GeometryError struct {
	Op     string
	Width  int
	Height int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("shadow: %s would produce a %dx%d image", e.Op, e.Width, e.Height)
}

func (e *GeometryError) Is(target error) bool { return target == ErrGeometry }

// ResourceError reports a render beyond its bounds: a long-cast step count outside [1, Limit],
// or an image of more than Limit pixels.
type ResourceError struct {
	Resource  string // ResourcePixels, or empty for long-cast steps
	Requested int
	Limit     int
}

// ResourcePixels marks a ResourceError raised by the pixel bound.
const ResourcePixels = "pixels"

func (e *ResourceError) Error() string {
	if e.Resource == ResourcePixels {
		return fmt.Sprintf("shadow: image of %d pixels exceeds the limit of %d", e.Requested, e.Limit)
	}
	return fmt.Sprintf("shadow: long cast of %d steps outside allowed range 1..%d", e.Requested, e.Limit)
}

func (e *ResourceError) Is(target error) bool { return target == ErrResource }

func configErr(field string, value any, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// Kind names the error class of err for logs and job records: "configuration", "geometry",
// "resource", or "" when err is nil or foreign.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrGeometry):
		return "geometry"
	case errors.Is(err, ErrResource):
		return "resource"
	default:
		return ""
	}
}
