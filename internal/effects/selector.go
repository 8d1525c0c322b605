/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package effects

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"shadowcaster/internal/shadow"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true}

// Selector serves source images from one folder.
type Selector struct {
	Dir string
}

// List returns the image file names in the folder, sorted.
func (s Selector) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", s.Dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load opens one listed image and returns it as opaque RGB. Names that would leave the folder
// are rejected.
func (s Selector) Load(name string) (*image.NRGBA, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return Opaque(img), nil
}

// Fingerprint identifies the current content of a listed image by name, size and modification
// time, so a replaced file yields a new value.
func (s Selector) Fingerprint(name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	return fmt.Sprintf("%s:%d:%d", name, fi.Size(), fi.ModTime().UnixNano()), nil
}

func (s Selector) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", &shadow.ConfigurationError{Field: "image", Value: name, Reason: "not a file in the image folder"}
	}
	if !imageExts[strings.ToLower(filepath.Ext(name))] {
		return "", &shadow.ConfigurationError{Field: "image", Value: name, Reason: "unsupported image type"}
	}
	return filepath.Join(s.Dir, name), nil
}
