/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package effects

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"shadowcaster/internal/shadow"
)

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

func TestPad(t *testing.T) {
	src := fill(4, 3, color.NRGBA{R: 255, A: 255})
	out, err := Pad(src, 1, 2, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if out.Rect.Size() != image.Pt(8, 9) {
		t.Fatalf("size = %v", out.Rect.Size())
	}
	if out.NRGBAAt(0, 0).A != 0 || out.NRGBAAt(1, 2) != (color.NRGBA{R: 255, A: 255}) || out.NRGBAAt(5, 5).A != 0 {
		t.Fatalf("padding misplaced")
	}
	if _, err := Pad(src, -1, 0, 0, 0); !errors.Is(err, shadow.ErrConfiguration) {
		t.Fatalf("negative margin err = %v", err)
	}
}

func TestOpaqueKeepsColour(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 40})
	out := Opaque(src)
	if out.NRGBAAt(0, 0) != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) || out.NRGBAAt(1, 0) != (color.NRGBA{A: 255}) {
		t.Fatalf("opaque pixels = %v %v", out.NRGBAAt(0, 0), out.NRGBAAt(1, 0))
	}
	if src.NRGBAAt(0, 0).A != 40 {
		t.Fatalf("Opaque mutated its input")
	}
}

func TestCompositeFit(t *testing.T) {
	bg := fill(100, 80, color.NRGBA{B: 255, A: 255})
	subj := fill(40, 20, color.NRGBA{R: 255, A: 255})
	out, err := CompositeFit(bg, subj, 10)
	if err != nil {
		t.Fatal(err)
	}
	if out.Rect.Size() != image.Pt(100, 80) {
		t.Fatalf("size = %v", out.Rect.Size())
	}
	// subject becomes 80x40 at (10, 20)
	if p := out.NRGBAAt(50, 40); p.R < 250 || p.B > 5 {
		t.Fatalf("centre should be subject, got %v", p)
	}
	if p := out.NRGBAAt(5, 40); p != (color.NRGBA{B: 255, A: 255}) {
		t.Fatalf("spacing should show background, got %v", p)
	}
	if p := out.NRGBAAt(50, 10); p != (color.NRGBA{B: 255, A: 255}) {
		t.Fatalf("above the subject should show background, got %v", p)
	}
	if _, err := CompositeFit(bg, subj, 50); !errors.Is(err, shadow.ErrGeometry) {
		t.Fatalf("spacing without room err = %v", err)
	}
}

func TestSelector(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.SetNRGBA(1, 1, color.NRGBA{G: 200, A: 100})
	for _, name := range []string{"b.png", "a.PNG"} {
		if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	s := Selector{Dir: dir}
	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"a.PNG", "b.png"}) {
		t.Fatalf("names = %v", names)
	}
	got, err := s.Load("b.png")
	if err != nil {
		t.Fatal(err)
	}
	if p := got.NRGBAAt(1, 1); p.A != 255 || p.G != 200 {
		t.Fatalf("loaded pixel = %v", p)
	}
	for _, bad := range []string{"", "../b.png", ".hidden.png", "notes.txt"} {
		if _, err := s.Load(bad); !errors.Is(err, shadow.ErrConfiguration) {
			t.Errorf("Load(%q) err = %v", bad, err)
		}
	}
	if _, err := s.Load("missing.png"); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestSelectorFingerprintFollowsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	if err := imaging.Save(fill(2, 2, color.NRGBA{A: 255}), path); err != nil {
		t.Fatal(err)
	}
	s := Selector{Dir: dir}
	before, err := s.Fingerprint("a.png")
	if err != nil {
		t.Fatal(err)
	}
	if same, _ := s.Fingerprint("a.png"); same != before {
		t.Fatalf("fingerprint unstable: %q vs %q", same, before)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if after, _ := s.Fingerprint("a.png"); after == before {
		t.Fatalf("touched file kept fingerprint %q", after)
	}
	if _, err := s.Fingerprint("../a.png"); !errors.Is(err, shadow.ErrConfiguration) {
		t.Fatalf("escaping name err = %v", err)
	}
	if _, err := s.Fingerprint("missing.png"); err == nil {
		t.Fatalf("missing file should fail")
	}
}
