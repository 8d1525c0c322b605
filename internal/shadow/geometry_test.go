/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shadow

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func TestTablesResolve(t *testing.T) {
	cases := []struct {
		table DirectionTable
		dir   Direction
		want  Vector
	}{
		{DropShadowDegrees(), Degrees(0), Vector{1, 0}},
		{DropShadowDegrees(), Degrees(90), Vector{0, -1}},
		{DropShadowDegrees(), Degrees(270), Vector{0, 1}},
		{ClockFace(), Hour(12), Vector{0, -1}},
		{ClockFace(), Hour(3), Vector{1, 0}},
		{ClockFace(), Hour(6), Vector{0, 1}},
		{ClockFace(), Hour(9), Vector{-1, 0}},
		{SpotlightClock(), Hour(12), Vector{-1, 0}},
		{SpotlightClock(), Hour(6), Vector{1, 0}},
		{LongShadowClock(), Hour(6), Vector{1, 0}},
		{LongShadowClock(), Hour(9), Vector{0, 1}},
		{LongShadowClock(), Hour(12), Vector{-1, 0}},
	}
	for _, tc := range cases {
		got, err := tc.table.Resolve(tc.dir)
		if err != nil {
			t.Fatalf("%s %v: %v", tc.table.Name(), tc.dir, err)
		}
		if math.Abs(got.DX-tc.want.DX) > 1e-12 || math.Abs(got.DY-tc.want.DY) > 1e-12 {
			t.Errorf("%s %v = %+v, want %+v", tc.table.Name(), tc.dir, got, tc.want)
		}
	}
}

func TestTablesRejectUnknownValues(t *testing.T) {
	bad := []struct {
		table DirectionTable
		dir   Direction
	}{
		{ClockFace(), Hour(0)},
		{ClockFace(), Hour(13)},
		{ClockFace(), Direction{Unit: UnitHour, Value: 2.5}},
		{ClockFace(), Degrees(90)},
		{DropShadowDegrees(), Degrees(-1)},
		{DropShadowDegrees(), Degrees(360.5)},
		{DropShadowDegrees(), Degrees(math.NaN())},
		{DropShadowDegrees(), Hour(3)},
	}
	for _, tc := range bad {
		_, err := tc.table.Resolve(tc.dir)
		var ce *ConfigurationError
		if !errors.As(err, &ce) || !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s %v: err = %v, want ConfigurationError", tc.table.Name(), tc.dir, err)
		}
	}
}

func TestOverrideTable(t *testing.T) {
	if _, err := OverrideTable(StyleAnchoredProjection, map[int]float64{1: 10}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("degree styles cannot take clock overrides, got %v", err)
	}
	if _, err := OverrideTable(StyleSimpleOffset, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("empty override must fail, got %v", err)
	}
	angles := map[int]float64{3: 0}
	tbl, err := OverrideTable(StyleSimpleOffset, angles)
	if err != nil {
		t.Fatal(err)
	}
	angles[3] = 90 // the table keeps its own copy
	v, err := tbl.Resolve(Hour(3))
	if err != nil {
		t.Fatal(err)
	}
	// spotlight reverses: light at 0° casts to 180°
	if v != (Vector{DX: -1, DY: 0}) {
		t.Fatalf("override resolved to %+v", v)
	}
	if hs := tbl.(ClockTable).Hours(); len(hs) != 1 || hs[0] != 3 {
		t.Fatalf("hours = %v", hs)
	}
}

func TestParseStyleRoundTrip(t *testing.T) {
	for _, s := range Styles() {
		got, err := ParseStyle(" " + s.String() + " ")
		if err != nil || got != s {
			t.Fatalf("ParseStyle(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStyle("soft"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("unknown style err = %v", err)
	}
}

func TestVectorAngle(t *testing.T) {
	for _, deg := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		v, _ := DropShadowDegrees().Resolve(Degrees(deg))
		if got := v.Angle(); math.Abs(got-deg) > 1e-9 {
			t.Errorf("angle of %v° vector = %v", deg, got)
		}
	}
}

func TestParseColor(t *testing.T) {
	good := map[string]color.NRGBA{
		"":            {0, 0, 0, 255},
		"#000000":     {0, 0, 0, 255},
		"#fff":        {255, 255, 255, 255},
		"#FF8000":     {255, 128, 0, 255},
		"#11223344":   {0x11, 0x22, 0x33, 0x44},
		"10, 20 ,30":  {10, 20, 30, 255},
		"Navy":        {0, 0, 128, 255},
		"  #abcdef  ": {0xab, 0xcd, 0xef, 255},
	}
	for in, want := range good {
		got, err := ParseColor(in)
		if err != nil || got != want {
			t.Errorf("ParseColor(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"#12345", "#ggg", "#+12345", "1,2", "1,2,300", "a,b,c", "chartreuse-ish", "000000"} {
		if _, err := ParseColor(in); !errors.Is(err, ErrConfiguration) {
			t.Errorf("ParseColor(%q) err = %v, want configuration error", in, err)
		}
	}
}

func TestExtractIsIdempotentAndOpaqueForRGB(t *testing.T) {
	subj := lShape(20, 16)
	a, err := Extract(subj, color.NRGBA{A: 255})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract(subj, color.NRGBA{A: 255})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Mask.Pix, b.Mask.Pix) || !bytes.Equal(a.Layer.Pix, b.Layer.Pix) {
		t.Fatalf("extracting twice gave different results")
	}
	if a.Mask.AlphaAt(0, 0).A != 255 || a.Mask.AlphaAt(19, 0).A != 0 {
		t.Fatalf("mask does not follow subject alpha")
	}

	gray := image.NewGray(image.Rect(5, 5, 15, 12))
	g, err := Extract(gray, color.NRGBA{R: 9, A: 128})
	if err != nil {
		t.Fatal(err)
	}
	if g.Mask.Rect != image.Rect(0, 0, 10, 7) {
		t.Fatalf("mask rect = %v, want origin-based 10x7", g.Mask.Rect)
	}
	for _, v := range g.Mask.Pix {
		if v != 255 {
			t.Fatalf("RGB input must extract as fully opaque")
		}
	}
	if p := g.Layer.NRGBAAt(3, 3); p != (color.NRGBA{R: 9, A: 128}) {
		t.Fatalf("layer pixel = %v", p)
	}
}

func alphaFrom(img *image.NRGBA) *image.Alpha {
	sil, _ := Extract(img, color.NRGBA{A: 255})
	return sil.Mask
}

func TestLocateMaxProjection(t *testing.T) {
	sq := alphaFrom(solid(10, 8, red))
	if p := LocateMaxProjection(sq, Vector{1, 0}); p != image.Pt(9, 0) {
		t.Fatalf("rightmost tie should pick first row, got %v", p)
	}
	if p := LocateMaxProjection(sq, Vector{0, 1}); p != image.Pt(0, 7) {
		t.Fatalf("bottom tie should pick first column, got %v", p)
	}
	if p := LocateMaxProjection(sq, Vector{-math.Sqrt2 / 2, -math.Sqrt2 / 2}); p != image.Pt(0, 0) {
		t.Fatalf("up-left corner expected, got %v", p)
	}
	// concave L: the up-right extreme is the foot's top-right corner, far from the upright bar
	l := alphaFrom(lShape(30, 30))
	if p := LocateMaxProjection(l, Vector{0.8, -0.6}); p != image.Pt(29, 20) {
		t.Fatalf("L up-right extreme = %v", p)
	}
	empty := image.NewAlpha(image.Rect(0, 0, 9, 5))
	if p := LocateMaxProjection(empty, Vector{1, 0}); p != image.Pt(4, 2) {
		t.Fatalf("empty mask should fall back to centre, got %v", p)
	}
}

func TestLocateRayMarch(t *testing.T) {
	sq := alphaFrom(solid(21, 21, red))
	// casting down means the light is above: the ray climbs to the top edge
	if p := LocateRayMarch(sq, Vector{0, 1}); p != image.Pt(10, 0) {
		t.Fatalf("ray towards light = %v, want (10,0)", p)
	}
	if p := LocateRayMarch(sq, Vector{-1, 0}); p != image.Pt(20, 10) {
		t.Fatalf("ray towards light = %v, want (20,10)", p)
	}
	ring := image.NewAlpha(image.Rect(0, 0, 21, 21))
	for y := 0; y < 21; y++ {
		for x := 0; x < 21; x++ {
			if x < 3 || y < 3 || x > 17 || y > 17 {
				ring.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	if p := LocateRayMarch(ring, Vector{0, 1}); p != image.Pt(10, 10) {
		t.Fatalf("transparent centre should fall back to centre, got %v", p)
	}
	if p := LocateRayMarch(sq, Vector{}); p != image.Pt(10, 10) {
		t.Fatalf("a ray that never leaves should fall back to centre, got %v", p)
	}
	// wide mask: step limit follows the larger half extent
	wide := alphaFrom(solid(100, 10, red))
	if p := LocateRayMarch(wide, Vector{-1, 0}); p != image.Pt(99, 5) {
		t.Fatalf("wide ray = %v", p)
	}
}

func TestNeutralTransformsAreIdentity(t *testing.T) {
	sil, err := Extract(lShape(25, 19), color.NRGBA{A: 255})
	if err != nil {
		t.Fatal(err)
	}
	l := NewLayer(sil.Layer, image.Pt(3, 4))
	for name, f := range map[string]func(*Layer) (*Layer, error){
		"scale":  func(l *Layer) (*Layer, error) { return ScaleAboutCenter(l, 1) },
		"blur":   func(l *Layer) (*Layer, error) { return Blur(l, 0) },
		"squash": func(l *Layer) (*Layer, error) { return Squash(l, 1) },
		"shrink": func(l *Layer) (*Layer, error) { return Shrink(l, 0) },
	} {
		out, err := f(l)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(out.Image.Pix, sil.Layer.Pix) || out.Anchor != l.Anchor {
			t.Fatalf("%s with neutral parameter changed the layer", name)
		}
	}
}

func TestScaleRemapsAnchorAboutCentre(t *testing.T) {
	l := NewLayer(solid(11, 11, red), image.Pt(0, 5))
	out, err := ScaleAboutCenter(l, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Image.Rect.Size() != image.Pt(22, 22) {
		t.Fatalf("size = %v", out.Image.Rect.Size())
	}
	// (0-5)*2 + 10.5 = 0.5 -> rounds to 1; y stays on the centre row
	if out.Anchor != image.Pt(1, 11) {
		t.Fatalf("anchor = %v", out.Anchor)
	}
}

func TestMirrorFlipsByAngle(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	img.SetNRGBA(0, 0, red)
	base := NewLayer(img, image.Pt(0, 0))
	cases := []struct {
		angle      float64
		fh, fv     bool
		mirrored   image.Point
		redPixelAt image.Point
	}{
		{0, false, false, image.Pt(0, 0), image.Pt(0, 0)},
		{90, false, false, image.Pt(0, 0), image.Pt(0, 0)},
		{135, true, false, image.Pt(3, 0), image.Pt(3, 0)},
		{225, true, true, image.Pt(3, 2), image.Pt(3, 2)},
		{270, false, true, image.Pt(0, 2), image.Pt(0, 2)},
	}
	for _, tc := range cases {
		out := Mirror(base, tc.angle)
		if out.FlipH != tc.fh || out.FlipV != tc.fv || out.Mirrored != tc.mirrored {
			t.Errorf("angle %v: flips %v/%v mirrored %v", tc.angle, out.FlipH, out.FlipV, out.Mirrored)
		}
		if out.Anchor != base.Anchor {
			t.Errorf("angle %v: placement anchor moved", tc.angle)
		}
		if out.Image.NRGBAAt(tc.redPixelAt.X, tc.redPixelAt.Y) != red {
			t.Errorf("angle %v: content not flipped to %v", tc.angle, tc.redPixelAt)
		}
	}
	if base.Image.NRGBAAt(0, 0) != red {
		t.Fatalf("Mirror mutated its input")
	}
}

func TestSquashHalvesHeight(t *testing.T) {
	l := NewLayer(solid(10, 40, red), image.Pt(5, 0))
	out, err := Squash(l, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if out.Image.Rect.Size() != image.Pt(10, 20) {
		t.Fatalf("size = %v", out.Image.Rect.Size())
	}
	// (0-19.5)*0.5 + 9.5 = -0.25 -> 0
	if out.Anchor != image.Pt(5, 0) {
		t.Fatalf("anchor = %v", out.Anchor)
	}
	if p := out.Image.NRGBAAt(5, 10); p.A < 250 || p.R < 250 {
		t.Fatalf("interior pixel = %v", p)
	}
	for _, k := range []float64{0, -0.5, 1.5} {
		if _, err := Squash(l, k); !errors.Is(err, ErrConfiguration) {
			t.Errorf("Squash(%v) err = %v", k, err)
		}
	}
	tiny := NewLayer(solid(4, 1, red), image.Point{})
	if _, err := Squash(tiny, 0.2); !errors.Is(err, ErrGeometry) {
		t.Fatalf("squash to zero height err = %v", err)
	}
}

func TestShrinkAxes(t *testing.T) {
	l := NewLayer(solid(40, 20, red), image.Point{})
	l.Origin = image.Pt(20, 10)
	narrow, err := Shrink(l, -0.5)
	if err != nil {
		t.Fatal(err)
	}
	if narrow.Image.Rect.Size() != image.Pt(20, 20) || narrow.Origin != image.Pt(10, 10) {
		t.Fatalf("narrow = %v origin %v", narrow.Image.Rect.Size(), narrow.Origin)
	}
	tall, err := Shrink(l, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if tall.Image.Rect.Size() != image.Pt(40, 30) || tall.Origin != image.Pt(20, 15) {
		t.Fatalf("tall = %v origin %v", tall.Image.Rect.Size(), tall.Origin)
	}
	var ge *GeometryError
	if _, err := Shrink(l, -1); !errors.As(err, &ge) || ge.Width != 0 {
		t.Fatalf("shrink to zero width err = %v", err)
	}
}

func TestBlurRejectsNegativeRadius(t *testing.T) {
	l := NewLayer(solid(5, 5, red), image.Point{})
	if _, err := Blur(l, -0.1); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
	out, err := Blur(l, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Image.Rect.Size() != image.Pt(5, 5) {
		t.Fatalf("blur changed size to %v", out.Image.Rect.Size())
	}
}

func TestStepCount(t *testing.T) {
	if n, err := StepCount(2000, 0); err != nil || n != 2000 {
		t.Fatalf("StepCount(2000) = %d, %v", n, err)
	}
	if n, err := StepCount(9.6, 10); err != nil || n != 10 {
		t.Fatalf("StepCount(9.6, 10) = %d, %v", n, err)
	}
	var re *ResourceError
	if _, err := StepCount(1e12, 0); !errors.As(err, &re) || re.Limit != DefaultMaxSteps {
		t.Fatalf("huge length err = %v", err)
	}
}

func TestFit(t *testing.T) {
	cases := []struct {
		subj, shd, off   image.Point
		canvas, sp, shdp image.Point
	}{
		{image.Pt(100, 100), image.Pt(200, 200), image.Pt(-150, -50), image.Pt(250, 200), image.Pt(150, 50), image.Pt(0, 0)},
		{image.Pt(100, 100), image.Pt(50, 50), image.Pt(10, 10), image.Pt(100, 100), image.Pt(0, 0), image.Pt(10, 10)},
		{image.Pt(100, 100), image.Pt(100, 100), image.Pt(80, -30), image.Pt(180, 130), image.Pt(0, 30), image.Pt(80, 0)},
	}
	for _, tc := range cases {
		pl, err := Fit(tc.subj, tc.shd, tc.off)
		if err != nil {
			t.Fatal(err)
		}
		if pl.Canvas != tc.canvas || pl.Subject != tc.sp || pl.Shadow != tc.shdp {
			t.Errorf("Fit(%v,%v,%v) = %+v", tc.subj, tc.shd, tc.off, pl)
		}
		bounds := image.Rectangle{Max: pl.Canvas}
		if !pl.SubjectRect(tc.subj).In(bounds) || !pl.ShadowRect().In(bounds) {
			t.Errorf("layers escape canvas: %+v", pl)
		}
	}
	if _, err := Fit(image.Pt(0, 10), image.Pt(1, 1), image.Point{}); !errors.Is(err, ErrGeometry) {
		t.Fatalf("empty subject err = %v", err)
	}
}
