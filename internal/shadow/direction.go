/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shadow

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Style selects one of the compositor's pipelines.
type Style int

const (
	// StyleSimpleOffset scales and blurs the silhouette and offsets it along the cast direction.
	StyleSimpleOffset Style = iota
	// StyleAnchoredProjection anchors the shadow on the silhouette pixel with the largest
	// projection onto the cast direction, then scales, mirrors, squashes and blurs.
	StyleAnchoredProjection
	// StyleAnchoredRaymarch is StyleAnchoredProjection with a ray-marched anchor.
	StyleAnchoredRaymarch
	// StyleLongCast stacks silhouette copies along the cast direction into a streak.
	StyleLongCast
)

var styleNames = [...]string{"simple-offset", "anchored-projection", "anchored-raymarch", "long-cast"}

func (s Style) String() string {
	if s < 0 || int(s) >= len(styleNames) {
		return fmt.Sprintf("Style(%d)", int(s))
	}
	return styleNames[s]
}

// Styles lists all styles in declaration order.
func Styles() []Style {
	return []Style{StyleSimpleOffset, StyleAnchoredProjection, StyleAnchoredRaymarch, StyleLongCast}
}

// ParseStyle accepts the names printed by Style.String, case-insensitively.
func ParseStyle(s string) (Style, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	for i, name := range styleNames {
		if n == name {
			return Style(i), nil
		}
	}
	return 0, configErr("style", s, "unknown style")
}

// Unit tells how a Direction value is to be read.
type Unit int

const (
	UnitDegrees Unit = iota
	UnitHour
)

func (u Unit) String() string {
	if u == UnitHour {
		return "hour"
	}
	return "degrees"
}

// Direction is a caller-facing direction parameter; a DirectionTable turns it into a Vector.
type Direction struct {
	Unit  Unit
	Value float64
}

func Degrees(d float64) Direction { return Direction{Unit: UnitDegrees, Value: d} }
func Hour(h int) Direction        { return Direction{Unit: UnitHour, Value: float64(h)} }

func (d Direction) String() string {
	if d.Unit == UnitHour {
		return fmt.Sprintf("%g o'clock", d.Value)
	}
	return fmt.Sprintf("%g°", d.Value)
}

// Vector is a unit cast direction in screen space (+x right, +y down).
type Vector struct {
	DX, DY float64
}

// vectorAt builds the unit vector for a math-convention angle. Components closer to zero than
// 1e-9 are snapped so axis-aligned casts have exact zeros.
func vectorAt(deg float64, yUp bool) Vector {
	rad := deg * math.Pi / 180
	v := Vector{DX: math.Cos(rad), DY: math.Sin(rad)}
	if yUp {
		v.DY = -v.DY
	}
	if math.Abs(v.DX) < 1e-9 {
		v.DX = 0
	}
	if math.Abs(v.DY) < 1e-9 {
		v.DY = 0
	}
	return v
}

// Angle returns the math-convention angle of v in degrees, in [0, 360): 0 is +x, 90 is
// screen up.
func (v Vector) Angle() float64 {
	a := math.Atan2(-v.DY, v.DX) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

// Neg returns the opposite direction.
func (v Vector) Neg() Vector { return Vector{DX: -v.DX, DY: -v.DY} }

// DirectionTable resolves a Direction into a unit cast vector. Unknown values are
// ConfigurationErrors.
type DirectionTable interface {
	Resolve(Direction) (Vector, error)
	Name() string
}

// DegreeTable accepts angles in degrees within [0, 360].
type DegreeTable struct {
	TableName string
	// YUp reads positive angles as counter-clockwise on screen.
	YUp bool
	// Reverse treats the angle as the light position; the cast points the other way.
	Reverse bool
}

func (t DegreeTable) Name() string { return t.TableName }

func (t DegreeTable) Resolve(d Direction) (Vector, error) {
	if d.Unit != UnitDegrees {
		return Vector{}, configErr("direction", d, fmt.Sprintf("table %q takes degrees", t.TableName))
	}
	if math.IsNaN(d.Value) || d.Value < 0 || d.Value > 360 {
		return Vector{}, configErr("direction", d, "angle outside 0..360")
	}
	a := d.Value
	if t.Reverse {
		a += 180
	}
	return vectorAt(a, t.YUp), nil
}

// ClockTable maps clock hours to angles in degrees.
type ClockTable struct {
	TableName string
	Angles    map[int]float64
	YUp       bool
	Reverse   bool
}

func (t ClockTable) Name() string { return t.TableName }

func (t ClockTable) Resolve(d Direction) (Vector, error) {
	if d.Unit != UnitHour {
		return Vector{}, configErr("direction", d, fmt.Sprintf("table %q takes clock hours", t.TableName))
	}
	h := int(d.Value)
	if float64(h) != d.Value {
		return Vector{}, configErr("direction", d, "hour must be a whole number")
	}
	a, ok := t.Angles[h]
	if !ok {
		return Vector{}, configErr("direction", d, fmt.Sprintf("hour not in table %q", t.TableName))
	}
	if t.Reverse {
		a += 180
	}
	return vectorAt(a, t.YUp), nil
}

// Hours lists the hours the table knows, ascending.
func (t ClockTable) Hours() []int {
	hs := make([]int, 0, len(t.Angles))
	for h := range t.Angles {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	return hs
}

// WithAngles returns a copy of t using angles in place of its own.
func (t ClockTable) WithAngles(angles map[int]float64) ClockTable {
	cp := make(map[int]float64, len(angles))
	for h, a := range angles {
		cp[h] = a
	}
	t.Angles = cp
	return t
}

// DropShadowDegrees: 0° points right, angles grow counter-clockwise.
func DropShadowDegrees() DegreeTable {
	return DegreeTable{TableName: "drop-shadow-degrees", YUp: true}
}

// ClockFace: 12 points up, hours run clockwise, the hour names the cast direction.
func ClockFace() ClockTable {
	angles := make(map[int]float64, 12)
	for h := 1; h <= 12; h++ {
		a := math.Mod(90-30*float64(h)+360, 360)
		angles[h] = a
	}
	return ClockTable{TableName: "clock-face", Angles: angles, YUp: true}
}

// SpotlightClock: the hour names the light; angles are measured clockwise on screen from +x.
func SpotlightClock() ClockTable {
	return ClockTable{
		TableName: "spotlight",
		Angles: map[int]float64{
			1: 30, 2: 60, 3: 90, 4: 120, 5: 150, 6: 180,
			7: 210, 8: 240, 9: 270, 10: 300, 11: 330, 12: 360,
		},
		Reverse: true,
	}
}

// LongShadowClock: the hour names the light; the angle is already the cast direction,
// measured clockwise on screen from +x.
func LongShadowClock() ClockTable {
	return ClockTable{
		TableName: "long-shadow",
		Angles: map[int]float64{
			1: 210, 2: 240, 3: 270, 4: 300, 5: 330, 6: 0,
			7: 30, 8: 60, 9: 90, 10: 120, 11: 150, 12: 180,
		},
	}
}

// DefaultTable returns the table a style uses when a request names none.
func DefaultTable(s Style) DirectionTable {
	switch s {
	case StyleSimpleOffset:
		return SpotlightClock()
	case StyleAnchoredRaymarch:
		return ClockFace()
	case StyleLongCast:
		return LongShadowClock()
	default:
		return DropShadowDegrees()
	}
}

// OverrideTable swaps the angles of a style's clock table. Styles driven by degrees cannot be
// overridden.
func OverrideTable(s Style, angles map[int]float64) (DirectionTable, error) {
	ct, ok := DefaultTable(s).(ClockTable)
	if !ok {
		return nil, configErr("table", s.String(), "style does not use a clock table")
	}
	if len(angles) == 0 {
		return nil, configErr("table", s.String(), "override has no hours")
	}
	return ct.WithAngles(angles), nil
}
