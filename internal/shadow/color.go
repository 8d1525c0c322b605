/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shadow

import (
	"image/color"
	"strconv"
	"strings"
)

var namedColors = map[string]color.NRGBA{
	"black": {0, 0, 0, 255},
	"white": {255, 255, 255, 255},
	"gray":  {128, 128, 128, 255},
	"grey":  {128, 128, 128, 255},
	"red":   {255, 0, 0, 255},
	"green": {0, 128, 0, 255},
	"blue":  {0, 0, 255, 255},
	"navy":  {0, 0, 128, 255},
}

// ParseColor reads a shadow colour: "#RGB", "#RRGGBB", "#RRGGBBAA", an "r,g,b" triple of
// 0..255 integers, or one of a few CSS names. The empty string is black.
func ParseColor(s string) (color.NRGBA, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return color.NRGBA{A: 255}, nil
	}
	if c, ok := namedColors[strings.ToLower(in)]; ok {
		return c, nil
	}
	if strings.HasPrefix(in, "#") {
		return parseHex(s, in[1:])
	}
	if strings.Contains(in, ",") {
		parts := strings.Split(in, ",")
		if len(parts) != 3 {
			return color.NRGBA{}, configErr("color", s, "expected r,g,b")
		}
		var ch [3]uint8
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 255 {
				return color.NRGBA{}, configErr("color", s, "channel must be an integer in 0..255")
			}
			ch[i] = uint8(n)
		}
		return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: 255}, nil
	}
	return color.NRGBA{}, configErr("color", s, "unrecognised colour")
}

func parseHex(orig, hex string) (color.NRGBA, error) {
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.NRGBA{}, configErr("color", orig, "hex colour needs 3, 6 or 8 digits")
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, configErr("color", orig, "invalid hex digits")
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
