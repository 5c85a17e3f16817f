package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultColor is the warm orange used when no color is configured
const DefaultColor = 0xFF9900

// RGB splits a 0xRRGGBB integer into its channels
func RGB(rgb int) (r, g, b uint8) {
	return uint8(rgb >> 16 & 0xFF), uint8(rgb >> 8 & 0xFF), uint8(rgb & 0xFF)
}

// HexColor formats 0xRRGGBB as "#RRGGBB"
func HexColor(rgb int) string {
	return fmt.Sprintf("#%06X", rgb&0xFFFFFF)
}

// ParseHexColor parses "#RRGGBB" (the leading # is optional)
func ParseHexColor(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return int(v), nil
}

// XY converts an sRGB color to CIE 1931 xy coordinates as used by Hue
func XY(rgb int) (x, y float32) {
	r, g, b := RGB(rgb)
	lr, lg, lb := linear(r), linear(g), linear(b)

	X := lr*0.4124 + lg*0.3576 + lb*0.1805
	Y := lr*0.2126 + lg*0.7152 + lb*0.0722
	Z := lr*0.0193 + lg*0.1192 + lb*0.9505

	sum := X + Y + Z
	if sum == 0 {
		// Black has no chromaticity, use the D65 white point
		return 0.3127, 0.3290
	}
	return float32(round4(X / sum)), float32(round4(Y / sum))
}

func linear(c uint8) float64 {
	v := float64(c) / 255
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
