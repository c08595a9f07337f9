package app

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// Status card geometry, sized for a 128x64 monochrome panel.
const (
	cardWidth  = 128
	cardHeight = 64
	lineHeight = 13
)

// renderStatusCard draws a compact summary of s. With no snapshot it shows a
// waiting screen.
func renderStatusCard(s nav.Snapshot, haveData bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, cardWidth, cardHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.White},
		Face: basicfont.Face7x13,
	}

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Pedestrian"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return img
	}

	lines := statusLines(s)
	for i, line := range lines {
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}

func statusLines(s nav.Snapshot) []string {
	lines := []string{
		fmt.Sprintf("%s %s", s.Mode, rotationLabel(s.RotationMode)),
		fmt.Sprintf("HDG %5.1f ST %d", s.Heading, s.Steps),
		fmt.Sprintf("%s %s", hemisphere(s.Position.Lat, "N", "S"), hemisphere(s.Position.Lng, "E", "W")),
		fmt.Sprintf("WLK %.0fm", s.DistanceWalked),
	}
	if len(s.PlannedRoute) > 0 {
		lines[3] += fmt.Sprintf(" REM %.0fm", s.RemainingRoute)
	}
	return lines
}

func rotationLabel(r nav.RotationMode) string {
	if r == nav.HeadsUp {
		return "HU"
	}
	return "NU"
}

func hemisphere(v float64, pos, neg string) string {
	dir := pos
	if v < 0 {
		dir = neg
		v = -v
	}
	return fmt.Sprintf("%.4f%s", v, dir)
}

// encodeStatusCard renders s as PNG.
func encodeStatusCard(s nav.Snapshot, haveData bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, renderStatusCard(s, haveData)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
