package mapview

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml/v2"
)

// ExportKML writes the current overlay set as a KML document, one placemark
// per route line and marker. Expired flash markers are excluded.
func (s *Surface) ExportKML(w io.Writer) error {
	s.mu.Lock()
	s.pruneExpiredLocked()

	var children []kml.Element
	lineNo := 0
	for _, id := range s.order {
		overlay, ok := s.overlays[id]
		if !ok {
			continue
		}
		switch overlay.Kind {
		case OverlayLine:
			lineNo++
			name := overlay.Popup
			if name == "" {
				name = fmt.Sprintf("Зам %d", lineNo)
			}
			coords := make([]kml.Coordinate, len(overlay.Points))
			for i, p := range overlay.Points {
				coords[i] = kml.Coordinate{Lon: p.Lon, Lat: p.Lat}
			}
			children = append(children, kml.Placemark(
				kml.Name(name),
				kml.Style(
					kml.LineStyle(
						kml.Color(hexColor(overlay.Style.Color, overlay.Style.Opacity)),
						kml.Width(overlay.Style.Weight),
					),
				),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coords...),
				),
			))
		case OverlayMarker, OverlayFlashMarker:
			p := overlay.Points[0]
			children = append(children, kml.Placemark(
				kml.Name(overlay.Label),
				kml.Point(
					kml.Coordinates(kml.Coordinate{Lon: p.Lon, Lat: p.Lat}),
				),
			))
		}
	}
	s.mu.Unlock()

	doc := kml.KML(kml.Document(children...))
	return doc.WriteIndent(w, "", "  ")
}

// hexColor parses a "#rrggbb" style color with a 0..1 opacity into an
// alpha-carrying color. Unparseable colors fall back to opaque blue.
func hexColor(hex string, opacity float64) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		r, g, b = 0x29, 0x80, 0xb9
	}
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{R: r, G: g, B: b, A: uint8(opacity * 255)}
}
