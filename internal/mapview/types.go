package mapview

import (
	"time"

	"github.com/odbayar/routeview/internal/lib/geo"
)

// OverlayKind discriminates map-drawn artifacts.
type OverlayKind int

const (
	OverlayLine OverlayKind = iota
	OverlayMarker
	OverlayFlashMarker
)

// LineStyle holds the rendering attributes of a route line.
type LineStyle struct {
	Color   string  `json:"color"`
	Weight  float64 `json:"weight"`
	Opacity float64 `json:"opacity"`
	ZIndex  int     `json:"z_index"`
}

// Overlay is a single drawn artifact owned by the surface. Handles are
// opaque; callers dispose overlays only through the surface.
type Overlay struct {
	ID     string
	Kind   OverlayKind
	Points []geo.Point // line geometry, or a single point for markers
	Style  LineStyle   // lines only
	Label  string      // markers only
	Popup  string      // hover/click popup text

	// ExpiresAt is set for flash markers, which self-remove.
	ExpiresAt time.Time

	baseStyle LineStyle // style before any hover boost
	hovered   bool
}

// PathRender is one decoded candidate route handed to DrawMultipleRoutes,
// with the metadata shown in its popup.
type PathRender struct {
	Coordinates []geo.Point
	DistanceKm  float64
	NodeCount   int
}

// Snapshot is the currently rendered overlay set in display form.
type Snapshot struct {
	Lines    []LineSnapshot   `json:"lines"`
	Markers  []MarkerSnapshot `json:"markers"`
	Viewport *geo.BoundingBox `json:"viewport,omitempty"`
}

// LineSnapshot is one route line with encoded geometry.
type LineSnapshot struct {
	ID              string    `json:"id"`
	EncodedPolyline string    `json:"encoded_polyline"`
	Style           LineStyle `json:"style"`
	Popup           string    `json:"popup,omitempty"`
}

// MarkerSnapshot is one marker.
type MarkerSnapshot struct {
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
	Flash bool    `json:"flash,omitempty"`
}

// Styling policy for route lines. The best path of a multi-path render is
// heavier and more opaque than the alternatives and always sits on top.
const (
	bestPathWeight  = 6.0
	bestPathOpacity = 0.9
	altPathWeight   = 4.0
	altPathOpacity  = 0.55

	hoverWeightBoost = 2.0
	hoverOpacity     = 1.0

	// topZIndex is assigned to the best path; each subsequent path stacks
	// beneath it by zIndexStep.
	topZIndex  = 1000
	zIndexStep = 10
)

// palette is the fixed color cycle for multi-path rendering.
var palette = []string{
	"#e74c3c", // red
	"#3498db", // blue
	"#2ecc71", // green
	"#f39c12", // orange
	"#9b59b6", // purple
	"#1abc9c", // teal
}

// singleRouteColor is used when exactly one route is drawn.
const singleRouteColor = "#2980b9"
