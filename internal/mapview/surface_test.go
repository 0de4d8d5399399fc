package mapview

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/lib/geo"
)

func newTestSurface() *Surface {
	return New(zap.NewNop())
}

var (
	routeStart = geo.Point{Lat: 47.92, Lon: 106.92}
	routeEnd   = geo.Point{Lat: 47.93, Lon: 106.93}
)

func singleRoutePoints() []geo.Point {
	return []geo.Point{routeStart, {Lat: 47.925, Lon: 106.925}, routeEnd}
}

func threePaths() []PathRender {
	return []PathRender{
		{
			Coordinates: []geo.Point{routeStart, routeEnd},
			DistanceKm:  1.2,
			NodeCount:   2,
		},
		{
			Coordinates: []geo.Point{routeStart, {Lat: 47.925, Lon: 106.925}, routeEnd},
			DistanceKm:  1.5,
			NodeCount:   3,
		},
		{
			Coordinates: []geo.Point{routeStart, {Lat: 47.915, Lon: 106.935}, routeEnd},
			DistanceKm:  1.9,
			NodeCount:   3,
		},
	}
}

func TestDrawSingleRoute(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.DrawSingleRoute(singleRoutePoints(), routeStart, routeEnd))

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	require.Len(t, snap.Markers, 2)

	coords, _, err := polyline.DecodeCoords([]byte(snap.Lines[0].EncodedPolyline))
	require.NoError(t, err)
	require.Len(t, coords, 3)
	assert.InDelta(t, 47.92, coords[0][0], 1e-5)
	assert.InDelta(t, 106.92, coords[0][1], 1e-5)
}

func TestDrawSingleRoute_DisposesPreviousOverlays(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.DrawMultipleRoutes(threePaths(), routeStart, routeEnd))
	require.NoError(t, s.DrawSingleRoute(singleRoutePoints(), routeStart, routeEnd))

	snap := s.Snapshot()
	assert.Len(t, snap.Lines, 1, "previous render fully disposed")
	assert.Len(t, snap.Markers, 2)
}

func TestDrawSingleRoute_NoPoints(t *testing.T) {
	s := newTestSurface()
	assert.Error(t, s.DrawSingleRoute(nil, routeStart, routeEnd))
}

func TestDrawMultipleRoutes_StylingPolicy(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.DrawMultipleRoutes(threePaths(), routeStart, routeEnd))

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 3)

	best := snap.Lines[0]
	for _, alt := range snap.Lines[1:] {
		assert.Greater(t, best.Style.Weight, alt.Style.Weight)
		assert.Greater(t, best.Style.Opacity, alt.Style.Opacity)
		assert.Greater(t, best.Style.ZIndex, alt.Style.ZIndex, "best path stays on top")
	}

	// Z-order descends strictly down the ranking.
	assert.Greater(t, snap.Lines[1].Style.ZIndex, snap.Lines[2].Style.ZIndex)

	// Palette colors cycle by index, so the first three differ.
	assert.NotEqual(t, snap.Lines[0].Style.Color, snap.Lines[1].Style.Color)
	assert.NotEqual(t, snap.Lines[1].Style.Color, snap.Lines[2].Style.Color)

	// Popups carry the path metadata.
	assert.Contains(t, snap.Lines[0].Popup, "1.20 км")
	assert.Contains(t, snap.Lines[1].Popup, "3 цэг")
}

func TestDrawMultipleRoutes_ViewportContainsAllCoordinates(t *testing.T) {
	s := newTestSurface()

	paths := threePaths()
	require.NoError(t, s.DrawMultipleRoutes(paths, routeStart, routeEnd))

	viewport, ok := s.Viewport()
	require.True(t, ok)
	for _, path := range paths {
		for _, p := range path.Coordinates {
			assert.LessOrEqual(t, viewport.MinLat, p.Lat)
			assert.GreaterOrEqual(t, viewport.MaxLat, p.Lat)
			assert.LessOrEqual(t, viewport.MinLon, p.Lon)
			assert.GreaterOrEqual(t, viewport.MaxLon, p.Lon)
		}
	}
}

func TestClearAll(t *testing.T) {
	s := newTestSurface()

	// Idempotent on an empty surface.
	s.ClearAll()
	s.ClearAll()

	require.NoError(t, s.DrawSingleRoute(singleRoutePoints(), routeStart, routeEnd))
	s.ClearAll()

	snap := s.Snapshot()
	assert.Empty(t, snap.Lines)
	assert.Empty(t, snap.Markers)
	_, ok := s.Viewport()
	assert.False(t, ok)

	// A render after clear leaves exactly the new overlays.
	require.NoError(t, s.DrawSingleRoute(singleRoutePoints(), routeStart, routeEnd))
	snap = s.Snapshot()
	assert.Len(t, snap.Lines, 1)
	assert.Len(t, snap.Markers, 2)
}

func TestClickAt_RoundsAndDispatches(t *testing.T) {
	s := newTestSurface()

	var gotLat, gotLon float64
	var calls int
	s.OnPointSelected(func(lat, lon float64) {
		gotLat, gotLon = lat, lon
		calls++
	})

	s.ClickAt(47.92104999, 106.92695001)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 47.921, gotLat)
	assert.Equal(t, 106.927, gotLon)
}

func TestFlashMarker_SelfRemoves(t *testing.T) {
	s := newTestSurface()
	base := time.Now()
	s.now = func() time.Time { return base }

	s.FlashMarker(routeStart, "Эхлэх цэг", 3*time.Second)

	snap := s.Snapshot()
	require.Len(t, snap.Markers, 1)
	assert.True(t, snap.Markers[0].Flash)
	assert.Equal(t, "Эхлэх цэг", snap.Markers[0].Label)

	s.now = func() time.Time { return base.Add(5 * time.Second) }
	snap = s.Snapshot()
	assert.Empty(t, snap.Markers)
}

func TestHover_BoostsTopmostLineAndReverts(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.DrawMultipleRoutes(threePaths(), routeStart, routeEnd))
	before := s.Snapshot()

	// All three paths pass through the start point; the best one wins.
	id, ok := s.HoverAt(routeStart.Lat, routeStart.Lon)
	require.True(t, ok)
	assert.Equal(t, before.Lines[0].ID, id)

	during := s.Snapshot()
	assert.Equal(t, before.Lines[0].Style.Weight+hoverWeightBoost, during.Lines[0].Style.Weight)
	assert.Equal(t, hoverOpacity, during.Lines[0].Style.Opacity)

	s.HoverEnd()
	after := s.Snapshot()
	assert.Equal(t, before.Lines[0].Style, after.Lines[0].Style)
}

func TestHover_MissesAwayFromLines(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.DrawSingleRoute(singleRoutePoints(), routeStart, routeEnd))

	_, ok := s.HoverAt(48.5, 107.5)
	assert.False(t, ok)
}

func TestExportKML(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.DrawMultipleRoutes(threePaths(), routeStart, routeEnd))

	var buf bytes.Buffer
	require.NoError(t, s.ExportKML(&buf))

	out := buf.String()
	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "Эхлэх цэг")
	assert.Contains(t, out, "106.92,47.92")
}
