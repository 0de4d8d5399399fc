// Package mapview owns the map overlay lifecycle: route lines, markers,
// hover highlighting, and viewport fitting. It makes no routing decisions;
// the controller instructs it what to draw and when to clear.
package mapview

import (
	"fmt"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/lib/geo"
)

const (
	// viewportPadRatio expands the fitted bound on each side.
	viewportPadRatio = 0.1
	// minViewportPad keeps degenerate bounds visible.
	minViewportPad = 0.001
	// hoverToleranceDeg is the pick radius for hover hit-testing.
	hoverToleranceDeg = 0.0005
	// segmentRectEpsilon keeps axis-aligned segments storable in the R-tree.
	segmentRectEpsilon = 1e-9
)

// Surface is a single map surface instance. All overlay handles live here;
// exactly one rendered overlay set exists at a time.
type Surface struct {
	mu            sync.Mutex
	logger        *zap.Logger
	overlays      map[string]*Overlay
	order         []string
	hitIndex      *rtreego.Rtree
	hoveredID     string
	viewport      orb.Bound
	hasViewport   bool
	clickHandlers []func(lat, lon float64)
	now           func() time.Time
}

// segmentEntry indexes one line segment for hover hit-testing.
type segmentEntry struct {
	rect      rtreego.Rect
	overlayID string
	zIndex    int
}

func (e *segmentEntry) Bounds() rtreego.Rect { return e.rect }

// New creates an empty surface.
func New(logger *zap.Logger) *Surface {
	return &Surface{
		logger:   logger,
		overlays: make(map[string]*Overlay),
		hitIndex: rtreego.NewTree(2, 25, 50),
		now:      time.Now,
	}
}

// OnPointSelected registers a handler invoked with rounded coordinates on
// every map click. Handlers run synchronously in click order.
func (s *Surface) OnPointSelected(fn func(lat, lon float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clickHandlers = append(s.clickHandlers, fn)
}

// ClickAt reports a user click. Coordinates are rounded to 4 decimal places
// before handlers see them.
func (s *Surface) ClickAt(lat, lon float64) {
	p := geo.Point{Lat: lat, Lon: lon}.Round4()

	s.mu.Lock()
	handlers := make([]func(lat, lon float64), len(s.clickHandlers))
	copy(handlers, s.clickHandlers)
	s.mu.Unlock()

	// Handlers run outside the lock; they call back into the surface.
	for _, fn := range handlers {
		fn(p.Lat, p.Lon)
	}
}

// DrawSingleRoute disposes the previous overlay set, draws one line through
// nodes in sequence, places start/end markers, and fits the viewport to the
// line with fixed padding.
func (s *Surface) DrawSingleRoute(nodes []geo.Point, start, end geo.Point) error {
	if len(nodes) == 0 {
		return fmt.Errorf("single route has no coordinates")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()

	s.addLineLocked(nodes, LineStyle{
		Color:   singleRouteColor,
		Weight:  bestPathWeight,
		Opacity: bestPathOpacity,
		ZIndex:  topZIndex,
	}, "")
	s.addMarkerLocked(start, "Эхлэх цэг")
	s.addMarkerLocked(end, "Очих цэг")

	s.fitViewportLocked(nodes)
	s.logger.Debug("drew single route", zap.Int("points", len(nodes)))
	return nil
}

// DrawMultipleRoutes disposes the previous overlay set and draws each path
// as a separate line, best path first. The best path is heavier and more
// opaque and stays on top; later paths stack beneath it with palette colors
// cycled by index. The viewport fits the union of all coordinates.
func (s *Surface) DrawMultipleRoutes(paths []PathRender, start, end geo.Point) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to draw")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()

	var union []geo.Point
	for i, path := range paths {
		if len(path.Coordinates) == 0 {
			return fmt.Errorf("path %d has no coordinates", i)
		}

		style := LineStyle{
			Color:   palette[i%len(palette)],
			Weight:  altPathWeight,
			Opacity: altPathOpacity,
			ZIndex:  topZIndex - i*zIndexStep,
		}
		if i == 0 {
			style.Weight = bestPathWeight
			style.Opacity = bestPathOpacity
		}

		popup := fmt.Sprintf("Зам %d: %.2f км, %d цэг", i+1, path.DistanceKm, path.NodeCount)
		s.addLineLocked(path.Coordinates, style, popup)
		union = append(union, path.Coordinates...)
	}

	s.addMarkerLocked(start, "Эхлэх цэг")
	s.addMarkerLocked(end, "Очих цэг")

	s.fitViewportLocked(union)
	s.logger.Debug("drew multiple routes", zap.Int("paths", len(paths)))
	return nil
}

// ClearAll disposes every current overlay. Idempotent when nothing is drawn.
func (s *Surface) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
}

// FlashMarker places a transient labeled marker that self-removes after the
// given duration. It survives until the next draw or clear, whichever comes
// first, and returns the overlay handle id.
func (s *Surface) FlashMarker(p geo.Point, label string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.overlays[id] = &Overlay{
		ID:        id,
		Kind:      OverlayFlashMarker,
		Points:    []geo.Point{p},
		Label:     label,
		ExpiresAt: s.now().Add(duration),
	}
	s.order = append(s.order, id)

	time.AfterFunc(duration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removeLocked(id)
	})

	return id
}

// HoverAt boosts the weight and opacity of the topmost line near the given
// coordinate and reports its overlay id. Any previously hovered line
// reverts first.
func (s *Surface) HoverAt(lat, lon float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unhoverLocked()

	rect, err := rtreego.NewRect(
		rtreego.Point{lon - hoverToleranceDeg, lat - hoverToleranceDeg},
		[]float64{2 * hoverToleranceDeg, 2 * hoverToleranceDeg},
	)
	if err != nil {
		return "", false
	}

	var best *segmentEntry
	for _, item := range s.hitIndex.SearchIntersect(rect) {
		entry := item.(*segmentEntry)
		if best == nil || entry.zIndex > best.zIndex {
			best = entry
		}
	}
	if best == nil {
		return "", false
	}

	overlay, ok := s.overlays[best.overlayID]
	if !ok {
		return "", false
	}

	overlay.baseStyle = overlay.Style
	overlay.Style.Weight += hoverWeightBoost
	overlay.Style.Opacity = hoverOpacity
	overlay.hovered = true
	s.hoveredID = overlay.ID
	return overlay.ID, true
}

// HoverEnd reverts any hover boost.
func (s *Surface) HoverEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unhoverLocked()
}

// Snapshot returns the current overlay set in display form. Expired flash
// markers are pruned first.
func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneExpiredLocked()

	var snap Snapshot
	for _, id := range s.order {
		overlay, ok := s.overlays[id]
		if !ok {
			continue
		}
		switch overlay.Kind {
		case OverlayLine:
			coords := make([][]float64, len(overlay.Points))
			for i, p := range overlay.Points {
				coords[i] = []float64{p.Lat, p.Lon}
			}
			snap.Lines = append(snap.Lines, LineSnapshot{
				ID:              overlay.ID,
				EncodedPolyline: string(polyline.EncodeCoords(coords)),
				Style:           overlay.Style,
				Popup:           overlay.Popup,
			})
		case OverlayMarker, OverlayFlashMarker:
			snap.Markers = append(snap.Markers, MarkerSnapshot{
				ID:    overlay.ID,
				Lat:   overlay.Points[0].Lat,
				Lon:   overlay.Points[0].Lon,
				Label: overlay.Label,
				Flash: overlay.Kind == OverlayFlashMarker,
			})
		}
	}

	if s.hasViewport {
		snap.Viewport = &geo.BoundingBox{
			MinLat: s.viewport.Min[1],
			MaxLat: s.viewport.Max[1],
			MinLon: s.viewport.Min[0],
			MaxLon: s.viewport.Max[0],
		}
	}

	return snap
}

// Viewport returns the current fitted bound, if any render has set one.
func (s *Surface) Viewport() (geo.BoundingBox, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasViewport {
		return geo.BoundingBox{}, false
	}
	return geo.BoundingBox{
		MinLat: s.viewport.Min[1],
		MaxLat: s.viewport.Max[1],
		MinLon: s.viewport.Min[0],
		MaxLon: s.viewport.Max[0],
	}, true
}

func (s *Surface) clearLocked() {
	s.overlays = make(map[string]*Overlay)
	s.order = nil
	s.hitIndex = rtreego.NewTree(2, 25, 50)
	s.hoveredID = ""
	s.hasViewport = false
}

func (s *Surface) addLineLocked(points []geo.Point, style LineStyle, popup string) {
	id := uuid.NewString()
	overlay := &Overlay{
		ID:     id,
		Kind:   OverlayLine,
		Points: points,
		Style:  style,
		Popup:  popup,
	}
	s.overlays[id] = overlay
	s.order = append(s.order, id)

	for i := 0; i+1 < len(points); i++ {
		rect := segmentRect(points[i], points[i+1])
		s.hitIndex.Insert(&segmentEntry{rect: rect, overlayID: id, zIndex: style.ZIndex})
	}
}

func (s *Surface) addMarkerLocked(p geo.Point, label string) {
	id := uuid.NewString()
	s.overlays[id] = &Overlay{
		ID:     id,
		Kind:   OverlayMarker,
		Points: []geo.Point{p},
		Label:  label,
	}
	s.order = append(s.order, id)
}

func (s *Surface) removeLocked(id string) {
	if _, ok := s.overlays[id]; !ok {
		return
	}
	delete(s.overlays, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Surface) unhoverLocked() {
	if s.hoveredID == "" {
		return
	}
	if overlay, ok := s.overlays[s.hoveredID]; ok && overlay.hovered {
		overlay.Style = overlay.baseStyle
		overlay.hovered = false
	}
	s.hoveredID = ""
}

func (s *Surface) pruneExpiredLocked() {
	now := s.now()
	for id, overlay := range s.overlays {
		if overlay.Kind == OverlayFlashMarker && now.After(overlay.ExpiresAt) {
			s.removeLocked(id)
		}
	}
}

func (s *Surface) fitViewportLocked(points []geo.Point) {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.Lon, p.Lat}
	}
	bound := mp.Bound()

	padX := (bound.Max[0]-bound.Min[0])*viewportPadRatio + minViewportPad
	padY := (bound.Max[1]-bound.Min[1])*viewportPadRatio + minViewportPad
	bound.Min[0] -= padX
	bound.Min[1] -= padY
	bound.Max[0] += padX
	bound.Max[1] += padY

	s.viewport = bound
	s.hasViewport = true
}

func segmentRect(a, b geo.Point) rtreego.Rect {
	minLon, maxLon := a.Lon, b.Lon
	if minLon > maxLon {
		minLon, maxLon = maxLon, minLon
	}
	minLat, maxLat := a.Lat, b.Lat
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}

	rect, err := rtreego.NewRect(
		rtreego.Point{minLon, minLat},
		[]float64{maxLon - minLon + segmentRectEpsilon, maxLat - minLat + segmentRectEpsilon},
	)
	if err != nil {
		// Lengths are always positive, so construction cannot fail.
		panic(err)
	}
	return rect
}
