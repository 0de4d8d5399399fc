// Package services contains the route controller: the point-selection state
// machine, algorithm dispatch, response-shape reconciliation, and rendering
// decision logic that sits between the routing service client and the map
// surface.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/clients/pathfinder"
	"github.com/odbayar/routeview/internal/lib/geo"
	"github.com/odbayar/routeview/internal/mapview"
)

// SelectionState tracks which endpoint the next map click populates.
type SelectionState int

const (
	AwaitingStart SelectionState = iota
	AwaitingEnd
)

func (s SelectionState) String() string {
	if s == AwaitingEnd {
		return "awaiting_end"
	}
	return "awaiting_start"
}

// RouteRenderer is the map surface contract the controller drives.
type RouteRenderer interface {
	DrawSingleRoute(nodes []geo.Point, start, end geo.Point) error
	DrawMultipleRoutes(paths []mapview.PathRender, start, end geo.Point) error
	ClearAll()
	FlashMarker(p geo.Point, label string, duration time.Duration) string
}

// RouteRequester is the routing service contract the controller dispatches to.
type RouteRequester interface {
	RequestRoute(ctx context.Context, algorithm pathfinder.Algorithm, start, end geo.Point, opts pathfinder.RouteOptions) (*pathfinder.RouteResult, error)
}

// StatusLevel classifies the single-line status message.
type StatusLevel string

const (
	StatusInfo    StatusLevel = "info"
	StatusSuccess StatusLevel = "success"
	StatusError   StatusLevel = "error"
)

// Status is the controller's one-line user-facing message.
type Status struct {
	Level   StatusLevel `json:"level"`
	Message string      `json:"message"`
}

// Summary describes the last successful render.
type Summary struct {
	Algorithm       string  `json:"algorithm"`
	DistanceKm      float64 `json:"distance_km"`
	DistanceDisplay string  `json:"distance_display"`
	NodeCount       int     `json:"node_count"`
	ElapsedDisplay  string  `json:"elapsed_display"`
	ComputeDisplay  string  `json:"compute_display,omitempty"`
	PathsShown      int     `json:"paths_shown"`
}

// RouteRequest is the last request the controller issued.
type RouteRequest struct {
	Algorithm pathfinder.Algorithm
	Start     geo.Point
	End       geo.Point
	Options   pathfinder.RouteOptions
}

// State is a snapshot of the controller for the display layer.
type State struct {
	Selection     string   `json:"selection"`
	SearchEnabled bool     `json:"search_enabled"`
	Busy          bool     `json:"busy"`
	StartLat      string   `json:"start_lat"`
	StartLon      string   `json:"start_lon"`
	EndLat        string   `json:"end_lat"`
	EndLon        string   `json:"end_lon"`
	Status        Status   `json:"status"`
	Summary       *Summary `json:"summary,omitempty"`
}

const (
	labelStart = "Эхлэх цэг"
	labelEnd   = "Очих цэг"

	defaultFlashDuration = 2 * time.Second
)

// RouteController owns the selection state machine and the current route
// result. All handlers run to completion under one lock, so click handling
// and result handling never interleave on shared state.
type RouteController struct {
	mu      sync.Mutex
	client  RouteRequester
	surface RouteRenderer
	logger  *zap.Logger

	selection     SelectionState
	startLat      string
	startLon      string
	endLat        string
	endLon        string
	searchEnabled bool
	busy          bool
	status        Status
	summary       *Summary
	lastRequest   *RouteRequest
	lastResult    *pathfinder.RouteResult

	maxDepth      int
	flashDuration time.Duration
}

// NewRouteController creates a controller. Search starts enabled; the
// startup readiness gate may disable it via SetSearchEnabled.
func NewRouteController(client RouteRequester, surface RouteRenderer, logger *zap.Logger) *RouteController {
	return &RouteController{
		client:        client,
		surface:       surface,
		logger:        logger,
		selection:     AwaitingStart,
		searchEnabled: true,
		status:        Status{Level: StatusInfo, Message: "Газрын зураг дээр эхлэх цэгээ сонгоно уу"},
		maxDepth:      pathfinder.DefaultMaxDepth,
		flashDuration: defaultFlashDuration,
	}
}

// SetMaxDepth overrides the DFS search depth bound.
func (c *RouteController) SetMaxDepth(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if depth > 0 {
		c.maxDepth = depth
	}
}

// SetFlashDuration overrides how long click-feedback markers live.
func (c *RouteController) SetFlashDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d > 0 {
		c.flashDuration = d
	}
}

// SetSearchEnabled gates the search trigger. Used once at startup after the
// health check; a dead service disables search for the whole session.
func (c *RouteController) SetSearchEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.searchEnabled = enabled
	if !enabled {
		c.status = Status{Level: StatusError, Message: "Сервер ажиллахгүй байна. Хуудсыг дахин ачаална уу."}
	}
}

// HandleMapClick is the selection-state transition entry point, registered
// as the surface's point-selected callback. Clicks alternate strictly
// between assigning the start and the end point.
func (c *RouteController) HandleMapClick(lat, lon float64) {
	c.mu.Lock()

	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		c.mu.Unlock()
		return
	}

	var label string
	switch c.selection {
	case AwaitingStart:
		c.startLat = formatInput(lat)
		c.startLon = formatInput(lon)
		c.selection = AwaitingEnd
		label = labelStart
		c.status = Status{Level: StatusInfo, Message: "Одоо очих цэгээ сонгоно уу"}
	case AwaitingEnd:
		c.endLat = formatInput(lat)
		c.endLon = formatInput(lon)
		c.selection = AwaitingStart
		label = labelEnd
		c.status = Status{Level: StatusInfo, Message: "Алгоритмоо сонгоод хайлт хийнэ үү"}
	}
	flash := c.flashDuration
	c.mu.Unlock()

	c.surface.FlashMarker(p, label, flash)
}

// SetStartInput and SetEndInput mirror manual edits of the coordinate
// fields. Values are kept verbatim; validation happens on search.
func (c *RouteController) SetStartInput(lat, lon string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startLat, c.startLon = lat, lon
}

func (c *RouteController) SetEndInput(lat, lon string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endLat, c.endLon = lat, lon
}

// Search validates the inputs, issues the route request, reconciles the
// response shape, and instructs the surface. The trigger is disabled for
// the duration of the request and re-enabled unconditionally when it
// settles, so at most one request is in flight.
func (c *RouteController) Search(ctx context.Context, algorithm pathfinder.Algorithm) State {
	c.mu.Lock()

	if !c.searchEnabled {
		state := c.stateLocked()
		c.mu.Unlock()
		return state
	}
	if c.busy {
		state := c.stateLocked()
		c.mu.Unlock()
		return state
	}

	start, end, err := c.parseInputsLocked()
	if err != nil {
		// Validation failure: report it and take no further action.
		c.status = Status{Level: StatusError, Message: "Координат буруу байна. Бүх талбарыг зөв тоогоор бөглөнө үү."}
		state := c.stateLocked()
		c.mu.Unlock()
		return state
	}

	request := &RouteRequest{
		Algorithm: algorithm,
		Start:     start,
		End:       end,
		Options:   pathfinder.RouteOptions{MaxDepth: c.maxDepth},
	}
	c.lastRequest = request
	c.busy = true
	c.status = Status{Level: StatusInfo, Message: "Хайж байна..."}
	c.mu.Unlock()

	result, err := c.client.RequestRoute(ctx, algorithm, start, end, request.Options)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		c.status = statusForError(err)
		c.logger.Warn("route request failed",
			zap.String("algorithm", string(algorithm)),
			zap.Error(err))
		return c.stateLocked()
	}

	c.lastResult = result
	c.reconcileLocked(result, start, end)
	return c.stateLocked()
}

// reconcileLocked applies the rendering decision policy to a normalized
// route result. Failures leave the prior render untouched.
func (c *RouteController) reconcileLocked(result *pathfinder.RouteResult, start, end geo.Point) {
	switch result.Kind {
	case pathfinder.ResultEmpty:
		c.status = Status{Level: StatusInfo, Message: "Зам олдсонгүй. Цэгүүдийг илүү ойр сонгоно уу."}

	case pathfinder.ResultMulti:
		renders := make([]mapview.PathRender, 0, len(result.Paths))
		for _, path := range result.Paths {
			coords, err := geo.DecodeNodeIDs(path.NodeIDs)
			if err != nil {
				c.status = Status{Level: StatusError, Message: "Серверийн хариу буруу байна."}
				c.logger.Warn("node id decode failed", zap.Error(err))
				return
			}
			renders = append(renders, mapview.PathRender{
				Coordinates: coords,
				DistanceKm:  path.DistanceKm,
				NodeCount:   path.NodeCount,
			})
		}
		if err := c.surface.DrawMultipleRoutes(renders, start, end); err != nil {
			c.status = Status{Level: StatusError, Message: "Зураглал амжилтгүй боллоо."}
			return
		}
		c.status = Status{
			Level:   StatusSuccess,
			Message: fmt.Sprintf("%d зам олдлоо (DFS)", len(renders)),
		}
		best := result.Paths[0]
		c.summary = buildSummary(result, best.DistanceKm, best.NodeCount, len(renders))

	case pathfinder.ResultSingle:
		coords, err := geo.DecodeNodeIDs(result.Single.NodeIDs)
		if err != nil {
			c.status = Status{Level: StatusError, Message: "Серверийн хариу буруу байна."}
			c.logger.Warn("node id decode failed", zap.Error(err))
			return
		}
		if err := c.surface.DrawSingleRoute(coords, start, end); err != nil {
			c.status = Status{Level: StatusError, Message: "Зураглал амжилтгүй боллоо."}
			return
		}
		c.status = Status{
			Level:   StatusSuccess,
			Message: fmt.Sprintf("Зам олдлоо (%s)", result.Algorithm.DisplayName()),
		}
		c.summary = buildSummary(result, result.Single.DistanceKm, len(result.Single.NodeIDs), 1)
	}
}

// Clear disposes all overlays and the results summary and resets the status
// line. SelectionState and the coordinate inputs are deliberately kept: the
// next clicks continue the existing cadence.
func (c *RouteController) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.surface.ClearAll()
	c.summary = nil
	c.lastResult = nil
	c.status = Status{Level: StatusInfo, Message: "Газрын зураг цэвэрлэгдлээ"}
}

// State returns a snapshot for the display layer.
func (c *RouteController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stateLocked()
}

// Selection returns the current selection state.
func (c *RouteController) Selection() SelectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selection
}

// LastRequest returns the last issued request, or nil.
func (c *RouteController) LastRequest() *RouteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastRequest
}

func (c *RouteController) stateLocked() State {
	return State{
		Selection:     c.selection.String(),
		SearchEnabled: c.searchEnabled && !c.busy,
		Busy:          c.busy,
		StartLat:      c.startLat,
		StartLon:      c.startLon,
		EndLat:        c.endLat,
		EndLon:        c.endLon,
		Status:        c.status,
		Summary:       c.summary,
	}
}

func (c *RouteController) parseInputsLocked() (geo.Point, geo.Point, error) {
	start, err := parsePoint(c.startLat, c.startLon)
	if err != nil {
		return geo.Point{}, geo.Point{}, err
	}
	end, err := parsePoint(c.endLat, c.endLon)
	if err != nil {
		return geo.Point{}, geo.Point{}, err
	}
	return start, end, nil
}

func parsePoint(latStr, lonStr string) (geo.Point, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("latitude %q: %w", latStr, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("longitude %q: %w", lonStr, err)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("coordinate out of range: %v", p)
	}
	return p, nil
}

// statusForError maps the client's error taxonomy to user-facing messages.
func statusForError(err error) Status {
	var svcErr *pathfinder.ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case pathfinder.Unreachable:
			return Status{Level: StatusError, Message: "Сервертэй холбогдож чадсангүй. Дахин оролдоно уу."}
		case pathfinder.BadStatus:
			return Status{
				Level:   StatusError,
				Message: fmt.Sprintf("Серверийн алдаа %d: %s", svcErr.StatusCode, svcErr.Body),
			}
		case pathfinder.MalformedResponse:
			return Status{Level: StatusError, Message: "Серверийн хариу буруу байна."}
		}
	}
	return Status{Level: StatusError, Message: "Хайлт амжилтгүй боллоо."}
}

func buildSummary(result *pathfinder.RouteResult, distanceKm float64, nodeCount, pathsShown int) *Summary {
	s := &Summary{
		Algorithm:       result.Algorithm.DisplayName(),
		DistanceKm:      distanceKm,
		DistanceDisplay: fmt.Sprintf("%.2f км", distanceKm),
		NodeCount:       nodeCount,
		ElapsedDisplay:  fmt.Sprintf("%.3f с", result.Elapsed.Seconds()),
		PathsShown:      pathsShown,
	}
	if result.ComputeTime > 0 {
		s.ComputeDisplay = fmt.Sprintf("%.3f с", result.ComputeTime.Seconds())
	}
	return s
}

func formatInput(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
