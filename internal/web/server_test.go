package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/clients/pathfinder"
	"github.com/odbayar/routeview/internal/lib/geo"
	"github.com/odbayar/routeview/internal/mapview"
	"github.com/odbayar/routeview/internal/services"
)

// fakeRequester satisfies services.RouteRequester with a scripted result.
type fakeRequester struct {
	result *pathfinder.RouteResult
	err    error
}

func (f *fakeRequester) RequestRoute(ctx context.Context, algorithm pathfinder.Algorithm, start, end geo.Point, opts pathfinder.RouteOptions) (*pathfinder.RouteResult, error) {
	return f.result, f.err
}

// fakeSideChannel satisfies SideChannel.
type fakeSideChannel struct {
	stats    *pathfinder.GraphStats
	statsErr error
	node     *pathfinder.NearestNode
	nodeErr  error
}

func (f *fakeSideChannel) GraphStats(ctx context.Context) (*pathfinder.GraphStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeSideChannel) NearestNode(ctx context.Context, p geo.Point, maxDistanceKm float64) (*pathfinder.NearestNode, error) {
	return f.node, f.nodeErr
}

func newTestServer(t *testing.T, requester *fakeRequester, side *fakeSideChannel) *Server {
	t.Helper()
	logger := zap.NewNop()
	surface := mapview.New(logger)
	controller := services.NewRouteController(requester, surface, logger)
	surface.OnPointSelected(controller.HandleMapClick)
	return New(controller, surface, side, []string{"*"}, logger)
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{})

	w, body := doJSON(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestClickUpdatesSelectionState(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{})

	w, body := doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.92104999, "lon": 106.92695001}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "awaiting_end", body["selection"])
	assert.Equal(t, "47.9210", body["start_lat"])
	assert.Equal(t, "106.9270", body["start_lon"])

	_, body = doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.93, "lon": 106.93}`)
	assert.Equal(t, "awaiting_start", body["selection"])
	assert.Equal(t, "47.9300", body["end_lat"])
}

func TestClickValidation(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{})

	w, _ := doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.92}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchRendersAndReportsSummary(t *testing.T) {
	requester := &fakeRequester{
		result: &pathfinder.RouteResult{
			Algorithm: pathfinder.Dijkstra,
			Kind:      pathfinder.ResultSingle,
			Single: &pathfinder.SinglePath{
				NodeIDs:    []string{"47.9200_106.9200", "47.9300_106.9300"},
				DistanceKm: 1.0,
			},
		},
	}
	s := newTestServer(t, requester, &fakeSideChannel{})

	doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.92, "lon": 106.92}`)
	doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.93, "lon": 106.93}`)

	w, body := doJSON(t, s, http.MethodPost, "/api/search", `{"algorithm": "dijkstra"}`)
	require.Equal(t, http.StatusOK, w.Code)

	status := body["status"].(map[string]interface{})
	assert.Equal(t, "success", status["level"])

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "1.00 км", summary["distance_display"])
	assert.Equal(t, float64(2), summary["node_count"])

	// The render is visible through the overlays endpoint.
	_, overlays := doJSON(t, s, http.MethodGet, "/api/overlays", "")
	lines := overlays["lines"].([]interface{})
	markers := overlays["markers"].([]interface{})
	assert.Len(t, lines, 1)
	assert.Len(t, markers, 2)
}

func TestSearchRejectsUnknownAlgorithm(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{})

	w, _ := doJSON(t, s, http.MethodPost, "/api/search", `{"algorithm": "astar"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearKeepsInputs(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{})

	doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.92, "lon": 106.92}`)

	w, body := doJSON(t, s, http.MethodPost, "/api/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "47.9200", body["start_lat"])
	assert.Equal(t, "awaiting_end", body["selection"])
	assert.Nil(t, body["summary"])
}

func TestOverlaysKML(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{})

	req := httptest.NewRequest(http.MethodGet, "/api/overlays.kml", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "kml")
	assert.Contains(t, w.Body.String(), "<kml")
}

func TestGraphStatsDegradesSilently(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{statsErr: errors.New("down")})

	w, body := doJSON(t, s, http.MethodGet, "/api/graph/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["available"])
}

func TestGraphStatsAvailable(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{
		stats: &pathfinder.GraphStats{Nodes: 54000, Edges: 120000},
	})

	_, body := doJSON(t, s, http.MethodGet, "/api/graph/stats", "")
	assert.Equal(t, true, body["available"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(54000), stats["nodes"])
}

func TestNearestNodePassthrough(t *testing.T) {
	s := newTestServer(t, &fakeRequester{}, &fakeSideChannel{
		node: &pathfinder.NearestNode{NodeID: "47.9210_106.9270", DistanceKm: 0.05},
	})

	_, body := doJSON(t, s, http.MethodGet, "/api/nearest?lat=47.921&lon=106.927", "")
	assert.Equal(t, true, body["available"])
	node := body["node"].(map[string]interface{})
	assert.Equal(t, "47.9210_106.9270", node["node_id"])

	w, _ := doJSON(t, s, http.MethodGet, "/api/nearest?lat=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHoverEndpoints(t *testing.T) {
	requester := &fakeRequester{
		result: &pathfinder.RouteResult{
			Algorithm: pathfinder.Dijkstra,
			Kind:      pathfinder.ResultSingle,
			Single: &pathfinder.SinglePath{
				NodeIDs:    []string{"47.9200_106.9200", "47.9300_106.9300"},
				DistanceKm: 1.0,
			},
		},
	}
	s := newTestServer(t, requester, &fakeSideChannel{})

	doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.92, "lon": 106.92}`)
	doJSON(t, s, http.MethodPost, "/api/click", `{"lat": 47.93, "lon": 106.93}`)
	doJSON(t, s, http.MethodPost, "/api/search", `{"algorithm": "dijkstra"}`)

	_, body := doJSON(t, s, http.MethodPost, "/api/hover", `{"lat": 47.92, "lon": 106.92}`)
	assert.Equal(t, true, body["hit"])

	_, body = doJSON(t, s, http.MethodPost, "/api/hover/end", "")
	assert.Equal(t, false, body["hit"])
}
