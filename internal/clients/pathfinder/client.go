// Package pathfinder provides the HTTP client for the remote shortest-path
// routing service. It normalizes the service's heterogeneous per-algorithm
// response shapes into a tagged RouteResult and classifies transport
// failures into typed outcomes.
package pathfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmcloughlin/geohash"
	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/cache"
	"github.com/odbayar/routeview/internal/lib/geo"
)

// HTTPDoer abstracts the HTTP transport so tests can substitute a mock.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues requests to the routing service.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	cache      *cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a routing service client with a default HTTP transport.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return NewClientWithHTTPDoer(baseURL, &http.Client{Timeout: 30 * time.Second}, logger)
}

// NewClientWithHTTPDoer creates a client with a custom transport.
func NewClientWithHTTPDoer(baseURL string, doer HTTPDoer, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: doer,
		cache:      cache.New(),
		cacheTTL:   5 * time.Minute,
		logger:     logger,
		now:        time.Now,
	}
}

// routeResponse is the raw wire shape shared by all three algorithms. Which
// fields are populated depends on the algorithm; normalization reconciles
// them into a RouteResult.
type routeResponse struct {
	Success      bool        `json:"success"`
	Error        string      `json:"error"`
	Algorithm    string      `json:"algorithm"`
	Path         []string    `json:"path"`
	Paths        [][]string  `json:"paths"`
	AllPathsData []*pathData `json:"all_paths_data"`
	PathCount    int         `json:"path_count"`
	Distance     *float64    `json:"distance"`    // meters
	DistanceKm   *float64    `json:"distance_km"` // kilometers
	ComputeTime  string      `json:"computeTime"` // seconds, e.g. "0.123"
}

// pathData is one DFS candidate path record.
type pathData struct {
	Path        []string    `json:"path"`
	Coordinates [][]float64 `json:"coordinates"`
	DistanceKm  float64     `json:"distance_km"`
	Nodes       int         `json:"nodes"`
}

// RequestRoute asks the service for a route between start and end using the
// given algorithm. DFS requests carry a bounded search depth. The returned
// result has the client-observed elapsed duration attached.
func (c *Client) RequestRoute(ctx context.Context, algorithm Algorithm, start, end geo.Point, opts RouteOptions) (*RouteResult, error) {
	if !algorithm.Valid() {
		return nil, fmt.Errorf("unknown algorithm %q", algorithm)
	}

	params := url.Values{}
	params.Set("lat1", formatCoord(start.Lat))
	params.Set("lon1", formatCoord(start.Lon))
	params.Set("lat2", formatCoord(end.Lat))
	params.Set("lon2", formatCoord(end.Lon))
	if algorithm == DFS {
		maxDepth := opts.MaxDepth
		if maxDepth <= 0 {
			maxDepth = DefaultMaxDepth
		}
		params.Set("max_depth", strconv.Itoa(maxDepth))
	}

	began := c.now()

	var raw routeResponse
	if err := c.getJSON(ctx, "/"+string(algorithm), params, &raw); err != nil {
		return nil, err
	}

	elapsed := c.now().Sub(began)

	result, err := normalize(algorithm, &raw)
	if err != nil {
		return nil, &ServiceError{Kind: MalformedResponse, cause: err}
	}
	result.Elapsed = elapsed

	c.logger.Debug("route request settled",
		zap.String("algorithm", string(algorithm)),
		zap.Int("kind", int(result.Kind)),
		zap.Duration("elapsed", elapsed))

	return result, nil
}

// normalize reconciles the loosely-typed wire shape into the tagged union.
func normalize(algorithm Algorithm, raw *routeResponse) (*RouteResult, error) {
	result := &RouteResult{
		Algorithm:   algorithm,
		PathCount:   raw.PathCount,
		ComputeTime: parseComputeTime(raw.ComputeTime),
	}

	if !raw.Success || (len(raw.Path) == 0 && len(raw.AllPathsData) == 0 && len(raw.Paths) == 0) {
		result.Kind = ResultEmpty
		return result, nil
	}

	if algorithm == DFS && len(raw.AllPathsData) > 1 {
		result.Kind = ResultMulti
		result.Paths = make([]CandidatePath, 0, len(raw.AllPathsData))
		for i, data := range raw.AllPathsData {
			if data == nil {
				return nil, fmt.Errorf("all_paths_data[%d] is null", i)
			}
			nodeIDs := data.Path
			if len(nodeIDs) == 0 && i < len(raw.Paths) {
				nodeIDs = raw.Paths[i]
			}
			if len(nodeIDs) == 0 {
				return nil, fmt.Errorf("all_paths_data[%d] has no node sequence", i)
			}
			nodeCount := data.Nodes
			if nodeCount == 0 {
				nodeCount = len(nodeIDs)
			}
			result.Paths = append(result.Paths, CandidatePath{
				NodeIDs:    nodeIDs,
				DistanceKm: data.DistanceKm,
				NodeCount:  nodeCount,
			})
		}
		if result.PathCount == 0 {
			result.PathCount = len(result.Paths)
		}
		return result, nil
	}

	// BFS, Dijkstra, or DFS that degraded to a single discovered path.
	nodeIDs := raw.Path
	if len(nodeIDs) == 0 && len(raw.Paths) > 0 {
		nodeIDs = raw.Paths[0]
	}
	if len(nodeIDs) == 0 {
		result.Kind = ResultEmpty
		return result, nil
	}

	single := &SinglePath{NodeIDs: nodeIDs}
	switch {
	case raw.DistanceKm != nil:
		single.DistanceKm = *raw.DistanceKm
	case raw.Distance != nil:
		single.DistanceKm = *raw.Distance / 1000
	}

	result.Kind = ResultSingle
	result.Single = single
	return result, nil
}

// parseComputeTime parses the service's "0.123" seconds string. A missing or
// unparseable value degrades to zero; it is display-only data.
func parseComputeTime(s string) time.Duration {
	if s == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// GraphStats returns the service's graph summary. Results are cached; they
// are cosmetic and refresh rarely.
func (c *Client) GraphStats(ctx context.Context) (*GraphStats, error) {
	var stats GraphStats
	if found, _ := c.cache.Get("graph:stats", &stats); found {
		return &stats, nil
	}

	if err := c.getJSON(ctx, "/graph/stats", nil, &stats); err != nil {
		return nil, err
	}

	if err := c.cache.Set("graph:stats", stats, c.cacheTTL); err != nil {
		c.logger.Warn("failed to cache graph stats", zap.Error(err))
	}
	return &stats, nil
}

// bboxResponse is the wire shape of /graph/bbox.
type bboxResponse struct {
	BBox   geo.BoundingBox `json:"bbox"`
	Center geo.Point       `json:"center"`
}

// GraphBBox returns the graph's bounding box and center.
func (c *Client) GraphBBox(ctx context.Context) (geo.BoundingBox, geo.Point, error) {
	var raw bboxResponse
	if found, _ := c.cache.Get("graph:bbox", &raw); found {
		return raw.BBox, raw.Center, nil
	}

	if err := c.getJSON(ctx, "/graph/bbox", nil, &raw); err != nil {
		return geo.BoundingBox{}, geo.Point{}, err
	}

	if err := c.cache.Set("graph:bbox", raw, c.cacheTTL); err != nil {
		c.logger.Warn("failed to cache graph bbox", zap.Error(err))
	}
	return raw.BBox, raw.Center, nil
}

// NearestNode looks up the graph node closest to p within maxDistanceKm.
// Lookups are cached by geohash cell; repeated clicks in the same block
// resolve to the same node.
func (c *Client) NearestNode(ctx context.Context, p geo.Point, maxDistanceKm float64) (*NearestNode, error) {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultNearestNodeMaxKm
	}

	key := fmt.Sprintf("nearest:%s:%g", geohash.EncodeWithPrecision(p.Lat, p.Lon, 7), maxDistanceKm)

	var node NearestNode
	if found, _ := c.cache.Get(key, &node); found {
		return &node, nil
	}

	params := url.Values{}
	params.Set("lat", formatCoord(p.Lat))
	params.Set("lon", formatCoord(p.Lon))
	params.Set("max_distance_km", strconv.FormatFloat(maxDistanceKm, 'f', -1, 64))

	if err := c.getJSON(ctx, "/nearest_node", params, &node); err != nil {
		return nil, err
	}

	if err := c.cache.Set(key, node, c.cacheTTL); err != nil {
		c.logger.Warn("failed to cache nearest node", zap.Error(err))
	}
	return &node, nil
}

// CheckHealth reports service liveness. Any transport failure or non-success
// status is unhealthy.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// getJSON performs a GET and decodes the JSON body, classifying failures.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Kind: Unreachable, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &ServiceError{Kind: BadStatus, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Kind: MalformedResponse, cause: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
