package pathfinder

import (
	"fmt"
	"time"

	"github.com/odbayar/routeview/internal/lib/geo"
)

// Algorithm identifies a search algorithm on the routing service.
type Algorithm string

const (
	Dijkstra Algorithm = "dijkstra"
	BFS      Algorithm = "bfs"
	DFS      Algorithm = "dfs"
)

// Valid reports whether the algorithm is one the service understands.
func (a Algorithm) Valid() bool {
	switch a {
	case Dijkstra, BFS, DFS:
		return true
	}
	return false
}

// DisplayName returns the human-readable algorithm name for summaries.
func (a Algorithm) DisplayName() string {
	switch a {
	case Dijkstra:
		return "Dijkstra"
	case BFS:
		return "BFS"
	case DFS:
		return "DFS"
	}
	return string(a)
}

// ResultKind discriminates the shapes a route response normalizes into.
type ResultKind int

const (
	// ResultEmpty means the service succeeded but discovered no route.
	ResultEmpty ResultKind = iota
	// ResultSingle means exactly one route was discovered.
	ResultSingle
	// ResultMulti means DFS discovered more than one candidate route.
	ResultMulti
)

// SinglePath is one ordered node sequence with its total distance.
type SinglePath struct {
	NodeIDs    []string
	DistanceKm float64
}

// CandidatePath is one of several routes discovered by DFS, ranked
// best-first by the service.
type CandidatePath struct {
	NodeIDs    []string
	DistanceKm float64
	NodeCount  int
}

// RouteResult is the normalized outcome of a route request. Exactly one of
// Single or Paths is populated, according to Kind.
type RouteResult struct {
	Algorithm Algorithm
	Kind      ResultKind

	Single *SinglePath     // set when Kind == ResultSingle
	Paths  []CandidatePath // set when Kind == ResultMulti

	// PathCount is the total number of paths the service discovered,
	// reported by DFS even when fewer are returned.
	PathCount int

	// ComputeTime is the service-reported computation time, when present.
	ComputeTime time.Duration

	// Elapsed is the wall-clock duration of the request as observed by the
	// client. Display only; no decision logic depends on it.
	Elapsed time.Duration
}

// RouteOptions carries algorithm-specific request parameters.
type RouteOptions struct {
	// MaxDepth bounds the DFS search depth. Zero means DefaultMaxDepth.
	// Ignored for other algorithms.
	MaxDepth int
}

// DefaultMaxDepth caps DFS response size and latency.
const DefaultMaxDepth = 50

// DefaultNearestNodeMaxKm is the default search radius for nearest-node
// lookups.
const DefaultNearestNodeMaxKm = 10.0

// GraphStats is the service's graph summary.
type GraphStats struct {
	Nodes         int       `json:"nodes"`
	Edges         int       `json:"edges"`
	AvgDegree     float64   `json:"avg_degree"`
	MaxDegree     int       `json:"max_degree"`
	MinDegree     int       `json:"min_degree"`
	IsolatedNodes int       `json:"isolated_nodes"`
	BBox          []float64 `json:"bbox"` // [min_lat, max_lat, min_lon, max_lon]
}

// BoundingBox converts the raw 4-element bbox into a geo.BoundingBox. The
// boolean is false when the service omitted or truncated it.
func (s GraphStats) BoundingBox() (geo.BoundingBox, bool) {
	if len(s.BBox) != 4 {
		return geo.BoundingBox{}, false
	}
	return geo.BoundingBox{
		MinLat: s.BBox[0],
		MaxLat: s.BBox[1],
		MinLon: s.BBox[2],
		MaxLon: s.BBox[3],
	}, true
}

// NearestNode is the graph node closest to a queried coordinate.
type NearestNode struct {
	NodeID     string  `json:"node_id"`
	DistanceKm float64 `json:"distance_km"`
}

// ErrorKind classifies service failures.
type ErrorKind int

const (
	// Unreachable means the transport could not be reached at all.
	Unreachable ErrorKind = iota
	// BadStatus means the service answered with a non-success status.
	BadStatus
	// MalformedResponse means the body did not match the expected shape.
	MalformedResponse
)

// ServiceError is a classified failure from the routing service.
type ServiceError struct {
	Kind       ErrorKind
	StatusCode int    // set for BadStatus
	Body       string // raw diagnostic body, set for BadStatus
	cause      error
}

func (e *ServiceError) Error() string {
	switch e.Kind {
	case Unreachable:
		return fmt.Sprintf("routing service unreachable: %v", e.cause)
	case BadStatus:
		return fmt.Sprintf("routing service error %d: %s", e.StatusCode, e.Body)
	case MalformedResponse:
		return fmt.Sprintf("malformed routing service response: %v", e.cause)
	}
	return "routing service error"
}

func (e *ServiceError) Unwrap() error {
	return e.cause
}
