// Package web exposes the controller and map surface to the display layer
// over a small local HTTP API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/clients/pathfinder"
	"github.com/odbayar/routeview/internal/lib/geo"
	"github.com/odbayar/routeview/internal/mapview"
	"github.com/odbayar/routeview/internal/services"
)

// SideChannel is the subset of the routing client the web layer proxies:
// cosmetic lookups that never enter the render pipeline.
type SideChannel interface {
	GraphStats(ctx context.Context) (*pathfinder.GraphStats, error)
	NearestNode(ctx context.Context, p geo.Point, maxDistanceKm float64) (*pathfinder.NearestNode, error)
}

// Server wires the HTTP routes.
type Server struct {
	engine     *gin.Engine
	controller *services.RouteController
	surface    *mapview.Surface
	side       SideChannel
	logger     *zap.Logger
}

// New creates the HTTP server.
func New(controller *services.RouteController, surface *mapview.Surface, side SideChannel, corsOrigins []string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(corsOrigins) == 1 && corsOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = corsOrigins
	}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		engine:     engine,
		controller: controller,
		surface:    surface,
		side:       side,
		logger:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)

	api := s.engine.Group("/api")
	api.GET("/state", s.handleState)
	api.POST("/click", s.handleClick)
	api.POST("/search", s.handleSearch)
	api.POST("/clear", s.handleClear)
	api.POST("/hover", s.handleHover)
	api.POST("/hover/end", s.handleHoverEnd)
	api.GET("/overlays", s.handleOverlays)
	api.GET("/overlays.kml", s.handleOverlaysKML)
	api.GET("/graph/stats", s.handleGraphStats)
	api.GET("/nearest", s.handleNearest)
}

// Run serves until the listener fails.
func (s *Server) Run(port int) error {
	return s.engine.Run(fmt.Sprintf(":%d", port))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.State())
}

// pointRequest carries a clicked or hovered coordinate.
type pointRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
}

func (s *Server) handleClick(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}

	s.surface.ClickAt(*req.Lat, *req.Lon)
	c.JSON(http.StatusOK, s.controller.State())
}

// searchRequest names the algorithm to dispatch.
type searchRequest struct {
	Algorithm string `json:"algorithm" binding:"required"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "algorithm is required"})
		return
	}

	algorithm := pathfinder.Algorithm(req.Algorithm)
	if !algorithm.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown algorithm %q", req.Algorithm)})
		return
	}

	state := s.controller.Search(c.Request.Context(), algorithm)
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleClear(c *gin.Context) {
	s.controller.Clear()
	c.JSON(http.StatusOK, s.controller.State())
}

func (s *Server) handleHover(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}

	id, hit := s.surface.HoverAt(*req.Lat, *req.Lon)
	c.JSON(http.StatusOK, gin.H{"hit": hit, "overlay_id": id})
}

func (s *Server) handleHoverEnd(c *gin.Context) {
	s.surface.HoverEnd()
	c.JSON(http.StatusOK, gin.H{"hit": false})
}

func (s *Server) handleOverlays(c *gin.Context) {
	c.JSON(http.StatusOK, s.surface.Snapshot())
}

func (s *Server) handleOverlaysKML(c *gin.Context) {
	c.Header("Content-Type", "application/vnd.google-earth.kml+xml")
	c.Header("Content-Disposition", `attachment; filename="route.kml"`)
	if err := s.surface.ExportKML(c.Writer); err != nil {
		s.logger.Warn("kml export failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

func (s *Server) handleGraphStats(c *gin.Context) {
	stats, err := s.side.GraphStats(c.Request.Context())
	if err != nil {
		// Side-channel data is cosmetic; degrade to "unavailable".
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "stats": stats})
}

func (s *Server) handleNearest(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}

	maxKm := pathfinder.DefaultNearestNodeMaxKm
	if raw := c.Query("max_distance_km"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			maxKm = v
		}
	}

	node, err := s.side.NearestNode(c.Request.Context(), geo.Point{Lat: lat, Lon: lon}, maxKm)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "node": node})
}
