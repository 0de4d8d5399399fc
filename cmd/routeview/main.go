package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/odbayar/routeview/internal/clients/pathfinder"
	"github.com/odbayar/routeview/internal/config"
	"github.com/odbayar/routeview/internal/mapview"
	"github.com/odbayar/routeview/internal/services"
	"github.com/odbayar/routeview/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// A local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Logging.Development)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	client := pathfinder.NewClientWithHTTPDoer(
		cfg.Service.BaseURL,
		&http.Client{Timeout: cfg.Service.Timeout},
		logger,
	)

	surface := mapview.New(logger)
	controller := services.NewRouteController(client, surface, logger)
	controller.SetMaxDepth(cfg.Service.MaxDepth)
	controller.SetFlashDuration(cfg.Map.FlashDuration)
	surface.OnPointSelected(controller.HandleMapClick)

	// Readiness gate: the health check and the cosmetic seed queries run
	// sequentially before the interface is served. A dead service disables
	// search for the whole session.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	healthy := client.CheckHealth(ctx)
	controller.SetSearchEnabled(healthy)

	if healthy {
		if stats, err := client.GraphStats(ctx); err == nil {
			fields := []zap.Field{
				zap.Int("nodes", stats.Nodes),
				zap.Int("edges", stats.Edges),
			}
			if bbox, ok := stats.BoundingBox(); ok {
				center := bbox.Center()
				fields = append(fields,
					zap.Float64("center_lat", center.Lat),
					zap.Float64("center_lon", center.Lon))
			}
			logger.Info("routing graph loaded", fields...)
		} else {
			logger.Warn("graph stats unavailable", zap.Error(err))
		}
	} else {
		logger.Error("routing service unhealthy, search disabled for this session",
			zap.String("base_url", cfg.Service.BaseURL))
	}
	cancel()

	server := web.New(controller, surface, client, cfg.Server.CorsOrigins, logger)

	logger.Info("route viewer starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Service.BaseURL),
		zap.Bool("search_enabled", healthy))

	if err := server.Run(cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
