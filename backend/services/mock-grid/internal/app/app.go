package app

import (
	"context"

	"go.uber.org/zap"

	"greenlane/backend/services/mock-grid/internal/config"
	httpserver "greenlane/backend/services/mock-grid/internal/http"
	"greenlane/backend/services/mock-grid/internal/http/handlers"
)

// App wires mock-grid dependencies.
type App struct {
	server *httpserver.Server
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) *App {
	router := httpserver.NewRouter(httpserver.Routes{
		Pricing: handlers.NewPricingHandler(nil, logger),
		Health:  handlers.NewHealthHandler(),
	})
	return &App{server: httpserver.NewServer(cfg.HTTPAddress(), router, logger)}
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}
