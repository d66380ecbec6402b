package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/AstroMined/debtonator/internal/config"
	"github.com/AstroMined/debtonator/internal/service"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server
	Flags  service.FeatureFlagService
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, flags service.FeatureFlagService) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Flags: flags}
}

// Start loads all persisted flags into the registry before the server
// begins accepting requests.
func (a *App) Start(ctx context.Context) error {
	return a.Flags.Initialize(ctx)
}
