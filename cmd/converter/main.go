package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lyzr/glbconvert/cmd/converter/container"
	convmw "github.com/lyzr/glbconvert/cmd/converter/middleware"
	"github.com/lyzr/glbconvert/cmd/converter/routes"
	"github.com/lyzr/glbconvert/common/bootstrap"
	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/db"
	"github.com/lyzr/glbconvert/common/repository"
	"github.com/lyzr/glbconvert/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (logger, DB, Redis, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "converter",
		bootstrap.WithDBInitHook(func(d *db.DB) error {
			return repository.NewConversionRecordRepository(d).EnsureSchema(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap converter: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Provision external tools in the background; /ready reflects progress
	go func() {
		report := serviceContainer.Provision(ctx)
		components.Logger.Info("tool provisioning finished", "ready", report.Ready, "degraded", report.Degraded)
	}()

	e := setupEcho()
	setupMiddleware(e, components.Config)
	registerRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(convmw.RequestContext())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Storage.MaxUploadMB)))
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterHealthRoutes(e, serviceContainer)
	routes.RegisterConversionRoutes(e, serviceContainer)
}

// startServer serves until SIGINT/SIGTERM. The write timeout covers a full
// conversion, an install and a compression back to back.
func startServer(e *echo.Echo, components *bootstrap.Components) {
	cfg := components.Config
	write := cfg.Tools.ConvertTimeout + cfg.Tools.InstallTimeout + cfg.Tools.CompressTimeout + time.Minute

	srv := server.New("converter", cfg.Service.Port, e, components.Logger).
		WithTimeouts(5*time.Minute, write)

	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		components.Shutdown(context.Background())
		os.Exit(1)
	}
}
