// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mavgate/internal/config"
	"mavgate/internal/handler"
	"mavgate/internal/mavconn"
	"mavgate/internal/routes"
	"mavgate/internal/service"
	"mavgate/internal/utils"
)

// Application represents the main application
type Application struct {
	config        *config.Config
	logger        *zap.Logger
	serviceLogger *utils.ServiceLogger
	server        *http.Server

	registry    *mavconn.ChannelRegistry
	reactor     *mavconn.Reactor
	factory     *mavconn.Factory
	linkService *service.LinkService
	eventBus    *handler.EventBus
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "mavgate")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config:        cfg,
		logger:        logger,
		serviceLogger: serviceLogger,
	}

	app.initializeGateway()
	app.initializeServer()

	return app, nil
}

// initializeGateway wires the connection layer and the link service
func (app *Application) initializeGateway() {
	app.registry = mavconn.NewChannelRegistry(app.logger)
	app.reactor = mavconn.NewReactor(app.logger)
	app.factory = mavconn.NewFactory(app.registry, app.reactor, app.logger)

	app.eventBus = handler.NewEventBus(app.logger)
	go app.eventBus.Start()

	app.linkService = service.NewLinkService(app.factory, app.registry, &app.config.Gateway, app.logger)
	app.linkService.SetEventSink(func(eventType string, data map[string]interface{}) {
		app.eventBus.Publish(handler.Event{
			Type:      eventType,
			Source:    "link_service",
			Data:      data,
			Timestamp: time.Now(),
		})
	})
}

// initializeServer builds the HTTP server around the configured routes
func (app *Application) initializeServer() {
	router := routes.NewRouter(app.config, app.logger, app.linkService, app.eventBus)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}
}

// Start opens the configured endpoints, runs the HTTP server and blocks
// until a shutdown signal arrives
func (app *Application) Start() error {
	app.linkService.OpenConfigured()

	go func() {
		app.logger.Info("HTTP server listening", zap.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	app.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	return app.Shutdown(sig.String())
}

// Shutdown stops the HTTP server, closes all links and stops the reactor
func (app *Application) Shutdown(reason string) error {
	app.serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	app.linkService.Shutdown()
	app.reactor.Stop()

	app.logger.Info("Shutdown complete")
	return app.logger.Sync()
}
