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

	"calibrator-service/internal/config"
	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/routes"
	"calibrator-service/internal/service"
	"calibrator-service/internal/transport"
	"calibrator-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	gpib   transport.Transport
	device *fluke5440b.Device

	operationService *service.OperationService
	eventBus         *service.EventBus
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
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting calibrator service",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDevice(); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDevice sets up the GPIB transport and the calibrator driver.
func (app *Application) initializeDevice() error {
	gpib, err := transport.New(&app.config.GPIB, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create GPIB transport: %w", err)
	}
	app.gpib = gpib

	app.device = fluke5440b.New(gpib, app.config.Driver, app.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// The service still starts when the instrument is off; the readiness
	// probe stays down until a reset brings the link up.
	if err := app.device.Connect(ctx); err != nil {
		app.logger.Warn("Device connection failed, starting disconnected",
			zap.Error(err),
		)
		return nil
	}

	manufacturer, model, serial, version, err := app.device.GetID(ctx)
	if err != nil {
		app.logger.Warn("Device identification failed", zap.Error(err))
		return nil
	}

	app.logger.Info("Device connected",
		zap.String("manufacturer", manufacturer),
		zap.String("model", model),
		zap.String("serial_number", serial),
		zap.String("version", version),
	)
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	app.eventBus = service.NewEventBus(app.logger)
	app.operationService = service.NewOperationService(app.device, app.eventBus, app.logger)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.device,
		app.operationService,
		app.eventBus,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.Address(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.Address()),
	)
	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Return the instrument to front panel control before dropping the link.
	if err := app.device.Disconnect(ctx); err != nil {
		app.logger.Error("Device disconnect error", zap.Error(err))
	} else {
		app.logger.Info("Device disconnected")
	}

	app.logger.Info("Application shutdown completed")
	app.logger.Sync()
}

func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.waitForShutdown()
	return nil
}
