// sheet-server is the spreadsheet analyst HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/api"
	"github.com/BV-BRC/sheet-analyst/internal/app"
	"github.com/BV-BRC/sheet-analyst/internal/config"
	"github.com/BV-BRC/sheet-analyst/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	devMode := flag.Bool("dev", false, "Enable development mode (console logs, no auth, no event bus or audit store)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	// Load configuration (uses defaults if no config file found)
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *port != 0 {
		cfg.Server.Port = *port
	}

	var opts []app.Option
	if *devMode {
		cfg.Log.Development = true
		cfg.Auth.Enabled = false
		opts = append(opts, app.WithoutReporting())
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync()

	a, err := app.New(cfg, logger, opts...)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	server, err := api.NewServer(cfg, a.Engine, a.Charts, a.Metrics, logger)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	// Configure HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting sheet analyst server",
			zap.String("addr", httpServer.Addr),
			zap.String("model", cfg.Model.Model),
			zap.Bool("auth", cfg.Auth.Enabled),
			zap.String("plots", a.Charts.Dir()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
