package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tatami/internal/api"
	"tatami/internal/config"
	"tatami/internal/coordinator"
	"tatami/internal/database"
	"tatami/internal/websocket"
)

// Application wires and supervises the service components. Initialization
// order: store, coordinator, transport, API, HTTP server; shutdown runs in
// reverse.
type Application struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *database.Store
	core       *coordinator.Coordinator
	httpServer *http.Server
}

// New builds the application from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open evaluation store: %w", err)
	}

	core := coordinator.New(coordinator.Config{
		LessonDuration: cfg.Lesson.Duration,
		ChatRateLimit:  cfg.Chat.RateLimit,
		ChatRateWindow: cfg.Chat.RateWindow,
	}, logger)

	wsHandler := websocket.NewHandler(core, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, logger)

	apiServer := api.NewServer(core, store, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	return &Application{
		cfg:    cfg,
		logger: logger,
		store:  store,
		core:   core,
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      mux,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
	}, nil
}

// Start brings the coordinator up, then the HTTP listener.
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("starting tatami", "addr", a.httpServer.Addr)

	if err := a.core.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		_ = a.core.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		a.logger.Info("tatami started")
		return nil
	case <-ctx.Done():
		_ = a.core.Stop()
		return ctx.Err()
	}
}

// Stop shuts everything down: listener, coordinator, store.
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("shutting down")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.core.Stop(); err != nil {
		a.logger.Warn("coordinator shutdown", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store shutdown", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (a *Application) Addr() string {
	return a.httpServer.Addr
}
