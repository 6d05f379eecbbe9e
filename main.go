package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stevemurr/simple-user-server/config"
	"github.com/stevemurr/simple-user-server/handler"
	"github.com/stevemurr/simple-user-server/metrics"
	"github.com/stevemurr/simple-user-server/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal; the environment alone is enough.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)
	if envErr != nil {
		slog.Debug("no .env file loaded", "error", envErr)
	}

	backend, err := store.NewBackend(cfg.Store.Backend, cfg.Store.DataFile)
	if err != nil {
		log.Fatalf("failed to create store (backend=%s): %v", cfg.Store.Backend, err)
	}

	m := metrics.New()
	persister, err := store.NewPersister(backend, store.WithSaveHook(m.ObservePersist))
	if err != nil {
		log.Fatalf("failed to start persister: %v", err)
	}

	users := store.NewUsers(persister)
	users.Load(backend)

	h := handler.New(users,
		handler.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		handler.WithMiddleware(m.Middleware),
	)

	if cfg.Metrics.Address != "" {
		go m.Run(ctx, cfg.Metrics.Address)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("user server starting", "address", srv.Addr, "store", cfg.Store.Backend, "data", cfg.Store.DataFile)
	serveErr := runServer(ctx, srv)

	// Write whatever the last requests changed before exiting.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := persister.Flush(flushCtx); err != nil {
		slog.Error("failed to flush pending writes", "error", err)
	}
	cancel()
	persister.Close()
	if err := backend.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}

	if serveErr != nil {
		slog.Error("server error", "error", serveErr)
		os.Exit(1)
	}
	slog.Info("user server stopped")
}

func setupLogging(cfg config.LogConfig) {
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
