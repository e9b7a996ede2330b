package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Manojseetaram/code-share-clone/internal/api"
	"github.com/Manojseetaram/code-share-clone/internal/config"
	"github.com/Manojseetaram/code-share-clone/internal/room"
	"github.com/Manojseetaram/code-share-clone/internal/store"
	"github.com/Manojseetaram/code-share-clone/internal/sweep"
	"github.com/Manojseetaram/code-share-clone/internal/ws"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	st, err := store.New(cfg.DBPath, cfg.SnippetTTL, logger)
	if err != nil {
		logger.Error("opening store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	sweeper := sweep.New(st, sweep.Config{Interval: cfg.SweepInterval}, logger)
	sweeper.Start()
	defer sweeper.Stop()

	registry := room.NewRegistry(st, logger)
	wsHandler := ws.NewHandler(registry, logger, cfg.AllowedOrigin)
	router := api.NewRouter(api.New(st, registry, logger), wsHandler, cfg.AllowedOrigin, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	logger.Info("codeshare server starting",
		slog.String("addr", cfg.Addr),
		slog.String("db", cfg.DBPath),
		slog.Duration("snippet_ttl", cfg.SnippetTTL))
	for _, route := range []string{
		"GET    /health",
		"GET    /api/stats",
		"GET    /api/check/{slug}",
		"POST   /api/snippets",
		"GET    /api/snippets/{slug}",
		"PATCH  /api/snippets/{slug}",
		"DELETE /api/snippets/{slug}",
		"WS     /ws/{slug}",
	} {
		logger.Info("endpoint", slog.String("route", route))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.String("error", err.Error()))
	}
}
