package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/totcainc/knowledge-shadows/internal/adapters/storage/memory"
	"github.com/totcainc/knowledge-shadows/internal/domain"
	cfgpkg "github.com/totcainc/knowledge-shadows/internal/infrastructure/config"
	"github.com/totcainc/knowledge-shadows/internal/infrastructure/httpapi"
	obs "github.com/totcainc/knowledge-shadows/internal/infrastructure/observability"
	"github.com/totcainc/knowledge-shadows/internal/usecase"
)

func main() {
	cfg := cfgpkg.FromEnv()

	logger := obs.NewLogger(cfg.LogLevel, cfg.DevMode)
	logger.Info().Str("addr", cfg.Addr).Msg("starting shadowstub")

	metrics := obs.NewMetrics()

	store := memory.NewStore(1000, 24*time.Hour)
	processor := usecase.NewSimulatedProcessor(store, store, time.Duration(cfg.ProcessingDelayMs)*time.Millisecond, *logger)
	svc := usecase.NewShadowService(store, store, processor)

	deps := httpapi.NewDeps(cfg, logger, metrics, svc)
	// The hub fans each transition out to websocket dashboards and to the
	// in-process subscriber that keeps the transition counters.
	processor.Notify = func(shadowID string, status domain.Status) {
		deps.Monitor.Broadcast(httpapi.MonitorEvent{Type: "status", ShadowID: shadowID, Status: status})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouterWithDeps(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute, // large uploads on slow links
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	processor.Close()
	deps.Close()
	logger.Info().Msg("shadowstub stopped")
}
