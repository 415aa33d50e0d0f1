package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/domain"
	"github.com/totcainc/knowledge-shadows/internal/infrastructure/config"
	obs "github.com/totcainc/knowledge-shadows/internal/infrastructure/observability"
	"github.com/totcainc/knowledge-shadows/internal/usecase"
)

type Deps struct {
	Cfg     config.Config
	Logger  *zerolog.Logger
	Metrics *obs.Metrics
	Svc     *usecase.ShadowService
	Monitor *MonitorHub
	Auth    *authStore

	events chan MonitorEvent
}

func NewDeps(cfg config.Config, logger *zerolog.Logger, metrics *obs.Metrics, svc *usecase.ShadowService) *Deps {
	d := &Deps{
		Cfg:     cfg,
		Logger:  logger,
		Metrics: metrics,
		Svc:     svc,
		Monitor: NewMonitorHub(),
		Auth:    newAuthStore(cfg.DevEmail, cfg.DevPassword, time.Duration(cfg.AccessTokenTTLSec)*time.Second),
	}
	d.events = d.Monitor.Subscribe()
	go d.countTransitions()
	return d
}

// countTransitions consumes the hub's in-process event feed and keeps the
// transition counters in step with what dashboards see over the websocket.
// Runs until Close unsubscribes.
func (d *Deps) countTransitions() {
	for ev := range d.events {
		if ev.Type != "status" {
			continue
		}
		d.Metrics.StatusTransitionsTotal.WithLabelValues(string(ev.Status)).Inc()
		switch ev.Status {
		case domain.StatusFailed:
			d.Metrics.ProcessingRunsTotal.WithLabelValues("failed").Inc()
		case domain.StatusReadyForReview:
			d.Metrics.ProcessingRunsTotal.WithLabelValues("ok").Inc()
		}
	}
}

// Close detaches the in-process monitor subscription.
func (d *Deps) Close() {
	d.Monitor.Unsubscribe(d.events)
}

func NewRouterWithDeps(d *Deps) http.Handler {
	return withCORS(d.Cfg, buildBaseMux(d))
}

func buildBaseMux(d *Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    "shadowstub",
			"version": obs.Version,
			"time":    time.Now().UTC(),
		})
	})

	// auth
	mux.HandleFunc("/api/auth/login", d.handleLogin)
	mux.HandleFunc("/api/auth/refresh", d.handleRefresh)
	mux.HandleFunc("/api/auth/logout", d.requireAuth(d.handleLogout))

	// shadows
	mux.HandleFunc("/api/shadows/start", d.requireAuth(d.handleStartShadow))
	mux.HandleFunc("/api/shadows/", d.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/shadows/" {
			d.handleListShadows(w, r)
			return
		}
		d.handleShadowByID(w, r)
	}))

	// media upload + static playback of stored files
	mux.HandleFunc("/api/upload/", d.requireAuth(d.handleUploadVideo))
	mux.Handle("/storage/videos/", http.StripPrefix("/storage/videos/", http.FileServer(http.Dir(d.Cfg.VideoStoragePath))))

	// live status monitor
	mux.HandleFunc("/api/monitor/ws", d.Monitor.HandleWS)

	return mux
}

func withCORS(cfg config.Config, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
