// Package api exposes the discovery operations over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/acpipe/acpipe/internal/config"
	"github.com/acpipe/acpipe/internal/metrics"
)

// Scanner runs one process-table scan and returns the discovered
// AppContainer pipe prefixes.
type Scanner func() ([]string, error)

type App struct {
	scan    Scanner
	cfg     *config.Config
	metrics *metrics.Collector
	log     *slog.Logger
}

func NewApp(scan Scanner, cfg *config.Config, collector *metrics.Collector, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	return &App{scan: scan, cfg: cfg, metrics: collector, log: log}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(a.authMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ready\n") })
	r.Get("/metrics", a.metrics.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/appcontainers/pipe-prefixes", a.listPipePrefixes)

		// Operation name retained for host runtimes that call it directly.
		r.Get("/ops/getAppContainerProcessTokens", a.getAppContainerProcessTokens)
	})

	return r
}

func (a *App) authMiddleware(next http.Handler) http.Handler {
	if strings.EqualFold(a.cfg.Auth.Type, "none") {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.cfg.Auth.Header)
		if key == "" || !a.keyAllowed(key) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) keyAllowed(key string) bool {
	for _, k := range a.cfg.Auth.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// runScan executes one scan and records metrics and logs for it. The scan is
// synchronous and uncached: every request observes the process table as it is
// at that moment.
func (a *App) runScan() ([]string, string, error) {
	scanID := uuid.NewString()
	start := time.Now()
	prefixes, err := a.scan()
	a.metrics.ObserveScan(len(prefixes), time.Since(start), err)
	if err != nil {
		a.log.Error("scan failed", "scan_id", scanID, "error", err)
		return nil, scanID, err
	}
	if prefixes == nil {
		prefixes = []string{}
	}
	a.log.Debug("scan complete",
		"scan_id", scanID,
		"prefixes", len(prefixes),
		"duration", time.Since(start))
	return prefixes, scanID, nil
}

func (a *App) listPipePrefixes(w http.ResponseWriter, r *http.Request) {
	prefixes, scanID, err := a.runScan()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id":  scanID,
		"prefixes": prefixes,
		"count":    len(prefixes),
	})
}

// getAppContainerProcessTokens answers with the bare array shape the original
// host-runtime binding returned.
func (a *App) getAppContainerProcessTokens(w http.ResponseWriter, r *http.Request) {
	prefixes, _, err := a.runScan()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, prefixes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
