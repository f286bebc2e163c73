package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/matst80/tnnlr/internal/obs"
	"github.com/matst80/tnnlr/internal/tunnel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runState tracks readiness for the health endpoints.
type runState struct {
	mu      sync.Mutex
	ready   bool
	closing bool
}

func (s *runState) setReady(v bool)   { s.mu.Lock(); s.ready = v; s.mu.Unlock() }
func (s *runState) setClosing(v bool) { s.mu.Lock(); s.closing = v; s.mu.Unlock() }
func (s *runState) isReady() bool     { s.mu.Lock(); defer s.mu.Unlock(); return s.ready && !s.closing }

// startMetricsServer serves Prometheus metrics plus lightweight state and
// health endpoints.
func startMetricsServer(addr string, pool *tunnel.Pool, state *runState, publicURL string) {
	mux := http.NewServeMux()
	mux.Handle("/tnnlr/metrics", promhttp.Handler())
	mux.HandleFunc("/tnnlr/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(collectStats(pool, publicURL))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.isReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		obs.Error("metrics.server", obs.Fields{"err": err.Error(), "addr": addr})
	}
}
