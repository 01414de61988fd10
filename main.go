// gossip-persister: persists a Lightning gossip stream into Postgres and
// periodically snapshots the shared network graph to a file. Crash-only:
// any store or snapshot failure aborts the process and supervision restarts
// it; the conflict-ignoring store makes the replay safe.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := newPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect store", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	liveness := store.WatchLiveness(ctx, cfg.livenessInterval())

	graph, err := loadGraphCache(cfg.GraphCachePath)
	if err != nil {
		slog.Error("load graph cache", "err", err)
		os.Exit(1)
	}
	slog.Info("network graph loaded", "channels", graph.ChannelCount())

	persister, gossip := NewGossipPersister(store, graph, cfg.GraphCachePath, logger)
	persistDone := make(chan error, 1)
	go func() { persistDone <- persister.Run(ctx) }()

	if cfg.SyntheticSource {
		slog.Info("using synthetic gossip source", "backfill", cfg.SyntheticBackfill)
		go runSource(ctx, newSyntheticSource(cfg.SyntheticBackfill), graph, gossip, logger)
	} else {
		// The peer-facing sync client attaches here in production builds.
		// Close the channel on shutdown so the persister still drains.
		slog.Info("no gossip source configured, channel stays open")
		go func() {
			<-ctx.Done()
			close(gossip)
		}()
	}

	var synced atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/status", handleStatus(&synced))
	mux.Handle("/metrics", promhttp.Handler())

	// Use http.Server for graceful shutdown on SIGTERM/SIGINT.
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: instrument(mux)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "err", err)
			cancel() // trigger shutdown so main can exit
		}
	}()
	slog.Info("starting", "addr", cfg.ListenAddr)

loop:
	for {
		select {
		case <-persister.SyncDone():
			synced.Store(true)
			slog.Info("historical backfill persisted, downstream may serve")
		case err := <-liveness:
			slog.Error("store liveness", "err", err)
			os.Exit(1)
		case err := <-persistDone:
			if err != nil {
				slog.Error("persister", "err", err)
				os.Exit(1)
			}
			break loop
		case <-ctx.Done():
			// The source closes the gossip channel; let the persister drain.
			if err := <-persistDone; err != nil {
				slog.Error("persister", "err", err)
				os.Exit(1)
			}
			break loop
		}
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleStatus reports whether historical backfill has been persisted.
// Downstream consumers poll this before serving computed results.
func handleStatus(synced *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"synced": synced.Load()})
	}
}

// instrument wraps handlers to record Prometheus metrics.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		method := r.Method
		ww := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		status := statusLabel(ww.status)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter captures status code for Prometheus labeling.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
