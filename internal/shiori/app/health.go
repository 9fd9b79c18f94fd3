package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/shiori/common/version"
	"github.com/bdobrica/shiori/internal/shiori/identity"
)

// HealthServer exposes /health and /status.
// It is optional; Shiori runs without it when HealthAddr is empty.
type HealthServer struct {
	addr      string
	status    StatusProvider
	startedAt time.Time
	mux       *http.ServeMux
}

// StatusProvider supplies the runtime figures reported by /status.
type StatusProvider interface {
	ExchangeCount(ctx context.Context) (int, error)
	CacheSize() int
	Identity() identity.Identity
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSecs    float64   `json:"uptime_seconds"`
	ExchangeCount int       `json:"exchange_count"`
	CachedRooms   int       `json:"cached_distributions"`
	Identity      struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
		Tag      string `json:"tag"`
	} `json:"identity"`
}

// NewHealthServer creates the server; Serve starts it.
func NewHealthServer(addr string, sp StatusProvider) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		status:    sp,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("GET /health", hs.handleHealth)
	mux.HandleFunc("GET /status", hs.handleStatus)
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Serve listens on the configured address until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	server := &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown error", "err", err)
		}
	}()

	slog.Info("health server listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
	}
	if h.status != nil {
		if n, err := h.status.ExchangeCount(r.Context()); err == nil {
			resp.ExchangeCount = n
		} else {
			slog.Warn("status: failed to count exchanges", "err", err)
		}
		resp.CachedRooms = h.status.CacheSize()
		id := h.status.Identity()
		resp.Identity.ID = id.ID
		resp.Identity.FullName = id.FullName()
		resp.Identity.Tag = id.Handle()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
