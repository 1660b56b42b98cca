package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sluice/internal/logging"
	"sluice/internal/metrics"
	"sluice/internal/processor"
)

// Controller is the engine surface the control plane drives. The engine
// hands out snapshots only; nothing here mutates shared state directly.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() processor.Status
	Metrics() metrics.Snapshot
	Health() metrics.Health
	FlushMetrics()
}

const stopGrace = 30 * time.Second

type Server struct {
	http *http.Server
	lis  net.Listener
}

func StartServer(port int, ctl Controller) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stream/start", func(w http.ResponseWriter, r *http.Request) {
		err := ctl.Start(r.Context())
		switch {
		case errors.Is(err, processor.ErrAlreadyRunning):
			writeJSON(w, http.StatusConflict, map[string]string{"message": "stream is already running"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"message": "stream processing started"})
		}
	})
	mux.HandleFunc("POST /api/stream/stop", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), stopGrace)
		defer cancel()
		err := ctl.Stop(ctx)
		switch {
		case errors.Is(err, processor.ErrNotRunning):
			writeJSON(w, http.StatusConflict, map[string]string{"message": "stream is already stopped"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"message": "stream processing stopped"})
		}
	})
	mux.HandleFunc("GET /api/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  ctl.Status(),
			"metrics": ctl.Metrics(),
		})
	})
	mux.HandleFunc("POST /api/metrics/flush", func(w http.ResponseWriter, _ *http.Request) {
		ctl.FlushMetrics()
		writeJSON(w, http.StatusOK, map[string]string{"message": "metrics flushed"})
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		h := ctl.Health()
		code := http.StatusOK
		if !h.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	})

	s := &Server{
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		lis: lis,
	}
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	return s.http.Serve(s.lis)
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Warn("transport: write response", "err", err)
	}
}
