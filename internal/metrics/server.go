package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// HealthFunc reports the state of every running source by name.
type HealthFunc func() map[string]string

type healthResponse struct {
	Status  string            `json:"status"`
	Sources map[string]string `json:"sources"`
}

// Server serves /metrics and /healthz.
type Server struct {
	log    zerolog.Logger
	server *http.Server
	addr   string
}

// Router builds the chi mux with both routes.
func Router(m *Metrics, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealth(health))
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	return r
}

func handleHealth(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Sources: map[string]string{}}
		if health != nil {
			resp.Sources = health()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Start listens on addr and serves in the background.
func Start(addr string, m *Metrics, health HealthFunc, log zerolog.Logger) (*Server, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	s := &Server{
		log:  log,
		addr: ln.Addr().String(),
		server: &http.Server{
			Handler:           Router(m, health),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics: listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics: serve error")
		}
	}()
	return s, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
