package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Artfain/triad-fedchain/config"
	"github.com/Artfain/triad-fedchain/logging"
	"github.com/Artfain/triad-fedchain/sim"
)

// Server exposes simulation state over REST and streams sealed blocks over a websocket.
type Server struct {
	sim      *sim.Simulation
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer creates a server over s with the configured request rate limit.
func NewServer(s *sim.Simulation, cfg config.APIConfig) *Server {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	srv := &Server{
		sim:     s,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		mux: http.NewServeMux(),
	}
	srv.mux.HandleFunc("GET /chains", srv.getChains)
	srv.mux.HandleFunc("GET /chains/{id}", srv.getChain)
	srv.mux.HandleFunc("GET /reputation", srv.getReputation)
	srv.mux.HandleFunc("GET /rounds", srv.getRounds)
	srv.mux.HandleFunc("GET /validate", srv.validate)
	srv.mux.HandleFunc("GET /ws", srv.handleWebSocket)
	return srv
}

// Handler returns the rate-limited router.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logging.Info("HTTP server running", logging.API, "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", logging.API, "error", err)
	}
}

func (s *Server) getChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Network().Snapshot())
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	peer, ok := s.sim.Network().Peer(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "node not found"})
		return
	}
	chain := peer.Chain()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node":        id,
		"blocks":      chain.Blocks(),
		"link_issues": chain.Verify(),
	})
}

func (s *Server) getReputation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Ledger().Entries())
}

func (s *Server) getRounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.History())
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Report())
}
