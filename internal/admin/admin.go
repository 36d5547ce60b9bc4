// Package admin exposes a small HTTP surface for operators: liveness,
// the current endpoint snapshot, and forwarding counters. It is never on
// the packet path.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"goji.io"
	"goji.io/pat"

	"github.com/pylonproxy/pylon/internal/endpoint"
	"github.com/pylonproxy/pylon/internal/proxy"
)

type Server struct {
	registry *endpoint.Registry
	engine   *proxy.Server
	stages   []string
}

// New builds the admin server; stages is the configured filter chain
// stage list shown under /config.
func New(registry *endpoint.Registry, engine *proxy.Server, stages []string) *Server {
	return &Server{registry: registry, engine: engine, stages: stages}
}

// Handler returns the admin mux.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/live"), s.live)
	mux.HandleFunc(pat.Get("/config"), s.config)
	mux.HandleFunc(pat.Get("/sessions"), s.sessions)
	return mux
}

// Run serves the admin surface on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	context.AfterFunc(ctx, func() {
		_ = srv.Close()
	})

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type endpointView struct {
	Address  string         `json:"address"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot()
	eps := make([]endpointView, 0, snapshot.Len())
	for _, ep := range snapshot.All() {
		eps = append(eps, endpointView{
			Address:  ep.Addr.String(),
			Metadata: ep.Metadata,
		})
	}

	writeJSON(w, map[string]any{
		"endpoints": eps,
		"filters":   s.stages,
	})
}

func (s *Server) sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
