// Package api provides HTTP and WebSocket status endpoints for the oracle node.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/justmert/near-oracle/pkg/feeder/scheduler"
	"github.com/justmert/near-oracle/pkg/logging"
	"github.com/justmert/near-oracle/pkg/metrics"
)

// StatusProvider exposes the update loop state.
type StatusProvider interface {
	State() scheduler.State
	LastCycle() *scheduler.CycleResult
}

// TallyProvider exposes consecutive failure counts per source.
type TallyProvider interface {
	Snapshot() map[string]int
}

// Server represents the HTTP API server.
type Server struct {
	addr     string
	status   StatusProvider
	tally    TallyProvider
	server   *http.Server
	logger   *logging.Logger
	wsServer *WebSocketServer // Optional WebSocket server for streaming

	mu     sync.RWMutex
	latest map[string]scheduler.Publication
}

var _ scheduler.Publisher = (*Server)(nil)

// NewServer creates a new HTTP API server.
func NewServer(addr string, status StatusProvider, tally TallyProvider, logger *logging.Logger) *Server {
	return &Server{
		addr:   addr,
		status: status,
		tally:  tally,
		logger: logger,
		latest: make(map[string]scheduler.Publication),
	}
}

// SetWebSocketServer sets the WebSocket server for streaming updates.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Publish records the latest publication of an asset and forwards it to
// WebSocket clients.
func (s *Server) Publish(p scheduler.Publication) {
	s.mu.Lock()
	s.latest[p.AssetID] = p
	s.mu.Unlock()

	if s.wsServer != nil {
		s.wsServer.SendUpdate(p)
	}
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/v1/sources", s.handleSources)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

type cycleView struct {
	ID        string    `json:"id"`
	Finished  time.Time `json:"finished"`
	Duration  string    `json:"duration"`
	Published int       `json:"published"`
	Attempted int       `json:"attempted"`
	Skipped   int       `json:"skipped"`
}

type healthView struct {
	Status    string     `json:"status"`
	State     string     `json:"state"`
	LastCycle *cycleView `json:"last_cycle,omitempty"`
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	view := healthView{Status: "ok"}
	if s.status != nil {
		view.State = string(s.status.State())
		if c := s.status.LastCycle(); c != nil {
			view.LastCycle = &cycleView{
				ID:        c.ID,
				Finished:  c.Finished,
				Duration:  c.Duration().String(),
				Published: c.Published(),
				Attempted: len(c.Assets),
				Skipped:   c.Skipped,
			}
		}
	}
	s.sendJSON(w, view)
}

// PriceView is one published asset price.
type PriceView struct {
	AssetID    string    `json:"asset_id"`
	Symbol     string    `json:"symbol"`
	Price      string    `json:"price"`
	Multiplier uint64    `json:"multiplier"`
	Decimals   uint8     `json:"decimals"`
	Aggregated float64   `json:"aggregated"`
	Sources    int       `json:"sources"`
	Configured int       `json:"configured_sources"`
	Timestamp  time.Time `json:"timestamp"`
	CycleID    string    `json:"cycle_id"`
}

func newPriceView(p scheduler.Publication) PriceView {
	return PriceView{
		AssetID:    p.AssetID,
		Symbol:     p.Symbol,
		Price:      p.Encoded.String(),
		Multiplier: p.Encoded.Mantissa,
		Decimals:   p.Encoded.Decimals,
		Aggregated: p.Price,
		Sources:    p.Sources,
		Configured: p.Configured,
		Timestamp:  p.Timestamp,
		CycleID:    p.CycleID,
	}
}

// handlePrices handles /v1/prices, optionally filtered by ?asset=<id>.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, status, time.Since(start))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if asset := r.URL.Query().Get("asset"); asset != "" {
		p, ok := s.latest[asset]
		if !ok {
			status = "404"
			http.Error(w, "No price published for asset", http.StatusNotFound)
			return
		}
		s.sendJSON(w, newPriceView(p))
		return
	}

	views := make([]PriceView, 0, len(s.latest))
	for _, p := range s.latest {
		views = append(views, newPriceView(p))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].AssetID < views[j].AssetID })
	s.sendJSON(w, views)
}

// SourceView is the failure state of one source.
type SourceView struct {
	Source              string `json:"source"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// handleSources handles /v1/sources.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, "200", time.Since(start))
	}()

	views := []SourceView{}
	if s.tally != nil {
		for name, n := range s.tally.Snapshot() {
			views = append(views, SourceView{Source: name, ConsecutiveFailures: n})
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Source < views[j].Source })
	s.sendJSON(w, views)
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
