package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/scan"
)

// AgentView is the read model for one scanning agent.
type AgentView struct {
	Agent       string    `json:"agent"`
	Domain      string    `json:"domain"`
	Score       float64   `json:"score"`
	Paused      bool      `json:"paused"`
	ExposureUSD float64   `json:"exposure_usd"`
	RealizedPnL float64   `json:"realized_pnl_usd"`
	ErrorStreak int       `json:"error_streak"`
	LastCycleAt time.Time `json:"last_cycle_at"`
}

// RegimeView is the read model for the regime detector.
type RegimeView struct {
	Active      string  `json:"active"`
	State       string  `json:"state"`
	Confidence  float64 `json:"confidence"`
	VolRatio    float64 `json:"vol_ratio"`
	Direction   float64 `json:"direction"`
	Transitions int     `json:"transitions"`
}

// AppState exposes the running app's state for the API layer.
type AppState interface {
	IsRunning() bool
	PolicySnapshot() governance.Policy
	PolicyHistory() []governance.HistoryEntry
	AgentViews() []AgentView
	RegimeView() RegimeView
	LatestReport() (scan.CycleReport, bool)
	OpenExposure() float64
}

// Server is a read-only HTTP API over the app's state.
type Server struct {
	httpServer *http.Server
	state      AppState
	startedAt  time.Time
	log        zerolog.Logger
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, state AppState, log zerolog.Logger) *Server {
	s := &Server{
		state:     state,
		startedAt: time.Now(),
		log:       log.With().Str("component", "api").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/agents", s.handleAgents).Methods(http.MethodGet)
	r.HandleFunc("/api/regime", s.handleRegime).Methods(http.MethodGet)
	r.HandleFunc("/api/policy", s.handlePolicy).Methods(http.MethodGet)
	r.HandleFunc("/api/policy/history", s.handlePolicyHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/report/latest", s.handleLatestReport).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server stopped")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/status — overall system status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	policy := s.state.PolicySnapshot()
	agents := s.state.AgentViews()
	s.writeJSON(w, map[string]interface{}{
		"running":           s.state.IsRunning(),
		"simulation_only":   policy.SimulationOnly,
		"block_new_intents": policy.BlockNewIntents,
		"policy_version":    policy.Version,
		"regime":            s.state.RegimeView().Active,
		"agents":            len(agents),
		"open_exposure_usd": s.state.OpenExposure(),
		"uptime_s":          time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/agents — per-agent scores, exposure and pause state.
func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	agents := s.state.AgentViews()
	s.writeJSON(w, map[string]interface{}{"agents": agents, "count": len(agents)})
}

// GET /api/regime — regime detector state.
func (s *Server) handleRegime(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.state.RegimeView())
}

// GET /api/policy — the current governance policy document.
func (s *Server) handlePolicy(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.state.PolicySnapshot())
}

// GET /api/policy/history — committed policy versions, oldest first.
func (s *Server) handlePolicyHistory(w http.ResponseWriter, _ *http.Request) {
	history := s.state.PolicyHistory()
	s.writeJSON(w, map[string]interface{}{"versions": history, "count": len(history)})
}

// GET /api/report/latest — the most recent completed cycle report.
func (s *Server) handleLatestReport(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.state.LatestReport()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		s.writeJSON(w, map[string]interface{}{"error": "no cycle completed yet"})
		return
	}
	s.writeJSON(w, report)
}
