package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/scan"
)

type mockAppState struct {
	running   bool
	policy    governance.Policy
	history   []governance.HistoryEntry
	agents    []AgentView
	regime    RegimeView
	report    scan.CycleReport
	hasReport bool
	exposure  float64
}

func (m *mockAppState) IsRunning() bool                          { return m.running }
func (m *mockAppState) PolicySnapshot() governance.Policy        { return m.policy }
func (m *mockAppState) PolicyHistory() []governance.HistoryEntry { return m.history }
func (m *mockAppState) AgentViews() []AgentView                  { return m.agents }
func (m *mockAppState) RegimeView() RegimeView                   { return m.regime }
func (m *mockAppState) OpenExposure() float64                    { return m.exposure }
func (m *mockAppState) LatestReport() (scan.CycleReport, bool)   { return m.report, m.hasReport }

func newTestServer(state AppState) *Server {
	return NewServer(":0", state, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(&mockAppState{})
	rec := get(t, s, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
}

func TestStatus(t *testing.T) {
	policy := governance.Default()
	policy.Version = 3
	state := &mockAppState{
		running:  true,
		policy:   policy,
		agents:   []AgentView{{Agent: "crypto-alpha", Domain: "crypto"}},
		regime:   RegimeView{Active: "high_vol", State: "applied"},
		exposure: 120.5,
	}
	rec := get(t, newTestServer(state), "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["running"] != true {
		t.Fatal("expected running=true")
	}
	if body["simulation_only"] != true {
		t.Fatal("expected simulation_only=true from default policy")
	}
	if body["policy_version"].(float64) != 3 {
		t.Fatalf("expected policy_version 3, got %v", body["policy_version"])
	}
	if body["regime"] != "high_vol" {
		t.Fatalf("expected regime high_vol, got %v", body["regime"])
	}
	if body["agents"].(float64) != 1 {
		t.Fatalf("expected 1 agent, got %v", body["agents"])
	}
	if body["open_exposure_usd"].(float64) != 120.5 {
		t.Fatalf("expected open exposure 120.5, got %v", body["open_exposure_usd"])
	}
}

func TestAgents(t *testing.T) {
	state := &mockAppState{
		agents: []AgentView{
			{Agent: "crypto-alpha", Domain: "crypto", Score: 0.72, ExposureUSD: 40},
			{Agent: "politics-desk", Domain: "politics", Score: 0.31, Paused: true},
		},
	}
	rec := get(t, newTestServer(state), "/api/agents")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["count"].(float64) != 2 {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
	agents := body["agents"].([]interface{})
	first := agents[0].(map[string]interface{})
	if first["agent"] != "crypto-alpha" {
		t.Fatalf("unexpected first agent %v", first["agent"])
	}
	second := agents[1].(map[string]interface{})
	if second["paused"] != true {
		t.Fatal("expected second agent paused")
	}
}

func TestRegime(t *testing.T) {
	state := &mockAppState{
		regime: RegimeView{Active: "trending", State: "confirmed", Confidence: 0.8, Transitions: 2},
	}
	rec := get(t, newTestServer(state), "/api/regime")
	body := decodeMap(t, rec)
	if body["active"] != "trending" {
		t.Fatalf("expected active trending, got %v", body["active"])
	}
	if body["state"] != "confirmed" {
		t.Fatalf("expected state confirmed, got %v", body["state"])
	}
	if body["transitions"].(float64) != 2 {
		t.Fatalf("expected 2 transitions, got %v", body["transitions"])
	}
}

func TestPolicyAndHistory(t *testing.T) {
	policy := governance.Default()
	policy.Version = 2
	policy.PausedAgents = []string{"politics-desk"}
	state := &mockAppState{
		policy: policy,
		history: []governance.HistoryEntry{
			{Version: 1, Author: "operator", Reason: "initial policy", Timestamp: time.Now()},
			{Version: 2, Author: "allocator", Reason: "pause politics-desk", Timestamp: time.Now()},
		},
	}
	s := newTestServer(state)

	rec := get(t, s, "/api/policy")
	body := decodeMap(t, rec)
	if body["version"].(float64) != 2 {
		t.Fatalf("expected version 2, got %v", body["version"])
	}
	paused := body["paused_agents"].([]interface{})
	if len(paused) != 1 || paused[0] != "politics-desk" {
		t.Fatalf("unexpected paused agents %v", paused)
	}

	rec = get(t, s, "/api/policy/history")
	body = decodeMap(t, rec)
	if body["count"].(float64) != 2 {
		t.Fatalf("expected 2 history entries, got %v", body["count"])
	}
}

func TestLatestReportNotFound(t *testing.T) {
	rec := get(t, newTestServer(&mockAppState{}), "/api/report/latest")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first cycle, got %d", rec.Code)
	}
}

func TestLatestReport(t *testing.T) {
	state := &mockAppState{
		hasReport: true,
		report: scan.CycleReport{
			ID:      "cycle-1",
			Agent:   "crypto-alpha",
			Domain:  "crypto",
			Scanned: 12,
			Lines: []scan.Line{
				{Market: "0xabc", Action: scan.ActionPass, Reason: "reward_risk 2.10 below 4.00"},
			},
		},
	}
	rec := get(t, newTestServer(state), "/api/report/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report scan.CycleReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ID != "cycle-1" || report.Agent != "crypto-alpha" {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Lines) != 1 || report.Lines[0].Action != scan.ActionPass {
		t.Fatalf("unexpected lines %+v", report.Lines)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&mockAppState{}), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	s := newTestServer(&mockAppState{})
	req := httptest.NewRequest(http.MethodPost, "/api/policy", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rec.Code)
	}
}
