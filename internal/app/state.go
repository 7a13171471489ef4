package app

import (
	"time"

	"github.com/ploylabs/ploy/internal/api"
	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/scan"
)

// The app is the API server's read model.
var _ api.AppState = (*App)(nil)

func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *App) PolicySnapshot() governance.Policy {
	return a.policies.Snapshot()
}

func (a *App) PolicyHistory() []governance.HistoryEntry {
	return a.policies.History()
}

func (a *App) AgentViews() []api.AgentView {
	policy := a.policies.Snapshot()

	a.mu.RLock()
	lastCycle := make(map[string]time.Time, len(a.lastCycle))
	for agent, at := range a.lastCycle {
		lastCycle[agent] = at
	}
	a.mu.RUnlock()

	views := make([]api.AgentView, 0, len(a.cfg.Agents))
	for _, agentCfg := range a.cfg.Agents {
		views = append(views, api.AgentView{
			Agent:       agentCfg.Agent,
			Domain:      agentCfg.Domain,
			Score:       a.scorer.Score(agentCfg.Agent).Value,
			Paused:      policy.AgentPaused(agentCfg.Agent),
			ExposureUSD: a.tracker.AgentExposure(agentCfg.Agent),
			RealizedPnL: a.tracker.AgentRealizedPnL(agentCfg.Agent),
			ErrorStreak: a.tracker.ConsecutiveErrors(agentCfg.Agent),
			LastCycleAt: lastCycle[agentCfg.Agent],
		})
	}
	return views
}

func (a *App) RegimeView() api.RegimeView {
	reading := a.detector.LastReading()
	return api.RegimeView{
		Active:      a.detector.Active().String(),
		State:       a.detector.State().String(),
		Confidence:  reading.Confidence,
		VolRatio:    reading.VolRatio,
		Direction:   reading.Direction,
		Transitions: len(a.detector.Transitions()),
	}
}

func (a *App) LatestReport() (scan.CycleReport, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastReport == nil {
		return scan.CycleReport{}, false
	}
	return *a.lastReport, true
}

func (a *App) OpenExposure() float64 {
	return a.tracker.OpenExposure()
}
