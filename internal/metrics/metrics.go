// Package metrics exposes the control loop's Prometheus series:
//
//	ploy_cycles_total{agent}                – finished scan cycles
//	ploy_cycle_skipped_ticks_total{agent}   – ticks dropped by the single-flight guard
//	ploy_candidates_scanned_total{agent}    – candidates pulled from discovery
//	ploy_decisions_total{agent,action}      – cycle lines by action (TRADE|PASS|MONITOR)
//	ploy_judge_verdicts_total{kind}         – judge answers by kind
//	ploy_gate_decisions_total{kind}         – admission gate outcomes
//	ploy_dispatch_total{status,simulated}   – dispatch outcomes
//	ploy_policy_version                     – current governance policy version
//	ploy_agent_score{agent}                 – latest allocator composite score
//	ploy_agent_paused{agent}                – 1 while an agent is paused
//	ploy_regime{label}                      – 1 for the active regime label
//	ploy_open_exposure_usd                  – live non-simulated notional
//
// Served by the API server at /metrics via promhttp.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/regime"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_cycles_total",
			Help: "Finished scan cycles",
		},
		[]string{"agent"},
	)

	skippedTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_cycle_skipped_ticks_total",
			Help: "Scheduled ticks skipped because a cycle was still in flight",
		},
		[]string{"agent"},
	)

	candidatesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_candidates_scanned_total",
			Help: "Candidates pulled from market discovery",
		},
		[]string{"agent"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_decisions_total",
			Help: "Cycle report lines by final action",
		},
		[]string{"agent", "action"},
	)

	judgeVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_judge_verdicts_total",
			Help: "Judge verdicts by kind",
		},
		[]string{"kind"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_gate_decisions_total",
			Help: "Admission gate outcomes",
		},
		[]string{"kind"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ploy_dispatch_total",
			Help: "Order dispatch outcomes",
		},
		[]string{"status", "simulated"},
	)

	policyVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ploy_policy_version",
			Help: "Current governance policy version",
		},
	)

	agentScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ploy_agent_score",
			Help: "Latest composite performance score per agent",
		},
		[]string{"agent"},
	)

	agentPaused = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ploy_agent_paused",
			Help: "1 while the agent is paused by policy",
		},
		[]string{"agent"},
	)

	regimeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ploy_regime",
			Help: "Active market regime (1 on the active label)",
		},
		[]string{"label"},
	)

	openExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ploy_open_exposure_usd",
			Help: "Live non-simulated notional across all agents",
		},
	)
)

func init() {
	prometheus.MustRegister(
		cyclesTotal, skippedTicks, candidatesScanned, decisionsTotal,
		judgeVerdicts, gateDecisions, dispatchTotal,
		policyVersion, agentScore, agentPaused, regimeGauge, openExposure,
	)
}

// ObserveCycle records a finished cycle and its candidate count.
func ObserveCycle(agent string, scanned int) {
	cyclesTotal.WithLabelValues(agent).Inc()
	candidatesScanned.WithLabelValues(agent).Add(float64(scanned))
}

// ObserveDecision counts a cycle line by final action.
func ObserveDecision(agent, action string) {
	decisionsTotal.WithLabelValues(agent, action).Inc()
}

// ObserveDispatch counts a dispatch outcome.
func ObserveDispatch(status string, simulated bool) {
	dispatchTotal.WithLabelValues(status, strconv.FormatBool(simulated)).Inc()
}

// ObservePolicy records a committed policy version and the paused set.
func ObservePolicy(entry governance.HistoryEntry, agents []string) {
	policyVersion.Set(float64(entry.Version))
	paused := make(map[string]bool, len(entry.Document.PausedAgents))
	for _, a := range entry.Document.PausedAgents {
		paused[a] = true
	}
	for _, a := range agents {
		v := 0.0
		if paused[a] {
			v = 1.0
		}
		agentPaused.WithLabelValues(a).Set(v)
	}
}

// SetAgentScore publishes an allocator pass score.
func SetAgentScore(agent string, score float64) {
	agentScore.WithLabelValues(agent).Set(score)
}

// SetRegime flips the regime gauge to the active label.
func SetRegime(active regime.Label) {
	for _, label := range []regime.Label{regime.HighVol, regime.LowVol, regime.Trending, regime.Ranging} {
		v := 0.0
		if label == active {
			v = 1.0
		}
		regimeGauge.WithLabelValues(label.String()).Set(v)
	}
}

// SetOpenExposure publishes current live notional.
func SetOpenExposure(usd float64) {
	openExposure.Set(usd)
}

// IncSkippedTick counts a single-flight skip.
func IncSkippedTick(agent string) {
	skippedTicks.WithLabelValues(agent).Inc()
}

// ObserveJudgeVerdict counts a judge answer.
func ObserveJudgeVerdict(kind string) {
	judgeVerdicts.WithLabelValues(kind).Inc()
}

// ObserveGateDecision counts an admission outcome.
func ObserveGateDecision(kind string) {
	gateDecisions.WithLabelValues(kind).Inc()
}
