package alloc

import (
	"math"
	"sync"
)

// ScorerConfig controls the per-agent performance window.
type ScorerConfig struct {
	WindowSize         int     `yaml:"window_size"`
	MinSamples         int     `yaml:"min_samples"`
	ObservationsPerDay float64 `yaml:"observations_per_day"`
	MaxDrawdownUSD     float64 `yaml:"max_drawdown_usd"`
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		WindowSize:         200,
		MinSamples:         5,
		ObservationsPerDay: 24,
		MaxDrawdownUSD:     100,
	}
}

// Score is the composite health reading for one agent.
type Score struct {
	Agent         string  `json:"agent"`
	Value         float64 `json:"value"`
	Sharpe        float64 `json:"sharpe"`
	WinRate       float64 `json:"win_rate"`
	DrawdownRatio float64 `json:"drawdown_ratio"`
	Samples       int     `json:"samples"`
	Provisional   bool    `json:"provisional"`
}

type series struct {
	pnls   []float64
	equity float64
	peak   float64
}

// Scorer maintains a bounded PnL observation window per agent and derives a
// composite score from risk-adjusted return, hit rate, and drawdown usage.
type Scorer struct {
	mu     sync.RWMutex
	cfg    ScorerConfig
	agents map[string]*series
}

func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultScorerConfig().WindowSize
	}
	if cfg.MaxDrawdownUSD <= 0 {
		cfg.MaxDrawdownUSD = DefaultScorerConfig().MaxDrawdownUSD
	}
	return &Scorer{cfg: cfg, agents: make(map[string]*series)}
}

// Record appends one realized PnL observation for an agent.
func (s *Scorer) Record(agent string, pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.agents[agent]
	if !ok {
		sr = &series{}
		s.agents[agent] = sr
	}
	sr.pnls = append(sr.pnls, pnl)
	if len(sr.pnls) > s.cfg.WindowSize {
		sr.pnls = sr.pnls[len(sr.pnls)-s.cfg.WindowSize:]
	}
	sr.equity += pnl
	if sr.equity > sr.peak {
		sr.peak = sr.equity
	}
}

// Score computes the composite score for an agent:
//
//	0.4*clamp(sharpe/2, 0, 1) + 0.3*win_rate + 0.3*(1 - drawdown_ratio)
//
// With fewer than MinSamples observations the sharpe and win-rate terms fall
// back to neutral values and the result is flagged provisional, so a fresh
// agent is neither paused nor boosted on noise.
func (s *Scorer) Score(agent string) Score {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Score{Agent: agent}
	sr, ok := s.agents[agent]
	if !ok {
		sr = &series{}
	}
	out.Samples = len(sr.pnls)

	drawdown := sr.peak - sr.equity
	out.DrawdownRatio = clamp(drawdown/s.cfg.MaxDrawdownUSD, 0, 1)

	sharpeTerm := 0.5
	winTerm := 0.5
	if out.Samples >= s.cfg.MinSamples {
		out.Sharpe = sharpe(sr.pnls, s.cfg.ObservationsPerDay)
		out.WinRate = winRate(sr.pnls)
		sharpeTerm = clamp(out.Sharpe/2, 0, 1)
		winTerm = out.WinRate
	} else {
		out.Provisional = true
	}

	out.Value = 0.4*sharpeTerm + 0.3*winTerm + 0.3*(1-out.DrawdownRatio)
	return out
}

// Drawdown returns the current drawdown from peak equity for an agent.
func (s *Scorer) Drawdown(agent string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.agents[agent]
	if !ok {
		return 0
	}
	return sr.peak - sr.equity
}

func sharpe(pnls []float64, obsPerDay float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	var mean float64
	for _, p := range pnls {
		mean += p
	}
	mean /= float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pnls) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	if obsPerDay <= 0 {
		obsPerDay = 1
	}
	return mean / std * math.Sqrt(obsPerDay)
}

func winRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
