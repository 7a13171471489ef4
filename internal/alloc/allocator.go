package alloc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/regime"
)

// Config controls pause, resume, and sizing behavior.
type Config struct {
	PauseScore          float64       `yaml:"pause_score"`
	ResumeScore         float64       `yaml:"resume_score"`
	ResumeCooldown      time.Duration `yaml:"resume_cooldown"`
	MaxSingleAllocation float64       `yaml:"max_single_allocation"`
	BankrollUSD         float64       `yaml:"bankroll_usd"`
	BaseTotalNotional   float64       `yaml:"base_total_notional_usd"`
}

func DefaultConfig() Config {
	return Config{
		PauseScore:          0.30,
		ResumeScore:         0.50,
		ResumeCooldown:      15 * time.Minute,
		MaxSingleAllocation: 0.40,
		BankrollUSD:         1000,
		BaseTotalNotional:   500,
	}
}

// RegimeSource exposes the confirmed regime label.
type RegimeSource interface {
	Active() regime.Label
}

// ScoreSource exposes per-agent composite scores.
type ScoreSource interface {
	Score(agent string) Score
}

// Result summarizes one rebalance pass.
type Result struct {
	Paused        []string           `json:"paused"`
	Resumed       []string           `json:"resumed"`
	Suppressed    []string           `json:"suppressed"`
	Ceilings      map[string]float64 `json:"ceilings"`
	Regime        string             `json:"regime"`
	PolicyVersion int                `json:"policy_version"`
}

// Allocator adjusts per-agent capital ceilings and pause state from scores
// and the confirmed regime, committing each pass as one attributed policy
// write. It always re-reads the committed document before computing, so a
// concurrent operator write is never silently reverted mid-pass.
type Allocator struct {
	cfg    Config
	store  *governance.Store
	scores ScoreSource
	regsrc RegimeSource
	log    zerolog.Logger
	now    func() time.Time

	pausedAt map[string]time.Time
}

func New(cfg Config, store *governance.Store, scores ScoreSource, regsrc RegimeSource, log zerolog.Logger) *Allocator {
	return &Allocator{
		cfg:      cfg,
		store:    store,
		scores:   scores,
		regsrc:   regsrc,
		log:      log.With().Str("component", "allocator").Logger(),
		now:      time.Now,
		pausedAt: make(map[string]time.Time),
	}
}

// Rebalance runs one allocation pass over the given agents and commits the
// resulting policy document. An agent is paused when its score drops below
// the pause threshold, unless pausing would empty the active set; that
// request is suppressed and logged instead. A paused agent resumes once its
// score recovers past the resume threshold and the cooldown has elapsed.
func (a *Allocator) Rebalance(ctx context.Context, agents []string, reason string) (Result, error) {
	policy := a.store.Snapshot()
	label := a.regsrc.Active()
	profile := regime.ProfileFor(label)
	now := a.now()

	res := Result{Ceilings: make(map[string]float64), Regime: label.String()}

	paused := make(map[string]bool, len(agents))
	for _, agent := range policy.PausedAgents {
		paused[agent] = true
		if _, ok := a.pausedAt[agent]; !ok {
			// Paused outside this allocator (operator write); start the
			// cooldown clock now.
			a.pausedAt[agent] = now
		}
	}

	activeCount := 0
	for _, agent := range agents {
		if !paused[agent] {
			activeCount++
		}
	}

	scores := make(map[string]Score, len(agents))
	for _, agent := range agents {
		scores[agent] = a.scores.Score(agent)
	}

	for _, agent := range agents {
		score := scores[agent]
		switch {
		case !paused[agent] && score.Value < a.cfg.PauseScore:
			if activeCount <= 1 {
				res.Suppressed = append(res.Suppressed, agent)
				a.log.Warn().
					Str("agent", agent).
					Float64("score", score.Value).
					Msg("pause suppressed: active set must not empty")
				continue
			}
			paused[agent] = true
			a.pausedAt[agent] = now
			activeCount--
			res.Paused = append(res.Paused, agent)
		case paused[agent] && score.Value >= a.cfg.ResumeScore:
			since, ok := a.pausedAt[agent]
			if !ok || now.Sub(since) < a.cfg.ResumeCooldown {
				continue
			}
			paused[agent] = false
			delete(a.pausedAt, agent)
			activeCount++
			res.Resumed = append(res.Resumed, agent)
		}
	}

	for _, agent := range agents {
		ceiling := scores[agent].Value * profile.MaxIntentPct
		if ceiling > a.cfg.MaxSingleAllocation {
			ceiling = a.cfg.MaxSingleAllocation
		}
		res.Ceilings[agent] = ceiling
	}

	doc := policy
	doc.RegimeLabel = label.String()
	doc.MaxTotalNotional = a.cfg.BaseTotalNotional * profile.ExposureScale
	doc.AgentCeilings = res.Ceilings
	doc.PausedAgents = nil
	for agent := range paused {
		if paused[agent] {
			doc.PausedAgents = append(doc.PausedAgents, agent)
		}
	}
	sort.Strings(doc.PausedAgents)

	committed, err := a.store.Update(ctx, governance.Update{
		Document: doc,
		Author:   "allocator",
		Reason:   rebalanceReason(reason, label, scores),
	})
	if err != nil {
		return Result{}, fmt.Errorf("rebalance: %w", err)
	}
	res.PolicyVersion = committed.Version
	return res, nil
}

func rebalanceReason(base string, label regime.Label, scores map[string]Score) string {
	parts := make([]string, 0, len(scores))
	agents := make([]string, 0, len(scores))
	for agent := range scores {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		parts = append(parts, fmt.Sprintf("%s=%.2f", agent, scores[agent].Value))
	}
	reason := fmt.Sprintf("regime=%s, scores: %s", label, strings.Join(parts, ", "))
	if base != "" {
		reason = base + "; " + reason
	}
	return reason
}
