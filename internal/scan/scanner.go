// Package scan runs the per-agent decision loop: discover candidates,
// compute entry economics, consult the judge, pass the admission gate,
// and dispatch at most one order per cycle.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/dispatch"
	"github.com/ploylabs/ploy/internal/feed"
	"github.com/ploylabs/ploy/internal/gate"
	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/judge"
	obs "github.com/ploylabs/ploy/internal/metrics"
	"github.com/ploylabs/ploy/internal/risk"
)

type Config struct {
	Agent            string        `yaml:"agent"`
	Domain           string        `yaml:"domain"`
	Interval         time.Duration `yaml:"interval"`
	CallBudget       int           `yaml:"call_budget"`
	MinRewardRisk    float64       `yaml:"min_reward_risk"`
	MinExpectedValue float64       `yaml:"min_expected_value"`
	BankrollUSD      float64       `yaml:"bankroll_usd"`
	MaxErrorStreak   int           `yaml:"max_error_streak"`
}

func DefaultConfig(agent, domain string) Config {
	return Config{
		Agent:            agent,
		Domain:           domain,
		Interval:         300 * time.Second,
		CallBudget:       8,
		MinRewardRisk:    4.0,
		MinExpectedValue: 0.05,
		BankrollUSD:      1000,
		MaxErrorStreak:   3,
	}
}

// CandidateSource discovers candidate markets for a domain.
type CandidateSource interface {
	Candidates(ctx context.Context, domain string) ([]feed.Candidate, error)
}

// Dispatcher places the single admitted order of a cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, order dispatch.Order) dispatch.Result
}

// PolicyStore is the slice of the governance store the scanner needs: a
// read snapshot for the gate and a write path for self-pausing.
type PolicyStore interface {
	Snapshot() governance.Policy
	Update(ctx context.Context, u governance.Update) (governance.Policy, error)
}

// ExposureSource reports live exposure and dispatch error streaks.
type ExposureSource interface {
	OpenExposure() float64
	ConsecutiveErrors(agent string) int
}

// Notifier receives the agent self-pause alert.
type Notifier interface {
	NotifyAgentPaused(ctx context.Context, agent, reason string) error
}

// Scanner drives one agent's scan cycles. Single-flight: a tick that
// arrives while a cycle is still running is skipped and counted, never
// queued.
type Scanner struct {
	cfg        Config
	source     CandidateSource
	research   feed.ResearchSource
	judge      judge.Judge
	dispatcher Dispatcher
	policies   PolicyStore
	exposure   ExposureSource
	notifier   Notifier
	log        zerolog.Logger

	// OnReport, when set, receives every finished cycle report.
	OnReport func(CycleReport)

	flight sync.Mutex
	wg     sync.WaitGroup

	mu         sync.RWMutex
	skipped    int
	lastReport *CycleReport
}

func NewScanner(cfg Config, source CandidateSource, research feed.ResearchSource, j judge.Judge, dispatcher Dispatcher, policies PolicyStore, exposure ExposureSource, notifier Notifier, log zerolog.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.CallBudget <= 0 {
		cfg.CallBudget = 8
	}
	if cfg.MaxErrorStreak <= 0 {
		cfg.MaxErrorStreak = 3
	}
	return &Scanner{
		cfg:        cfg,
		source:     source,
		research:   research,
		judge:      j,
		dispatcher: dispatcher,
		policies:   policies,
		exposure:   exposure,
		notifier:   notifier,
		log:        log.With().Str("component", "scan").Str("agent", cfg.Agent).Logger(),
	}
}

// Run ticks cycles until the context ends, then waits for the in-flight
// cycle to finish. The first cycle starts immediately.
func (s *Scanner) Run(ctx context.Context) {
	defer s.wg.Wait()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scanner) tick(ctx context.Context) {
	if !s.flight.TryLock() {
		s.mu.Lock()
		s.skipped++
		n := s.skipped
		s.mu.Unlock()
		obs.IncSkippedTick(s.cfg.Agent)
		s.log.Warn().Int("skipped_ticks", n).Msg("cycle still in flight, tick skipped")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.flight.Unlock()
		report := s.runCycle(ctx)
		s.finish(ctx, report)
	}()
}

// RunCycle executes one cycle synchronously. Used by the one-shot CLI
// path; Run uses the same pipeline behind the single-flight guard.
func (s *Scanner) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.flight.TryLock() {
		return CycleReport{}, fmt.Errorf("cycle already in flight for agent %s", s.cfg.Agent)
	}
	defer s.flight.Unlock()
	report := s.runCycle(ctx)
	s.finish(ctx, report)
	return report, nil
}

func (s *Scanner) finish(ctx context.Context, report CycleReport) {
	s.mu.Lock()
	cp := report
	s.lastReport = &cp
	s.mu.Unlock()

	obs.ObserveCycle(report.Agent, report.Scanned)
	for _, line := range report.Lines {
		obs.ObserveDecision(report.Agent, line.Action)
	}
	if report.Order != nil {
		obs.ObserveDispatch(report.Order.Status, report.Order.Simulated)
	}

	s.log.Info().
		Str("cycle", report.ID).
		Int("scanned", report.Scanned).
		Int("eligible", report.Eligible).
		Int("judged", report.Judged).
		Bool("dispatched", report.Order != nil).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle complete")
	for _, line := range report.Lines {
		s.log.Info().
			Str("cycle", report.ID).
			Str("market", line.Market).
			Str("action", line.Action).
			Str("reason", line.Reason).
			Msg("cycle line")
	}

	if s.OnReport != nil {
		s.OnReport(report)
	}

	s.maybeSelfPause(ctx)
}

// LastReport returns the most recent finished cycle report.
func (s *Scanner) LastReport() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	cp := *s.lastReport
	return &cp
}

// SkippedTicks counts ticks dropped by the single-flight guard.
func (s *Scanner) SkippedTicks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// judged pairs a candidate with its metrics and trade verdict while the
// cycle picks the single best dispatch.
type judged struct {
	cand    feed.Candidate
	metrics risk.Metrics
	verdict judge.Verdict
	line    int
}

func (s *Scanner) runCycle(ctx context.Context) CycleReport {
	report := CycleReport{
		ID:        uuid.NewString(),
		Agent:     s.cfg.Agent,
		Domain:    s.cfg.Domain,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.FinishedAt = time.Now().UTC()
	}()

	// Scanning. A fetch failure is zero candidates, never an aborted
	// cycle.
	candidates, err := s.source.Candidates(ctx, s.cfg.Domain)
	if err != nil {
		s.log.Error().Err(err).Msg("candidate fetch failed")
		report.Note = fmt.Sprintf("candidate fetch failed: %v", err)
		return report
	}
	report.Scanned = len(candidates)

	budget := s.cfg.CallBudget
	var trades []judged

	for _, cand := range candidates {
		if ctx.Err() != nil {
			report.Note = "cycle cancelled"
			return report
		}

		// Filtering: price screen first. Undefined metrics exclude the
		// candidate outright.
		preMetrics, err := risk.Compute(cand.Price, 0)
		if err != nil {
			s.log.Warn().Err(err).Str("market", cand.MarketID).Msg("candidate excluded, bad price")
			continue
		}
		if preMetrics.RewardRisk < s.cfg.MinRewardRisk {
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionPass,
				Reason:   fmt.Sprintf("reward_risk %.2f below %.2f", preMetrics.RewardRisk, s.cfg.MinRewardRisk),
			})
			continue
		}
		report.Eligible++

		// Researching.
		if budget <= 0 {
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionMonitor,
				Reason:   "call budget exhausted",
			})
			continue
		}
		budget--
		research, err := s.research.Research(ctx, cand)
		if err != nil {
			s.log.Warn().Err(err).Str("market", cand.MarketID).Msg("research failed, candidate deferred")
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionMonitor,
				Reason:   fmt.Sprintf("research unavailable: %v", err),
			})
			continue
		}
		report.Researched++

		metrics, err := risk.Compute(cand.Price, research.WinProb)
		if err != nil {
			s.log.Warn().Err(err).Str("market", cand.MarketID).Msg("candidate excluded, undefined metrics")
			continue
		}
		if !metrics.Eligible(s.cfg.MinRewardRisk, s.cfg.MinExpectedValue) {
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionPass,
				Reason:   metrics.FailureReason(s.cfg.MinRewardRisk, s.cfg.MinExpectedValue),
				Edge:     metrics.ExpectedValue,
			})
			continue
		}

		// Judging.
		if budget <= 0 {
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionMonitor,
				Reason:   "call budget exhausted",
			})
			continue
		}
		budget--
		verdict := s.judge.Evaluate(ctx, judge.Request{
			Agent:  s.cfg.Agent,
			Domain: s.cfg.Domain,
			Trigger: fmt.Sprintf("scan filter passed: reward_risk %.2f, expected_value %.3f",
				metrics.RewardRisk, metrics.ExpectedValue),
			Market: judge.MarketSnapshot{
				MarketID: cand.MarketID,
				TokenID:  cand.TokenID,
				Question: cand.Question,
				Price:    cand.Price,
				Volume:   cand.Volume24h,
				BestBid:  cand.BestBid,
				BestAsk:  cand.BestAsk,
			},
			Research:  research.Rationale,
			Metrics:   metrics,
			Timestamp: time.Now().UTC(),
		})
		report.Judged++
		obs.ObserveJudgeVerdict(verdict.Kind.String())

		switch verdict.Kind {
		case judge.Trade:
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionMonitor,
				Reason:   "trade verdict, deferred by dispatch cap",
				Edge:     metrics.ExpectedValue,
			})
			trades = append(trades, judged{
				cand:    cand,
				metrics: metrics,
				verdict: verdict,
				line:    len(report.Lines) - 1,
			})
		case judge.NotQueried:
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionMonitor,
				Reason:   reasonOr(verdict.Reasoning, "judge not queried"),
			})
		default:
			report.Lines = append(report.Lines, Line{
				Market:   cand.MarketID,
				Question: cand.Question,
				Action:   ActionPass,
				Reason:   reasonOr(verdict.Reasoning, "judge passed"),
			})
		}
	}

	if len(trades) == 0 {
		return report
	}

	// Admitting: only the strongest edge reaches the gate; the dispatch
	// cap is one order per cycle.
	best := trades[0]
	for _, tr := range trades[1:] {
		if tr.metrics.ExpectedValue > best.metrics.ExpectedValue {
			best = tr
		}
	}

	s.admitAndDispatch(ctx, best, &report)
	return report
}

func (s *Scanner) admitAndDispatch(ctx context.Context, best judged, report *CycleReport) {
	policy := s.policies.Snapshot()

	shares := s.size(best.metrics, policy)
	if shares <= 0 {
		report.Lines[best.line] = Line{
			Market:   best.cand.MarketID,
			Question: best.cand.Question,
			Action:   ActionPass,
			Reason:   "no allocatable size",
			Edge:     best.metrics.ExpectedValue,
		}
		return
	}

	intent := gate.Intent{
		ID:       uuid.NewString(),
		Agent:    s.cfg.Agent,
		Domain:   s.cfg.Domain,
		MarketID: best.cand.MarketID,
		TokenID:  best.cand.TokenID,
		Side:     "BUY",
		Price:    best.cand.Price,
		Shares:   shares,
	}

	decision := gate.Evaluate(intent, policy, s.exposure.OpenExposure())
	obs.ObserveGateDecision(decision.Kind.String())
	if decision.Kind == gate.Deny {
		report.Lines[best.line] = Line{
			Market:   best.cand.MarketID,
			Question: best.cand.Question,
			Action:   ActionPass,
			Reason:   decision.Reason,
			Edge:     best.metrics.ExpectedValue,
		}
		return
	}

	admitted := decision.Intent
	result := s.dispatcher.Dispatch(ctx, dispatch.Order{
		ID:        admitted.ID,
		Agent:     admitted.Agent,
		Domain:    admitted.Domain,
		MarketID:  admitted.MarketID,
		TokenID:   admitted.TokenID,
		Side:      admitted.Side,
		Price:     admitted.Price,
		Shares:    admitted.Shares,
		Simulated: admitted.Simulated,
	})

	lineReason := fmt.Sprintf("dispatched: %s", result.Status)
	if result.Reason != "" {
		lineReason = fmt.Sprintf("dispatched: %s (%s)", result.Status, result.Reason)
	}
	report.Lines[best.line] = Line{
		Market:   best.cand.MarketID,
		Question: best.cand.Question,
		Action:   ActionTrade,
		Reason:   lineReason,
		Edge:     best.metrics.ExpectedValue,
	}
	report.Order = &OrderOutcome{
		OrderID:   result.OrderID,
		Market:    admitted.MarketID,
		Side:      admitted.Side,
		Price:     admitted.Price,
		Shares:    admitted.Shares,
		Simulated: admitted.Simulated,
		Status:    result.Status,
		Reason:    result.Reason,
	}
}

// size converts the Kelly fraction into a share count, honoring the
// agent's allocator ceiling when one is set.
func (s *Scanner) size(metrics risk.Metrics, policy governance.Policy) float64 {
	notional := metrics.KellyFraction * s.cfg.BankrollUSD
	if ceiling, ok := policy.AgentCeilings[s.cfg.Agent]; ok {
		if limit := ceiling * s.cfg.BankrollUSD; limit < notional {
			notional = limit
		}
	}
	if policy.MaxOrderNotional > 0 && notional > policy.MaxOrderNotional {
		notional = policy.MaxOrderNotional
	}
	if notional <= 0 || metrics.Price <= 0 {
		return 0
	}
	return notional / metrics.Price
}

// maybeSelfPause pauses the agent after a run of dispatch errors so a
// broken venue path cannot burn the whole session.
func (s *Scanner) maybeSelfPause(ctx context.Context) {
	streak := s.exposure.ConsecutiveErrors(s.cfg.Agent)
	if streak < s.cfg.MaxErrorStreak {
		return
	}
	policy := s.policies.Snapshot()
	if policy.AgentPaused(s.cfg.Agent) {
		return
	}
	policy.PausedAgents = append(policy.PausedAgents, s.cfg.Agent)
	reason := fmt.Sprintf("%d consecutive dispatch errors", streak)
	if _, err := s.policies.Update(ctx, governance.Update{
		Document: policy,
		Author:   s.cfg.Agent,
		Reason:   reason,
	}); err != nil {
		s.log.Error().Err(err).Msg("self-pause write failed")
		return
	}
	s.log.Warn().Int("streak", streak).Msg("agent self-paused")
	if s.notifier != nil {
		if err := s.notifier.NotifyAgentPaused(ctx, s.cfg.Agent, reason); err != nil {
			s.log.Warn().Err(err).Msg("self-pause notification failed")
		}
	}
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
