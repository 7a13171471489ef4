// Package app wires the control loop together: governance store, market
// feed, judge, dispatch path, per-agent scanners, regime detector,
// allocator, journal, and the read-only API.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/gamma"
	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/alloc"
	"github.com/ploylabs/ploy/internal/api"
	"github.com/ploylabs/ploy/internal/config"
	"github.com/ploylabs/ploy/internal/digest"
	"github.com/ploylabs/ploy/internal/dispatch"
	"github.com/ploylabs/ploy/internal/feed"
	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/journal"
	"github.com/ploylabs/ploy/internal/judge"
	"github.com/ploylabs/ploy/internal/metrics"
	"github.com/ploylabs/ploy/internal/notify"
	"github.com/ploylabs/ploy/internal/paper"
	"github.com/ploylabs/ploy/internal/regime"
	"github.com/ploylabs/ploy/internal/scan"
	"github.com/ploylabs/ploy/internal/settle"
	"github.com/ploylabs/ploy/internal/stats"
)

// App owns every long-lived component of the assistant. Construct with
// New, then Run until the context ends.
type App struct {
	cfg config.Config
	log zerolog.Logger

	policies  *governance.Store
	tracker   *stats.Tracker
	scorer    *alloc.Scorer
	allocator *alloc.Allocator
	detector  *regime.Detector
	feed      *feed.Client
	judge     judge.Judge
	notifier  *notify.Notifier
	journal   *journal.Journal
	settler   *settle.Poller
	scanners  map[string]*scan.Scanner
	apiServer *api.Server

	mu         sync.RWMutex
	running    bool
	lastReport *scan.CycleReport
	lastCycle  map[string]time.Time
}

// New assembles the app from config. clobClient, gammaClient, and signer
// may be nil in simulation-only setups; live dispatch then reports
// "no backend configured" instead of panicking.
func New(cfg config.Config, clobClient clob.Client, gammaClient gamma.Client, signer auth.Signer, log zerolog.Logger) (*App, error) {
	store := governance.NewStore(seedPolicy(cfg.Policy), log)

	jnl, err := journal.Open(cfg.Journal, log)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if jnl.Enabled() {
		store.AddSink(jnl)
	}

	notifier := notify.NewNotifier("", "")
	if cfg.Telegram.Enabled {
		notifier = notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	tracker := stats.NewTracker()
	scorer := alloc.NewScorer(cfg.Alloc.Scorer)
	tracker.OnSettle = scorer.Record

	detector := regime.NewDetector(cfg.Regime.Classifier, log)
	allocator := alloc.New(cfg.Alloc.Allocator, store, scorer, detector, log)

	feedClient := feed.NewClient(cfg.Feed, gammaClient, clobClient, log)
	research := feed.NewHTTPResearch(cfg.Research, log)
	j := judge.NewHTTPJudge(cfg.Judge, log)

	var live dispatch.Backend
	if clobClient != nil && signer != nil {
		live = dispatch.NewLiveBackend(cfg.Dispatch, clobClient, signer, log)
	}
	sim := paper.NewSimulator(cfg.Paper)
	paperBackend := dispatch.NewPaperBackend(sim, feedQuotes{client: feedClient}, log)
	dispatcher := dispatch.NewDispatcher(live, paperBackend, tracker, notifier, log)

	a := &App{
		cfg:       cfg,
		log:       log.With().Str("component", "app").Logger(),
		policies:  store,
		tracker:   tracker,
		scorer:    scorer,
		allocator: allocator,
		detector:  detector,
		feed:      feedClient,
		judge:     j,
		notifier:  notifier,
		journal:   jnl,
		settler:   settle.NewPoller(cfg.Settle, feedClient, feedClient, tracker, log),
		scanners:  make(map[string]*scan.Scanner, len(cfg.Agents)),
		lastCycle: make(map[string]time.Time, len(cfg.Agents)),
	}

	store.AddSink(policyObserver{app: a})

	for _, agentCfg := range cfg.Agents {
		s := scan.NewScanner(agentCfg, feedClient, research, j, dispatcher, store, tracker, notifier, log)
		s.OnReport = a.onReport
		a.scanners[agentCfg.Agent] = s
	}

	if cfg.API.Enabled {
		a.apiServer = api.NewServer(cfg.API.Addr, a, log)
	}

	return a, nil
}

// seedPolicy layers the config overrides onto the default document.
func seedPolicy(pc config.PolicyConfig) governance.Policy {
	policy := governance.Default()
	policy.SimulationOnly = pc.SimulationOnly
	if pc.MaxOrderNotional > 0 {
		policy.MaxOrderNotional = pc.MaxOrderNotional
	}
	if pc.MaxTotalNotional > 0 {
		policy.MaxTotalNotional = pc.MaxTotalNotional
	}
	if pc.MaxEntryPrice > 0 {
		policy.MaxEntryPrice = pc.MaxEntryPrice
	}
	if len(pc.BlockedDomains) > 0 {
		policy.BlockedDomains = append([]string(nil), pc.BlockedDomains...)
	}
	return policy
}

// Run starts every loop and blocks until the context ends.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.apiServer != nil {
		if err := a.apiServer.Start(ctx); err != nil {
			return fmt.Errorf("start api server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("api server shutdown failed")
			}
		}()
	}
	defer func() {
		if err := a.journal.Close(); err != nil {
			a.log.Warn().Err(err).Msg("journal close failed")
		}
	}()

	a.log.Info().
		Int("agents", len(a.scanners)).
		Bool("simulation_only", a.policies.Snapshot().SimulationOnly).
		Msg("control loop starting")

	var wg sync.WaitGroup
	for _, s := range a.scanners {
		wg.Add(1)
		go func(s *scan.Scanner) {
			defer wg.Done()
			s.Run(ctx)
		}(s)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.regimeLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.rebalanceLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.settler.Run(ctx)
	}()

	if a.notifier.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.digestLoop(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	a.log.Info().Msg("control loop stopped")
	return nil
}

// ScanOnce runs a single synchronous cycle for one agent. Used by the
// one-shot CLI path.
func (a *App) ScanOnce(ctx context.Context, agent string) (scan.CycleReport, error) {
	s, ok := a.scanners[agent]
	if !ok {
		return scan.CycleReport{}, fmt.Errorf("unknown agent %q", agent)
	}
	return s.RunCycle(ctx)
}

func (a *App) onReport(report scan.CycleReport) {
	a.mu.Lock()
	cp := report
	a.lastReport = &cp
	a.lastCycle[report.Agent] = report.FinishedAt
	a.mu.Unlock()

	a.journal.RecordCycle(context.Background(), report)
	metrics.SetOpenExposure(a.tracker.OpenExposure())
}

// regimeLoop samples the reference market's mid price and commits a
// policy stance update whenever the detector confirms a transition.
func (a *App) regimeLoop(ctx context.Context) {
	tokenID := a.cfg.Regime.PriceTokenID
	if tokenID == "" {
		a.log.Info().Msg("no regime price token configured, detector idle")
		return
	}
	interval := a.cfg.Regime.ObserveInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.observeRegime(ctx, tokenID)
		}
	}
}

func (a *App) observeRegime(ctx context.Context, tokenID string) {
	book, err := a.feed.TopOfBook(ctx, tokenID)
	if err != nil {
		a.log.Warn().Err(err).Msg("regime price fetch failed")
		return
	}
	mid := (book.BestBid + book.BestAsk) / 2
	if mid <= 0 {
		return
	}

	transition, err := a.detector.Observe(mid)
	if err != nil {
		a.log.Warn().Err(err).Msg("regime observation rejected")
		return
	}
	if transition == nil {
		return
	}

	policy := a.policies.Snapshot()
	policy.RegimeLabel = transition.To.String()
	reason := fmt.Sprintf("regime %s -> %s (confidence %.2f)",
		transition.From, transition.To, transition.Reading.Confidence)
	if _, err := a.policies.Update(ctx, governance.Update{
		Document: policy,
		Author:   "regime",
		Reason:   reason,
	}); err != nil {
		a.log.Error().Err(err).Msg("regime policy write failed")
		return
	}
	a.detector.MarkApplied()
	metrics.SetRegime(transition.To)

	a.log.Info().
		Str("from", transition.From.String()).
		Str("to", transition.To.String()).
		Float64("confidence", transition.Reading.Confidence).
		Msg("regime transition applied")
	if err := a.notifier.NotifyRegimeChange(ctx, transition.From.String(), transition.To.String(), transition.Reading.Confidence); err != nil {
		a.log.Warn().Err(err).Msg("regime notification failed")
	}
}

// rebalanceLoop runs scheduled allocator passes.
func (a *App) rebalanceLoop(ctx context.Context) {
	interval := a.cfg.Alloc.RebalanceInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.rebalance(ctx)
		}
	}
}

func (a *App) rebalance(ctx context.Context) {
	agents := a.agentNames()
	res, err := a.allocator.Rebalance(ctx, agents, "scheduled rebalance")
	if err != nil {
		a.log.Error().Err(err).Msg("rebalance failed")
		return
	}

	for _, agent := range agents {
		metrics.SetAgentScore(agent, a.scorer.Score(agent).Value)
	}

	a.log.Info().
		Int("policy_version", res.PolicyVersion).
		Str("regime", res.Regime).
		Strs("paused", res.Paused).
		Strs("resumed", res.Resumed).
		Strs("suppressed", res.Suppressed).
		Msg("rebalance complete")

	for _, agent := range res.Paused {
		if err := a.notifier.NotifyAgentPaused(ctx, agent, "performance score below pause threshold"); err != nil {
			a.log.Warn().Err(err).Msg("pause notification failed")
		}
	}
	for _, agent := range res.Resumed {
		if err := a.notifier.NotifyAgentResumed(ctx, agent, a.scorer.Score(agent).Value); err != nil {
			a.log.Warn().Err(err).Msg("resume notification failed")
		}
	}
}

// digestLoop sends the periodic session summary over Telegram.
func (a *App) digestLoop(ctx context.Context) {
	interval := a.cfg.Telegram.DigestInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := a.buildDigest()
			if err := a.notifier.Send(ctx, digest.RenderHTML(summary)); err != nil {
				a.log.Warn().Err(err).Msg("digest send failed")
			}
		}
	}
}

func (a *App) buildDigest() digest.Summary {
	policy := a.policies.Snapshot()
	orders, submitted, settled := a.tracker.Counts()

	mode := "live"
	if policy.SimulationOnly {
		mode = "simulation"
	}
	summary := digest.Summary{
		Mode:          mode,
		Regime:        a.detector.Active().String(),
		PolicyVersion: policy.Version,
		OpenExposure:  a.tracker.OpenExposure(),
		RealizedPnL:   a.tracker.RealizedPnL(),
		Orders:        orders,
		Submitted:     submitted,
		Settled:       settled,
	}
	for _, agentCfg := range a.cfg.Agents {
		summary.Agents = append(summary.Agents, digest.AgentLine{
			Agent:       agentCfg.Agent,
			Score:       a.scorer.Score(agentCfg.Agent).Value,
			RealizedPnL: a.tracker.AgentRealizedPnL(agentCfg.Agent),
			ExposureUSD: a.tracker.AgentExposure(agentCfg.Agent),
			ErrorStreak: a.tracker.ConsecutiveErrors(agentCfg.Agent),
			Paused:      policy.AgentPaused(agentCfg.Agent),
		})
	}
	summary.Actions = digest.BuildActions(summary)
	return summary
}

func (a *App) agentNames() []string {
	names := make([]string, 0, len(a.cfg.Agents))
	for _, agentCfg := range a.cfg.Agents {
		names = append(names, agentCfg.Agent)
	}
	return names
}

// feedQuotes adapts the feed client's order book to the paper backend.
type feedQuotes struct {
	client *feed.Client
}

func (f feedQuotes) Quote(ctx context.Context, tokenID string) (paper.Quote, error) {
	book, err := f.client.TopOfBook(ctx, tokenID)
	if err != nil {
		return paper.Quote{}, err
	}
	return paper.Quote{BestBid: book.BestBid, BestAsk: book.BestAsk}, nil
}

// policyObserver publishes committed policy versions to Prometheus.
type policyObserver struct {
	app *App
}

func (p policyObserver) PolicyCommitted(entry governance.HistoryEntry) {
	metrics.ObservePolicy(entry, p.app.agentNames())
}
