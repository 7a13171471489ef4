package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config for the HTTP judge adapter.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	APIKey           string        `yaml:"api_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	DecisionCooldown time.Duration `yaml:"decision_cooldown"`
	BreakerFailures  uint32        `yaml:"breaker_failures"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout:   30 * time.Second,
		DecisionCooldown: 60 * time.Second,
		BreakerFailures:  3,
		BreakerTimeout:   2 * time.Minute,
	}
}

// HTTPJudge posts evidence bundles to a decision endpoint. One attempt per
// candidate, no retries; the circuit breaker sheds load when the endpoint is
// failing. A market judged within the cooldown window is answered NotQueried
// without a call.
type HTTPJudge struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu        sync.Mutex
	lastAsked map[string]time.Time
	now       func() time.Time
}

func NewHTTPJudge(cfg Config, log zerolog.Logger) *HTTPJudge {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultConfig().BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultConfig().BreakerTimeout
	}
	j := &HTTPJudge{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		log:       log.With().Str("component", "judge").Logger(),
		lastAsked: make(map[string]time.Time),
		now:       time.Now,
	}
	j.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "judge",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
	})
	return j
}

// wireResponse is the endpoint's decision payload. Action must be the literal
// "trade" to advance; anything else, including unknown actions, is a pass.
type wireResponse struct {
	Action      string   `json:"action"`
	FairValue   float64  `json:"fair_value"`
	Edge        float64  `json:"edge"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	RiskFactors []string `json:"risk_factors"`
}

func (j *HTTPJudge) Evaluate(ctx context.Context, req Request) Verdict {
	if j.cfg.Endpoint == "" {
		return passVerdict("judge endpoint not configured")
	}
	if !j.markAsked(req.Market.MarketID) {
		return Verdict{Kind: NotQueried, Reasoning: "decision cooldown active"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return passVerdict(fmt.Sprintf("encode request: %v", err))
	}

	result, err := j.breaker.Execute(func() (interface{}, error) {
		return j.post(ctx, body)
	})
	if err != nil {
		// An unreachable endpoint, a timeout, or an open breaker means the
		// judge was never consulted; that is NotQueried, not a decline.
		j.log.Warn().Err(err).Str("market", req.Market.MarketID).Msg("judge call failed")
		return Verdict{Kind: NotQueried, Reasoning: fmt.Sprintf("judge unavailable: %v", err)}
	}

	return j.parse(result.([]byte), req.Market.MarketID)
}

func (j *HTTPJudge) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+j.cfg.APIKey)
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// parse maps the response to a verdict. Ambiguity resolves to no action:
// malformed JSON, a missing action, or an unrecognized action are all Pass.
func (j *HTTPJudge) parse(raw []byte, marketID string) Verdict {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		j.log.Warn().Err(err).Str("market", marketID).Msg("unparseable judge response")
		return passVerdict("unparseable judge response")
	}

	switch strings.ToLower(strings.TrimSpace(wire.Action)) {
	case "trade":
		return Verdict{
			Kind:        Trade,
			FairValue:   wire.FairValue,
			Edge:        wire.Edge,
			Confidence:  wire.Confidence,
			Reasoning:   wire.Reasoning,
			RiskFactors: wire.RiskFactors,
		}
	case "pass":
		return Verdict{Kind: Pass, Reasoning: wire.Reasoning}
	default:
		j.log.Warn().Str("market", marketID).Str("action", wire.Action).Msg("ambiguous judge action")
		return passVerdict(fmt.Sprintf("ambiguous action %q", wire.Action))
	}
}

// markAsked records a consultation attempt for the market and reports whether
// the cooldown allows one now.
func (j *HTTPJudge) markAsked(marketID string) bool {
	if j.cfg.DecisionCooldown <= 0 {
		return true
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	if last, ok := j.lastAsked[marketID]; ok && now.Sub(last) < j.cfg.DecisionCooldown {
		return false
	}
	j.lastAsked[marketID] = now
	return true
}
