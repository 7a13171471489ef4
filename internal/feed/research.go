package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Research is the domain context attached to a candidate before judging.
type Research struct {
	WinProb   float64
	Rationale string
}

// ResearchSource enriches a candidate with an estimated win probability.
type ResearchSource interface {
	Research(ctx context.Context, cand Candidate) (Research, error)
}

type ResearchConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// HTTPResearch polls an external research service for win probability
// estimates. Responses outside [0,1] are treated as errors so a broken
// upstream can never look like signal.
type HTTPResearch struct {
	cfg    ResearchConfig
	client *http.Client
	log    zerolog.Logger
}

func NewHTTPResearch(cfg ResearchConfig, log zerolog.Logger) *HTTPResearch {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPResearch{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "research").Logger(),
	}
}

type researchRequest struct {
	MarketID string  `json:"market_id"`
	TokenID  string  `json:"token_id"`
	Question string  `json:"question"`
	Domain   string  `json:"domain"`
	Price    float64 `json:"price"`
}

type researchResponse struct {
	WinProb   float64 `json:"win_prob"`
	Rationale string  `json:"rationale"`
}

func (r *HTTPResearch) Research(ctx context.Context, cand Candidate) (Research, error) {
	if r.cfg.Endpoint == "" {
		return Research{}, fmt.Errorf("research endpoint not configured")
	}
	body, err := json.Marshal(researchRequest{
		MarketID: cand.MarketID,
		TokenID:  cand.TokenID,
		Question: cand.Question,
		Domain:   cand.Domain,
		Price:    cand.Price,
	})
	if err != nil {
		return Research{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Research{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Research{}, fmt.Errorf("research request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Research{}, fmt.Errorf("research request: status %d", resp.StatusCode)
	}

	var parsed researchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return Research{}, fmt.Errorf("research response: %w", err)
	}
	if parsed.WinProb < 0 || parsed.WinProb > 1 {
		return Research{}, fmt.Errorf("research response: win_prob %f out of range", parsed.WinProb)
	}
	r.log.Debug().Str("market", cand.MarketID).Float64("win_prob", parsed.WinProb).Msg("research received")
	return Research{WinProb: parsed.WinProb, Rationale: parsed.Rationale}, nil
}
