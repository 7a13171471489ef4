// Package judge wraps the external decision model behind a verdict-only
// interface. Every failure mode of the remote call collapses into a negative
// verdict so the scan cycle never has to distinguish transport trouble from
// a considered "pass".
package judge

import (
	"context"
	"time"

	"github.com/ploylabs/ploy/internal/risk"
)

type VerdictKind int

const (
	NotQueried VerdictKind = iota
	Pass
	Trade
)

func (k VerdictKind) String() string {
	switch k {
	case Trade:
		return "trade"
	case Pass:
		return "pass"
	case NotQueried:
		return "not_queried"
	default:
		return "unknown"
	}
}

// Verdict is the judge's answer for one market. Only an explicit Trade kind
// carries sizing inputs; everything else means no action.
type Verdict struct {
	Kind        VerdictKind `json:"kind"`
	FairValue   float64     `json:"fair_value,omitempty"`
	Edge        float64     `json:"edge,omitempty"`
	Confidence  float64     `json:"confidence,omitempty"`
	Reasoning   string      `json:"reasoning,omitempty"`
	RiskFactors []string    `json:"risk_factors,omitempty"`
}

// MarketSnapshot is the venue-side evidence for a request.
type MarketSnapshot struct {
	MarketID string  `json:"market_id"`
	TokenID  string  `json:"token_id"`
	Question string  `json:"question"`
	Price    float64 `json:"price"`
	Volume   float64 `json:"volume"`
	BestBid  float64 `json:"best_bid"`
	BestAsk  float64 `json:"best_ask"`
}

// Request is the evidence bundle posted to the judge.
type Request struct {
	Agent     string         `json:"agent"`
	Domain    string         `json:"domain"`
	Trigger   string         `json:"trigger"`
	Market    MarketSnapshot `json:"market"`
	Research  string         `json:"research,omitempty"`
	Metrics   risk.Metrics   `json:"metrics"`
	Timestamp time.Time      `json:"timestamp"`
}

// Judge decides whether a candidate is worth trading. Implementations never
// return an error: a failed or ambiguous consultation is a Pass verdict with
// the failure in Reasoning.
type Judge interface {
	Evaluate(ctx context.Context, req Request) Verdict
}

func passVerdict(reason string) Verdict {
	return Verdict{Kind: Pass, Reasoning: reason}
}
