package risk

import (
	"errors"
	"fmt"
)

// KellyCap bounds the Kelly fraction so a single market can never be sized
// beyond a quarter of the bankroll regardless of how strong the edge looks.
const KellyCap = 0.25

var (
	ErrPriceOutOfRange = errors.New("price outside (0,1]")
	ErrProbOutOfRange  = errors.New("win probability outside [0,1]")
)

// Metrics holds the entry economics for a binary-outcome market quoted in
// probability space. Price is cost per share, payout is 1.0 on a win.
type Metrics struct {
	Price         float64 `json:"price"`
	WinProb       float64 `json:"win_prob"`
	RewardRisk    float64 `json:"reward_risk"`
	ExpectedValue float64 `json:"expected_value"`
	KellyFraction float64 `json:"kelly_fraction"`
}

// Compute derives reward-to-risk, expected value, and a capped Kelly fraction
// from a quoted price and an estimated win probability. Inputs outside their
// domains return an error; callers reject the candidate rather than trade on
// substituted values.
func Compute(price, winProb float64) (Metrics, error) {
	if price <= 0 || price > 1 {
		return Metrics{}, fmt.Errorf("compute metrics: %w: %f", ErrPriceOutOfRange, price)
	}
	if winProb < 0 || winProb > 1 {
		return Metrics{}, fmt.Errorf("compute metrics: %w: %f", ErrProbOutOfRange, winProb)
	}

	m := Metrics{
		Price:         price,
		WinProb:       winProb,
		RewardRisk:    (1 - price) / price,
		ExpectedValue: winProb - price,
	}

	// At price 1.0 there is no upside to size into; Kelly is zero.
	if price < 1 {
		m.KellyFraction = clamp(m.ExpectedValue/(1-price), 0, KellyCap)
	}
	return m, nil
}

// Eligible reports whether the metrics clear the entry filter. Both the
// reward-to-risk floor and the expected-value floor must hold.
func (m Metrics) Eligible(minRewardRisk, minExpectedValue float64) bool {
	return m.RewardRisk >= minRewardRisk && m.ExpectedValue >= minExpectedValue
}

// FailureReason names the first filter threshold the metrics miss, for cycle
// report lines. Empty when the metrics are eligible.
func (m Metrics) FailureReason(minRewardRisk, minExpectedValue float64) string {
	if m.RewardRisk < minRewardRisk {
		return fmt.Sprintf("reward_risk %.2f below %.2f", m.RewardRisk, minRewardRisk)
	}
	if m.ExpectedValue < minExpectedValue {
		return fmt.Sprintf("expected_value %.3f below %.3f", m.ExpectedValue, minExpectedValue)
	}
	return ""
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
