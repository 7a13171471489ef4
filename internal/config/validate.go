package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		name := strings.TrimSpace(a.Agent)
		if name == "" {
			return fmt.Errorf("agent name must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate agent name %q", name)
		}
		seen[name] = true
		if strings.TrimSpace(a.Domain) == "" {
			return fmt.Errorf("agent %q: domain must not be empty", name)
		}
		if a.Interval < 0 {
			return fmt.Errorf("agent %q: interval must be >= 0", name)
		}
		if a.BankrollUSD <= 0 {
			return fmt.Errorf("agent %q: bankroll_usd must be > 0, got %f", name, a.BankrollUSD)
		}
	}

	if c.Policy.MaxOrderNotional < 0 {
		return fmt.Errorf("policy.max_order_notional_usd must be >= 0, got %f", c.Policy.MaxOrderNotional)
	}
	if c.Policy.MaxTotalNotional < 0 {
		return fmt.Errorf("policy.max_total_notional_usd must be >= 0, got %f", c.Policy.MaxTotalNotional)
	}
	if c.Policy.MaxEntryPrice < 0 || c.Policy.MaxEntryPrice > 1 {
		return fmt.Errorf("policy.max_entry_price must be within [0,1], got %f", c.Policy.MaxEntryPrice)
	}

	if c.Paper.InitialBalanceUSD <= 0 {
		return fmt.Errorf("paper.initial_balance_usd must be > 0, got %f", c.Paper.InitialBalanceUSD)
	}
	if c.Paper.FeeBps < 0 {
		return fmt.Errorf("paper.fee_bps must be >= 0, got %f", c.Paper.FeeBps)
	}
	if c.Paper.SlippageBps < 0 {
		return fmt.Errorf("paper.slippage_bps must be >= 0, got %f", c.Paper.SlippageBps)
	}

	if c.Settle.Interval < 0 {
		return fmt.Errorf("settle.interval must be >= 0, got %s", c.Settle.Interval)
	}
	if v := c.Settle.ConvergePrice; v != 0 && (v <= 0.5 || v > 1) {
		return fmt.Errorf("settle.converge_price must be within (0.5,1], got %f", v)
	}

	if c.Alloc.Allocator.PauseScore >= c.Alloc.Allocator.ResumeScore {
		return fmt.Errorf("alloc.allocator.pause_score %f must be below resume_score %f",
			c.Alloc.Allocator.PauseScore, c.Alloc.Allocator.ResumeScore)
	}
	if v := c.Alloc.Allocator.MaxSingleAllocation; v <= 0 || v > 1 {
		return fmt.Errorf("alloc.allocator.max_single_allocation must be within (0,1], got %f", v)
	}

	if c.Regime.Classifier.ShortWindow <= 1 {
		return fmt.Errorf("regime.classifier.short_window must be > 1, got %d", c.Regime.Classifier.ShortWindow)
	}
	if c.Regime.Classifier.LongWindow <= c.Regime.Classifier.ShortWindow {
		return fmt.Errorf("regime.classifier.long_window %d must exceed short_window %d",
			c.Regime.Classifier.LongWindow, c.Regime.Classifier.ShortWindow)
	}

	return nil
}
