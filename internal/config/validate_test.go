package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "no agents",
			mutate:  func(c *Config) { c.Agents = nil },
			wantSub: "at least one agent",
		},
		{
			name: "empty agent name",
			mutate: func(c *Config) {
				c.Agents[0].Agent = "  "
			},
			wantSub: "agent name",
		},
		{
			name: "duplicate agent name",
			mutate: func(c *Config) {
				c.Agents = append(c.Agents, c.Agents[0])
			},
			wantSub: "duplicate agent",
		},
		{
			name: "empty domain",
			mutate: func(c *Config) {
				c.Agents[0].Domain = ""
			},
			wantSub: "domain must not be empty",
		},
		{
			name: "negative interval",
			mutate: func(c *Config) {
				c.Agents[0].Interval = -1
			},
			wantSub: "interval",
		},
		{
			name: "zero bankroll",
			mutate: func(c *Config) {
				c.Agents[0].BankrollUSD = 0
			},
			wantSub: "bankroll_usd",
		},
		{
			name: "negative order notional",
			mutate: func(c *Config) {
				c.Policy.MaxOrderNotional = -5
			},
			wantSub: "max_order_notional_usd",
		},
		{
			name: "entry price above one",
			mutate: func(c *Config) {
				c.Policy.MaxEntryPrice = 1.5
			},
			wantSub: "max_entry_price",
		},
		{
			name: "zero paper balance",
			mutate: func(c *Config) {
				c.Paper.InitialBalanceUSD = 0
			},
			wantSub: "initial_balance_usd",
		},
		{
			name: "negative fee bps",
			mutate: func(c *Config) {
				c.Paper.FeeBps = -1
			},
			wantSub: "fee_bps",
		},
		{
			name: "negative settle interval",
			mutate: func(c *Config) {
				c.Settle.Interval = -1
			},
			wantSub: "settle.interval",
		},
		{
			name: "converge price below half",
			mutate: func(c *Config) {
				c.Settle.ConvergePrice = 0.4
			},
			wantSub: "converge_price",
		},
		{
			name: "pause above resume",
			mutate: func(c *Config) {
				c.Alloc.Allocator.PauseScore = 0.9
				c.Alloc.Allocator.ResumeScore = 0.5
			},
			wantSub: "pause_score",
		},
		{
			name: "allocation share above one",
			mutate: func(c *Config) {
				c.Alloc.Allocator.MaxSingleAllocation = 1.2
			},
			wantSub: "max_single_allocation",
		},
		{
			name: "short window too small",
			mutate: func(c *Config) {
				c.Regime.Classifier.ShortWindow = 1
			},
			wantSub: "short_window",
		},
		{
			name: "long window below short",
			mutate: func(c *Config) {
				c.Regime.Classifier.ShortWindow = 20
				c.Regime.Classifier.LongWindow = 10
			},
			wantSub: "long_window",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("expected error containing %q, got %v", tc.wantSub, err)
			}
		})
	}
}
