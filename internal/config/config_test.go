package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Default()
	if len(cfg.Agents) != 1 {
		t.Fatalf("expected one default agent, got %d", len(cfg.Agents))
	}
	a := cfg.Agents[0]
	if a.Agent != "crypto-alpha" || a.Domain != "crypto" {
		t.Fatalf("unexpected default agent %q/%q", a.Agent, a.Domain)
	}
	if a.Interval != 300*time.Second {
		t.Fatalf("expected 300s agent interval, got %v", a.Interval)
	}
	if a.BankrollUSD <= 0 {
		t.Fatal("expected positive default bankroll")
	}
	if !cfg.Policy.SimulationOnly {
		t.Fatal("expected simulation_only true by default")
	}
	if cfg.Policy.MaxOrderNotional != 50 {
		t.Fatalf("expected default max_order_notional_usd 50, got %f", cfg.Policy.MaxOrderNotional)
	}
	if cfg.Policy.MaxEntryPrice != 0.20 {
		t.Fatalf("expected default max_entry_price 0.20, got %f", cfg.Policy.MaxEntryPrice)
	}
	if cfg.Paper.InitialBalanceUSD <= 0 {
		t.Fatal("expected positive paper initial_balance_usd by default")
	}
	if cfg.Alloc.RebalanceInterval != 15*time.Minute {
		t.Fatalf("expected rebalance_interval 15m by default, got %v", cfg.Alloc.RebalanceInterval)
	}
	if cfg.Regime.ObserveInterval != time.Minute {
		t.Fatalf("expected observe_interval 1m by default, got %v", cfg.Regime.ObserveInterval)
	}
	if !cfg.API.Enabled || cfg.API.Addr != ":8080" {
		t.Fatalf("unexpected default api config %+v", cfg.API)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected log_level info by default, got %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
log_level: debug
agents:
  - agent: politics-desk
    domain: politics
    interval: 120s
    call_budget: 4
    min_reward_risk: 5
    min_expected_value: 0.08
    bankroll_usd: 2500
    max_error_streak: 2
policy:
  simulation_only: false
  max_order_notional_usd: 75
  max_total_notional_usd: 800
  max_entry_price: 0.15
  blocked_domains: [sports]
feed:
  min_liquidity_usd: 5000
  max_spread: 0.05
paper:
  initial_balance_usd: 2000
  fee_bps: 12
  slippage_bps: 8
alloc:
  rebalance_interval: 30m
journal:
  dsn: postgres://localhost/ploy
api:
  enabled: false
`
	f, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte(yaml)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := LoadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log_level debug, got %q", cfg.LogLevel)
	}
	if len(cfg.Agents) != 1 {
		t.Fatalf("expected one agent, got %d", len(cfg.Agents))
	}
	a := cfg.Agents[0]
	if a.Agent != "politics-desk" || a.Domain != "politics" {
		t.Fatalf("unexpected agent %q/%q", a.Agent, a.Domain)
	}
	if a.Interval != 2*time.Minute {
		t.Fatalf("expected 120s interval, got %v", a.Interval)
	}
	if a.CallBudget != 4 {
		t.Fatalf("expected call budget 4, got %d", a.CallBudget)
	}
	if a.MinRewardRisk != 5 {
		t.Fatalf("expected min reward risk 5, got %f", a.MinRewardRisk)
	}
	if a.BankrollUSD != 2500 {
		t.Fatalf("expected bankroll 2500, got %f", a.BankrollUSD)
	}
	if cfg.Policy.SimulationOnly {
		t.Fatal("expected simulation_only false from yaml")
	}
	if cfg.Policy.MaxOrderNotional != 75 {
		t.Fatalf("expected max order notional 75, got %f", cfg.Policy.MaxOrderNotional)
	}
	if len(cfg.Policy.BlockedDomains) != 1 || cfg.Policy.BlockedDomains[0] != "sports" {
		t.Fatalf("unexpected blocked domains %v", cfg.Policy.BlockedDomains)
	}
	if cfg.Feed.MinLiquidityUSD != 5000 {
		t.Fatalf("expected min liquidity 5000, got %f", cfg.Feed.MinLiquidityUSD)
	}
	if cfg.Feed.MaxSpread != 0.05 {
		t.Fatalf("expected max spread 0.05, got %f", cfg.Feed.MaxSpread)
	}
	if cfg.Paper.InitialBalanceUSD != 2000 {
		t.Fatalf("expected paper initial balance 2000, got %f", cfg.Paper.InitialBalanceUSD)
	}
	if cfg.Paper.FeeBps != 12 {
		t.Fatalf("expected paper fee_bps 12, got %f", cfg.Paper.FeeBps)
	}
	if cfg.Alloc.RebalanceInterval != 30*time.Minute {
		t.Fatalf("expected rebalance interval 30m, got %v", cfg.Alloc.RebalanceInterval)
	}
	if cfg.Journal.DSN != "postgres://localhost/ploy" {
		t.Fatalf("unexpected journal dsn %q", cfg.Journal.DSN)
	}
	if cfg.API.Enabled {
		t.Fatal("expected api disabled from yaml")
	}
}

func TestLoadFileInvalidPath(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	f, err := os.CreateTemp("", "bad-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte("{{invalid yaml")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = LoadFile(f.Name())
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestApplyEnvAllVars(t *testing.T) {
	t.Setenv("PLOY_PK", "test-pk")
	t.Setenv("PLOY_API_KEY", "test-key")
	t.Setenv("PLOY_API_SECRET", "test-secret")
	t.Setenv("PLOY_API_PASSPHRASE", "test-pass")
	t.Setenv("PLOY_JUDGE_ENDPOINT", "https://judge.internal/v1")
	t.Setenv("PLOY_JUDGE_API_KEY", "judge-key")
	t.Setenv("PLOY_RESEARCH_ENDPOINT", "https://research.internal/v1")
	t.Setenv("PLOY_RESEARCH_API_KEY", "research-key")
	t.Setenv("PLOY_PG_DSN", "postgres://localhost/ploy")
	t.Setenv("PLOY_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("PLOY_TELEGRAM_CHAT_ID", "chat-42")
	t.Setenv("PLOY_LOG_LEVEL", "DEBUG")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.PrivateKey != "test-pk" {
		t.Fatalf("expected PrivateKey test-pk, got %s", cfg.PrivateKey)
	}
	if cfg.APIKey != "test-key" {
		t.Fatalf("expected APIKey test-key, got %s", cfg.APIKey)
	}
	if cfg.APISecret != "test-secret" {
		t.Fatalf("expected APISecret test-secret, got %s", cfg.APISecret)
	}
	if cfg.APIPassphrase != "test-pass" {
		t.Fatalf("expected APIPassphrase test-pass, got %s", cfg.APIPassphrase)
	}
	if cfg.Judge.Endpoint != "https://judge.internal/v1" {
		t.Fatalf("unexpected judge endpoint %q", cfg.Judge.Endpoint)
	}
	if cfg.Judge.APIKey != "judge-key" {
		t.Fatalf("unexpected judge api key %q", cfg.Judge.APIKey)
	}
	if cfg.Research.Endpoint != "https://research.internal/v1" {
		t.Fatalf("unexpected research endpoint %q", cfg.Research.Endpoint)
	}
	if cfg.Research.APIKey != "research-key" {
		t.Fatalf("unexpected research api key %q", cfg.Research.APIKey)
	}
	if cfg.Journal.DSN != "postgres://localhost/ploy" {
		t.Fatalf("unexpected journal dsn %q", cfg.Journal.DSN)
	}
	if cfg.Telegram.BotToken != "bot-token" {
		t.Fatalf("unexpected bot token %q", cfg.Telegram.BotToken)
	}
	if !cfg.Telegram.Enabled {
		t.Fatal("expected telegram enabled once a bot token is set")
	}
	if cfg.Telegram.ChatID != "chat-42" {
		t.Fatalf("unexpected chat id %q", cfg.Telegram.ChatID)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug from env, got %q", cfg.LogLevel)
	}
}

func TestApplyEnvSimulationOnly(t *testing.T) {
	t.Setenv("PLOY_SIMULATION_ONLY", "false")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Policy.SimulationOnly {
		t.Fatal("expected simulation_only false from env")
	}

	t.Setenv("PLOY_SIMULATION_ONLY", "1")
	cfg.ApplyEnv()
	if !cfg.Policy.SimulationOnly {
		t.Fatal("expected simulation_only true from env '1'")
	}
}
