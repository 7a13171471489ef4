package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ploylabs/ploy/internal/alloc"
	"github.com/ploylabs/ploy/internal/dispatch"
	"github.com/ploylabs/ploy/internal/feed"
	"github.com/ploylabs/ploy/internal/journal"
	"github.com/ploylabs/ploy/internal/judge"
	"github.com/ploylabs/ploy/internal/paper"
	"github.com/ploylabs/ploy/internal/regime"
	"github.com/ploylabs/ploy/internal/scan"
	"github.com/ploylabs/ploy/internal/settle"
)

type Config struct {
	PrivateKey    string `yaml:"private_key"`
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`

	LogLevel string `yaml:"log_level"`

	Agents []scan.Config `yaml:"agents"`

	Policy   PolicyConfig        `yaml:"policy"`
	Regime   RegimeConfig        `yaml:"regime"`
	Alloc    AllocConfig         `yaml:"alloc"`
	Feed     feed.Config         `yaml:"feed"`
	Research feed.ResearchConfig `yaml:"research"`
	Judge    judge.Config        `yaml:"judge"`
	Dispatch dispatch.LiveConfig `yaml:"dispatch"`
	Paper    paper.Config        `yaml:"paper"`
	Settle   settle.Config       `yaml:"settle"`
	Journal  journal.Config      `yaml:"journal"`
	Telegram TelegramConfig      `yaml:"telegram"`
	API      APIConfig           `yaml:"api"`
}

// PolicyConfig seeds the initial governance policy document.
type PolicyConfig struct {
	SimulationOnly   bool     `yaml:"simulation_only"`
	MaxOrderNotional float64  `yaml:"max_order_notional_usd"`
	MaxTotalNotional float64  `yaml:"max_total_notional_usd"`
	MaxEntryPrice    float64  `yaml:"max_entry_price"`
	BlockedDomains   []string `yaml:"blocked_domains"`
}

type RegimeConfig struct {
	Classifier      regime.Config `yaml:"classifier"`
	ObserveInterval time.Duration `yaml:"observe_interval"`
	PriceTokenID    string        `yaml:"price_token_id"`
}

type AllocConfig struct {
	Allocator         alloc.Config       `yaml:"allocator"`
	Scorer            alloc.ScorerConfig `yaml:"scorer"`
	RebalanceInterval time.Duration      `yaml:"rebalance_interval"`
}

type TelegramConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BotToken       string        `yaml:"bot_token"`
	ChatID         string        `yaml:"chat_id"`
	DigestInterval time.Duration `yaml:"digest_interval"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Agents: []scan.Config{
			scan.DefaultConfig("crypto-alpha", "crypto"),
		},
		Policy: PolicyConfig{
			SimulationOnly:   true,
			MaxOrderNotional: 50,
			MaxTotalNotional: 500,
			MaxEntryPrice:    0.20,
		},
		Regime: RegimeConfig{
			Classifier:      regime.DefaultConfig(),
			ObserveInterval: time.Minute,
		},
		Alloc: AllocConfig{
			Allocator:         alloc.DefaultConfig(),
			Scorer:            alloc.DefaultScorerConfig(),
			RebalanceInterval: 15 * time.Minute,
		},
		Feed:     feed.DefaultConfig(),
		Judge:    judge.DefaultConfig(),
		Paper:    paper.Config{InitialBalanceUSD: 1000, FeeBps: 10, SlippageBps: 10},
		Settle:   settle.DefaultConfig(),
		Journal:  journal.DefaultConfig(),
		Dispatch: dispatch.LiveConfig{BreakerFailures: 3, BreakerTimeout: 2 * time.Minute},
		Telegram: TelegramConfig{DigestInterval: 24 * time.Hour},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("PLOY_PK"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("PLOY_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("PLOY_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("PLOY_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("PLOY_JUDGE_ENDPOINT"); v != "" {
		c.Judge.Endpoint = v
	}
	if v := os.Getenv("PLOY_JUDGE_API_KEY"); v != "" {
		c.Judge.APIKey = v
	}
	if v := os.Getenv("PLOY_RESEARCH_ENDPOINT"); v != "" {
		c.Research.Endpoint = v
	}
	if v := os.Getenv("PLOY_RESEARCH_API_KEY"); v != "" {
		c.Research.APIKey = v
	}
	if v := os.Getenv("PLOY_PG_DSN"); v != "" {
		c.Journal.DSN = v
	}
	if v := os.Getenv("PLOY_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("PLOY_TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("PLOY_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("PLOY_SIMULATION_ONLY")); v != "" {
		c.Policy.SimulationOnly = strings.EqualFold(v, "true") || v == "1"
	}
}
