// Package feed discovers candidate markets and serves top-of-book quotes
// from the venue's discovery and pricing APIs.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/gamma"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	MinLiquidityUSD float64       `yaml:"min_liquidity_usd"`
	MinVolume24hUSD float64       `yaml:"min_volume_24h_usd"`
	MaxSpread       float64       `yaml:"max_spread"`
	MaxCandidates   int           `yaml:"max_candidates"`
	RequestsPerSec  float64       `yaml:"requests_per_sec"`
	RequestBurst    int           `yaml:"request_burst"`
	MinTimeToEnd    time.Duration `yaml:"min_time_to_end"`
}

func DefaultConfig() Config {
	return Config{
		MinLiquidityUSD: 1000,
		MinVolume24hUSD: 500,
		MaxSpread:       0.10,
		MaxCandidates:   20,
		RequestsPerSec:  4,
		RequestBurst:    8,
		MinTimeToEnd:    48 * time.Hour,
	}
}

// Candidate is one market surfaced by discovery, priced and ready for the
// eligibility filter.
type Candidate struct {
	MarketID  string
	TokenID   string
	Question  string
	Domain    string
	Price     float64
	BestBid   float64
	BestAsk   float64
	Volume24h float64
	Liquidity float64
}

// Book is the top of book for a single token.
type Book struct {
	BestBid float64
	BestAsk float64
}

// Client polls the discovery and pricing APIs, applying a shared rate
// limit across all outbound requests.
type Client struct {
	cfg     Config
	gamma   gamma.Client
	clob    clob.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewClient(cfg Config, gammaClient gamma.Client, clobClient clob.Client, log zerolog.Logger) *Client {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultConfig().RequestsPerSec
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = DefaultConfig().RequestBurst
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	return &Client{
		cfg:     cfg,
		gamma:   gammaClient,
		clob:    clobClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestBurst),
		log:     log.With().Str("component", "feed").Logger(),
	}
}

// Candidates discovers active markets passing the liquidity, volume,
// spread, and expiry filters, priced from the live book. Markets with
// malformed fields or missing books are skipped with a logged reason.
func (c *Client) Candidates(ctx context.Context, domain string) ([]Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	markets, err := c.gamma.Markets(ctx, &gamma.MarketsRequest{})
	if err != nil {
		return nil, fmt.Errorf("discover markets: %w", err)
	}

	out := make([]Candidate, 0, c.cfg.MaxCandidates)
	for _, m := range markets {
		if len(out) >= c.cfg.MaxCandidates {
			break
		}
		cand, reason := c.screen(m, domain)
		if reason != "" {
			c.log.Debug().Str("market", m.ID).Str("reason", reason).Msg("candidate excluded")
			continue
		}
		book, err := c.TopOfBook(ctx, cand.TokenID)
		if err != nil {
			c.log.Warn().Err(err).Str("market", m.ID).Msg("book unavailable, candidate excluded")
			continue
		}
		cand.BestBid = book.BestBid
		cand.BestAsk = book.BestAsk
		cand.Price = (book.BestBid + book.BestAsk) / 2
		out = append(out, cand)
	}
	c.log.Info().Str("domain", domain).Int("markets", len(markets)).Int("candidates", len(out)).Msg("discovery complete")
	return out, nil
}

// screen applies the static market filters and returns the candidate
// shell, or a non-empty exclusion reason.
func (c *Client) screen(m gamma.Market, domain string) (Candidate, string) {
	if !m.Active {
		return Candidate{}, "inactive"
	}
	if len(m.Tokens) == 0 {
		return Candidate{}, "no tokens"
	}
	liquidity, err := strconv.ParseFloat(m.Liquidity, 64)
	if err != nil {
		return Candidate{}, "malformed liquidity"
	}
	volume, err := strconv.ParseFloat(m.Volume24hr, 64)
	if err != nil {
		return Candidate{}, "malformed volume"
	}
	spread, err := strconv.ParseFloat(m.Spread, 64)
	if err != nil {
		return Candidate{}, "malformed spread"
	}
	if liquidity < c.cfg.MinLiquidityUSD {
		return Candidate{}, "below liquidity floor"
	}
	if volume < c.cfg.MinVolume24hUSD {
		return Candidate{}, "below volume floor"
	}
	if c.cfg.MaxSpread > 0 && spread > c.cfg.MaxSpread {
		return Candidate{}, "spread too wide"
	}
	if c.cfg.MinTimeToEnd > 0 && m.EndDate != "" {
		end, err := time.Parse(time.RFC3339, m.EndDate)
		if err != nil {
			return Candidate{}, "malformed end date"
		}
		if time.Until(end) < c.cfg.MinTimeToEnd {
			return Candidate{}, "too close to resolution"
		}
	}
	return Candidate{
		MarketID:  m.ConditionID,
		TokenID:   m.Tokens[0].TokenID,
		Question:  m.Question,
		Domain:    domain,
		Volume24h: volume,
		Liquidity: liquidity,
	}, ""
}

// ActiveMarkets returns the set of still-active markets keyed by
// condition ID. Markets absent from the set have closed.
func (c *Client) ActiveMarkets(ctx context.Context) (map[string]bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	markets, err := c.gamma.Markets(ctx, &gamma.MarketsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	active := make(map[string]bool, len(markets))
	for _, m := range markets {
		if m.Active && m.ConditionID != "" {
			active[m.ConditionID] = true
		}
	}
	return active, nil
}

// TopOfBook fetches the best bid and ask for a token.
func (c *Client) TopOfBook(ctx context.Context, tokenID string) (Book, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Book{}, err
	}
	resp, err := c.clob.OrderBook(ctx, &clobtypes.BookRequest{TokenID: tokenID})
	if err != nil {
		return Book{}, fmt.Errorf("book %s: %w", tokenID, err)
	}
	book := clobtypes.OrderBook(resp)
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return Book{}, fmt.Errorf("book %s: empty side", tokenID)
	}
	bid, err := strconv.ParseFloat(book.Bids[0].Price, 64)
	if err != nil {
		return Book{}, fmt.Errorf("book %s: malformed bid: %w", tokenID, err)
	}
	ask, err := strconv.ParseFloat(book.Asks[0].Price, 64)
	if err != nil {
		return Book{}, fmt.Errorf("book %s: malformed ask: %w", tokenID, err)
	}
	if ask <= bid {
		return Book{}, fmt.Errorf("book %s: crossed: bid=%f ask=%f", tokenID, bid, ask)
	}
	return Book{BestBid: bid, BestAsk: ask}, nil
}
