// Package settle realizes outcomes for dispatched orders. The venue's
// discovery API exposes no winner field, so resolution is inferred: a
// market that drops out of the active set settles at its last observed
// price, and a live book pinned at an extreme settles early.
package settle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/feed"
	"github.com/ploylabs/ploy/internal/stats"
)

type Config struct {
	Interval      time.Duration `yaml:"interval"`
	ConvergePrice float64       `yaml:"converge_price"`
}

func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		ConvergePrice: 0.95,
	}
}

// BookSource serves top-of-book quotes for a token.
type BookSource interface {
	TopOfBook(ctx context.Context, tokenID string) (feed.Book, error)
}

// StatusSource reports which markets are still active.
type StatusSource interface {
	ActiveMarkets(ctx context.Context) (map[string]bool, error)
}

// Ledger is the order book of record: it lists orders awaiting an
// outcome and accepts realized payouts.
type Ledger interface {
	Unsettled() []stats.OrderRecord
	RecordSettlement(orderID string, payout float64)
}

// Poller periodically walks unsettled orders and realizes payouts for
// markets that have converged or closed.
type Poller struct {
	cfg    Config
	books  BookSource
	status StatusSource
	ledger Ledger
	log    zerolog.Logger

	mu       sync.RWMutex
	lastMid  map[string]float64 // order ID -> last observed mid price
	lastSync time.Time
}

func NewPoller(cfg Config, books BookSource, status StatusSource, ledger Ledger, log zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ConvergePrice <= 0.5 || cfg.ConvergePrice > 1 {
		cfg.ConvergePrice = DefaultConfig().ConvergePrice
	}
	return &Poller{
		cfg:     cfg,
		books:   books,
		status:  status,
		ledger:  ledger,
		log:     log.With().Str("component", "settle").Logger(),
		lastMid: make(map[string]float64),
	}
}

// Sync polls every unsettled order once. Book failures for individual
// orders are tolerated; the last observed mid stands in.
func (p *Poller) Sync(ctx context.Context) error {
	active, err := p.status.ActiveMarkets(ctx)
	if err != nil {
		return err
	}

	settled := 0
	for _, o := range p.ledger.Unsettled() {
		mid, known := p.observe(ctx, o)
		if active[o.MarketID] {
			if !known {
				continue
			}
			// Early settlement: a book pinned at an extreme has resolved
			// in all but name.
			switch {
			case mid >= p.cfg.ConvergePrice:
				p.realize(o, o.Shares)
				settled++
			case mid <= 1-p.cfg.ConvergePrice:
				p.realize(o, 0)
				settled++
			}
			continue
		}

		// The market left the active set. Settle from the last observed
		// price, snapped to the boundary once it had converged. An order
		// never priced settles flat at entry.
		if !known {
			mid = o.Price
		}
		switch {
		case mid >= p.cfg.ConvergePrice:
			p.realize(o, o.Shares)
		case mid <= 1-p.cfg.ConvergePrice:
			p.realize(o, 0)
		default:
			p.realize(o, o.Shares*mid)
		}
		settled++
	}

	p.mu.Lock()
	p.lastSync = time.Now()
	p.mu.Unlock()

	if settled > 0 {
		p.log.Info().Int("settled", settled).Msg("settlement sync complete")
	}
	return nil
}

// observe refreshes the cached mid for an order and reports whether any
// price has ever been seen for it.
func (p *Poller) observe(ctx context.Context, o stats.OrderRecord) (float64, bool) {
	book, err := p.books.TopOfBook(ctx, o.TokenID)
	if err != nil {
		p.log.Debug().Err(err).Str("order", o.ID).Msg("book unavailable, keeping last mid")
		p.mu.RLock()
		mid, known := p.lastMid[o.ID]
		p.mu.RUnlock()
		return mid, known
	}
	mid := (book.BestBid + book.BestAsk) / 2
	p.mu.Lock()
	p.lastMid[o.ID] = mid
	p.mu.Unlock()
	return mid, true
}

func (p *Poller) realize(o stats.OrderRecord, payout float64) {
	p.ledger.RecordSettlement(o.ID, payout)
	p.mu.Lock()
	delete(p.lastMid, o.ID)
	p.mu.Unlock()
	p.log.Info().
		Str("order", o.ID).
		Str("agent", o.Agent).
		Str("market", o.MarketID).
		Float64("payout", payout).
		Float64("cost", o.Cost).
		Msg("order settled")
}

// LastSync returns the time of the last completed sync.
func (p *Poller) LastSync() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

// Run starts the periodic sync loop. Blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Sync(ctx); err != nil {
		p.log.Warn().Err(err).Msg("initial settlement sync failed")
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Sync(ctx); err != nil {
				p.log.Warn().Err(err).Msg("settlement sync failed")
			}
		}
	}
}
