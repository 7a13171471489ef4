package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/paper"
)

// QuoteSource supplies the current top of book for paper fills.
type QuoteSource interface {
	Quote(ctx context.Context, tokenID string) (paper.Quote, error)
}

// PaperBackend fills simulated orders against the paper simulator. Fill
// failures from the simulator (balance, inventory) are rejections, not
// errors, so they never trip agent error streaks.
type PaperBackend struct {
	sim    *paper.Simulator
	quotes QuoteSource
	log    zerolog.Logger
}

func NewPaperBackend(sim *paper.Simulator, quotes QuoteSource, log zerolog.Logger) *PaperBackend {
	return &PaperBackend{
		sim:    sim,
		quotes: quotes,
		log:    log.With().Str("component", "paper_backend").Logger(),
	}
}

func (b *PaperBackend) Place(ctx context.Context, order Order) (Result, error) {
	if b.sim == nil {
		return Result{}, fmt.Errorf("paper simulator not configured")
	}
	quote, err := b.quotes.Quote(ctx, order.TokenID)
	if err != nil {
		return Result{}, fmt.Errorf("quote %s: %w", order.TokenID, err)
	}

	fill, err := b.sim.ExecuteLimit(order.TokenID, order.Side, order.Price, order.Shares, quote)
	if err != nil {
		b.log.Warn().Err(err).Str("market", order.MarketID).Msg("paper order rejected")
		return Result{Status: StatusRejected, Reason: err.Error()}, nil
	}
	b.log.Info().
		Str("market", order.MarketID).
		Str("side", order.Side).
		Float64("price", fill.Price).
		Bool("filled", fill.Filled).
		Str("order_id", fill.OrderID).
		Msg("paper order placed")
	return Result{Status: StatusSubmitted, OrderID: fill.OrderID}, nil
}
