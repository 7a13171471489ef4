package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type LiveConfig struct {
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// LiveBackend signs and submits GTC limit orders through the exchange
// client. A circuit breaker shields the venue from retry storms when
// submissions start failing.
type LiveBackend struct {
	client  clob.Client
	signer  auth.Signer
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewLiveBackend(cfg LiveConfig, client clob.Client, signer auth.Signer, log zerolog.Logger) *LiveBackend {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &LiveBackend{
		client: client,
		signer: signer,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "order-submit",
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		}),
		log: log.With().Str("component", "live_backend").Logger(),
	}
}

func (b *LiveBackend) Place(ctx context.Context, order Order) (Result, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.submit(ctx, order)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			b.log.Warn().Str("market", order.MarketID).Msg("order submission suppressed, breaker open")
			return Result{Status: StatusError, Reason: "submission breaker open"}, nil
		}
		return Result{}, err
	}
	return out.(Result), nil
}

func (b *LiveBackend) submit(ctx context.Context, order Order) (Result, error) {
	builder := clob.NewOrderBuilder(b.client, b.signer).
		TokenID(order.TokenID).
		Side(order.Side).
		Price(order.Price).
		AmountUSDC(order.Cost()).
		OrderType(clobtypes.OrderTypeGTC)

	signable, err := builder.BuildSignableWithContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("build order %s %s: %w", order.Side, order.TokenID, err)
	}
	resp, err := b.client.CreateOrderFromSignable(ctx, signable)
	if err != nil {
		return Result{}, fmt.Errorf("submit order %s %s: %w", order.Side, order.TokenID, err)
	}
	b.log.Info().
		Str("market", order.MarketID).
		Str("side", order.Side).
		Float64("price", order.Price).
		Str("order_id", resp.ID).
		Msg("live order submitted")
	return Result{Status: StatusSubmitted, OrderID: resp.ID}, nil
}
