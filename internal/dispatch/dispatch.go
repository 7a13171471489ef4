// Package dispatch routes admitted orders to an execution backend and
// records their outcomes.
package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/stats"
)

// Order is a fully gated trade ready for execution.
type Order struct {
	ID        string
	Agent     string
	Domain    string
	MarketID  string
	TokenID   string
	Side      string
	Price     float64
	Shares    float64
	Simulated bool
}

func (o Order) Cost() float64 { return o.Price * o.Shares }

const (
	StatusSubmitted = "submitted"
	StatusRejected  = "rejected"
	StatusError     = "error"
)

// Result is a backend's answer for a single order.
type Result struct {
	Status  string
	OrderID string
	Reason  string
}

// Backend executes one order against a venue, real or simulated.
type Backend interface {
	Place(ctx context.Context, order Order) (Result, error)
}

// Notifier receives alerts for live order submissions.
type Notifier interface {
	NotifyOrderSubmitted(ctx context.Context, agent, market, side string, price, shares float64) error
}

// Dispatcher routes each order to the live or paper backend by its
// Simulated flag and records every outcome in the tracker.
type Dispatcher struct {
	live     Backend
	paper    Backend
	tracker  *stats.Tracker
	notifier Notifier
	log      zerolog.Logger
}

func NewDispatcher(live, paper Backend, tracker *stats.Tracker, notifier Notifier, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		live:     live,
		paper:    paper,
		tracker:  tracker,
		notifier: notifier,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch executes the order and returns the backend result. Backend
// errors are folded into a Result with StatusError so callers see a
// single outcome shape.
func (d *Dispatcher) Dispatch(ctx context.Context, order Order) Result {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Side = strings.ToUpper(strings.TrimSpace(order.Side))

	backend := d.live
	if order.Simulated {
		backend = d.paper
	}
	if backend == nil {
		res := Result{Status: StatusError, Reason: "no backend configured"}
		d.record(order, res)
		return res
	}

	res, err := backend.Place(ctx, order)
	if err != nil {
		res = Result{Status: StatusError, Reason: err.Error()}
	}
	if res.OrderID == "" {
		res.OrderID = order.ID
	}

	d.record(order, res)

	evt := d.log.Info()
	if res.Status == StatusError {
		evt = d.log.Error()
	}
	evt.Str("agent", order.Agent).
		Str("market", order.MarketID).
		Str("side", order.Side).
		Float64("price", order.Price).
		Float64("shares", order.Shares).
		Bool("simulated", order.Simulated).
		Str("status", res.Status).
		Str("order_id", res.OrderID).
		Msg("order dispatched")

	if res.Status == StatusSubmitted && !order.Simulated && d.notifier != nil {
		if nerr := d.notifier.NotifyOrderSubmitted(ctx, order.Agent, order.MarketID, order.Side, order.Price, order.Shares); nerr != nil {
			d.log.Warn().Err(nerr).Msg("dispatch notification failed")
		}
	}
	return res
}

func (d *Dispatcher) record(order Order, res Result) {
	if d.tracker == nil {
		return
	}
	d.tracker.RecordDispatch(stats.OrderRecord{
		ID:        res.OrderID,
		Agent:     order.Agent,
		Domain:    order.Domain,
		MarketID:  order.MarketID,
		TokenID:   order.TokenID,
		Side:      order.Side,
		Price:     order.Price,
		Shares:    order.Shares,
		Simulated: order.Simulated,
		Status:    res.Status,
		Reason:    res.Reason,
	})
}
