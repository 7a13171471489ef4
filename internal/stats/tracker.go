package stats

import (
	"sync"
	"time"
)

// OrderRecord tracks the lifecycle of a dispatched order.
type OrderRecord struct {
	ID        string
	Agent     string
	Domain    string
	MarketID  string
	TokenID   string
	Side      string
	Status    string // submitted | rejected | error | filled | settled
	Price     float64
	Shares    float64
	Cost      float64
	Simulated bool
	Reason    string
	PnL       float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settlement is one realized outcome for a settled order.
type Settlement struct {
	OrderID   string
	Agent     string
	PnL       float64
	Timestamp time.Time
}

// Tracker monitors dispatched orders, realized outcomes, and live exposure.
// It is the read model behind the allocator's performance window and the
// gate's exposure input.
type Tracker struct {
	mu          sync.RWMutex
	orders      map[string]*OrderRecord
	order       []string // insertion order for recency queries
	settlements []Settlement
	errStreaks  map[string]int

	// OnSettle is invoked outside the lock for each realized outcome, so the
	// performance scorer can ingest PnL observations as they land.
	OnSettle func(agent string, pnl float64)
}

func NewTracker() *Tracker {
	return &Tracker{
		orders:     make(map[string]*OrderRecord),
		errStreaks: make(map[string]int),
	}
}

// RecordDispatch registers a dispatch attempt and its immediate outcome.
// A submitted order resets the agent's error streak; an error extends it.
func (t *Tracker) RecordDispatch(rec OrderRecord) {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Cost = rec.Price * rec.Shares

	t.mu.Lock()
	defer t.mu.Unlock()
	cp := rec
	t.orders[rec.ID] = &cp
	t.order = append(t.order, rec.ID)

	switch rec.Status {
	case "error":
		t.errStreaks[rec.Agent]++
	case "submitted":
		t.errStreaks[rec.Agent] = 0
	}
}

// UpdateStatus moves an order to a new lifecycle status.
func (t *Tracker) UpdateStatus(orderID, status, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		return
	}
	o.Status = status
	if reason != "" {
		o.Reason = reason
	}
	o.UpdatedAt = time.Now()
}

// RecordSettlement realizes the outcome of an order: payout is the USD value
// received at resolution, PnL is payout minus cost.
func (t *Tracker) RecordSettlement(orderID string, payout float64) {
	t.mu.Lock()
	o, ok := t.orders[orderID]
	if !ok {
		t.mu.Unlock()
		return
	}
	pnl := payout - o.Cost
	o.Status = "settled"
	o.PnL = pnl
	o.UpdatedAt = time.Now()
	s := Settlement{OrderID: orderID, Agent: o.Agent, PnL: pnl, Timestamp: o.UpdatedAt}
	t.settlements = append(t.settlements, s)
	cb := t.OnSettle
	t.mu.Unlock()

	if cb != nil {
		cb(s.Agent, s.PnL)
	}
}

// OpenExposure sums the cost of live, unsettled, non-simulated orders.
func (t *Tracker) OpenExposure() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, o := range t.orders {
		if o.Simulated {
			continue
		}
		if o.Status == "submitted" || o.Status == "filled" {
			total += o.Cost
		}
	}
	return total
}

// AgentExposure sums live non-simulated exposure for one agent.
func (t *Tracker) AgentExposure(agent string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, o := range t.orders {
		if o.Agent != agent || o.Simulated {
			continue
		}
		if o.Status == "submitted" || o.Status == "filled" {
			total += o.Cost
		}
	}
	return total
}

// RealizedPnL sums settled PnL across all agents.
func (t *Tracker) RealizedPnL() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, s := range t.settlements {
		total += s.PnL
	}
	return total
}

// AgentRealizedPnL sums settled PnL for one agent.
func (t *Tracker) AgentRealizedPnL(agent string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, s := range t.settlements {
		if s.Agent == agent {
			total += s.PnL
		}
	}
	return total
}

// Unsettled returns live orders still awaiting a realized outcome, in
// insertion order.
func (t *Tracker) Unsettled() []OrderRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]OrderRecord, 0, len(t.order))
	for _, id := range t.order {
		o, ok := t.orders[id]
		if !ok {
			continue
		}
		if o.Status == "submitted" || o.Status == "filled" {
			out = append(out, *o)
		}
	}
	return out
}

// ConsecutiveErrors returns the agent's current dispatch error streak.
func (t *Tracker) ConsecutiveErrors(agent string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errStreaks[agent]
}

// RecentOrders returns the last N dispatch records, most recent first.
func (t *Tracker) RecentOrders(limit int) []OrderRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.order)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]OrderRecord, 0, limit)
	for i := 0; i < limit; i++ {
		if o, ok := t.orders[t.order[n-1-i]]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// Counts returns total orders, submissions, and settlements.
func (t *Tracker) Counts() (orders, submitted, settled int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	orders = len(t.orders)
	for _, o := range t.orders {
		switch o.Status {
		case "submitted", "filled":
			submitted++
		case "settled":
			settled++
		}
	}
	return orders, submitted, len(t.settlements)
}
