package stats

import (
	"testing"
)

func dispatch(t *Tracker, id, agent, status string, price, shares float64, simulated bool) {
	t.RecordDispatch(OrderRecord{
		ID:        id,
		Agent:     agent,
		MarketID:  "market-" + id,
		TokenID:   "token-" + id,
		Side:      "BUY",
		Status:    status,
		Price:     price,
		Shares:    shares,
		Simulated: simulated,
	})
}

func TestOpenExposureCountsLiveOrdersOnly(t *testing.T) {
	tr := NewTracker()
	dispatch(tr, "o1", "sports", "submitted", 0.15, 100, false) // 15
	dispatch(tr, "o2", "sports", "rejected", 0.15, 100, false)  // excluded
	dispatch(tr, "o3", "crypto", "submitted", 0.10, 50, true)   // simulated, excluded
	dispatch(tr, "o4", "crypto", "submitted", 0.20, 100, false) // 20

	if got := tr.OpenExposure(); got != 35 {
		t.Fatalf("open exposure: expected 35, got %f", got)
	}
	if got := tr.AgentExposure("sports"); got != 15 {
		t.Fatalf("agent exposure: expected 15, got %f", got)
	}
}

func TestSettlementRealizesPnL(t *testing.T) {
	tr := NewTracker()
	var cbAgent string
	var cbPnL float64
	tr.OnSettle = func(agent string, pnl float64) {
		cbAgent = agent
		cbPnL = pnl
	}

	dispatch(tr, "o1", "sports", "submitted", 0.15, 100, false) // cost 15
	tr.RecordSettlement("o1", 100)                              // win pays 1.0/share

	if got := tr.RealizedPnL(); got != 85 {
		t.Fatalf("realized pnl: expected 85, got %f", got)
	}
	if got := tr.AgentRealizedPnL("sports"); got != 85 {
		t.Fatalf("agent pnl: expected 85, got %f", got)
	}
	if cbAgent != "sports" || cbPnL != 85 {
		t.Fatalf("settle callback: expected sports/85, got %s/%f", cbAgent, cbPnL)
	}
	if got := tr.OpenExposure(); got != 0 {
		t.Fatalf("settled order must leave exposure, got %f", got)
	}
}

func TestSettlementLoss(t *testing.T) {
	tr := NewTracker()
	dispatch(tr, "o1", "sports", "submitted", 0.15, 100, false)
	tr.RecordSettlement("o1", 0)
	if got := tr.RealizedPnL(); got != -15 {
		t.Fatalf("expected -15, got %f", got)
	}
}

func TestSettlementUnknownOrderIgnored(t *testing.T) {
	tr := NewTracker()
	tr.RecordSettlement("ghost", 100)
	if got := tr.RealizedPnL(); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestUnsettledReturnsLiveOrdersInOrder(t *testing.T) {
	tr := NewTracker()
	dispatch(tr, "o1", "sports", "submitted", 0.15, 100, false)
	dispatch(tr, "o2", "sports", "rejected", 0.15, 100, false)
	dispatch(tr, "o3", "crypto", "submitted", 0.10, 50, true) // simulated still awaits settlement
	dispatch(tr, "o4", "crypto", "submitted", 0.20, 100, false)
	tr.UpdateStatus("o4", "filled", "")

	open := tr.Unsettled()
	if len(open) != 3 {
		t.Fatalf("expected 3 unsettled orders, got %d", len(open))
	}
	if open[0].ID != "o1" || open[1].ID != "o3" || open[2].ID != "o4" {
		t.Fatalf("unexpected order: %s, %s, %s", open[0].ID, open[1].ID, open[2].ID)
	}

	tr.RecordSettlement("o1", 100)
	if got := tr.Unsettled(); len(got) != 2 {
		t.Fatalf("expected 2 after settlement, got %d", len(got))
	}
}

func TestErrorStreakTracksConsecutiveFailures(t *testing.T) {
	tr := NewTracker()
	dispatch(tr, "o1", "sports", "error", 0.15, 100, false)
	dispatch(tr, "o2", "sports", "error", 0.15, 100, false)
	if got := tr.ConsecutiveErrors("sports"); got != 2 {
		t.Fatalf("expected streak 2, got %d", got)
	}

	dispatch(tr, "o3", "sports", "submitted", 0.15, 100, false)
	if got := tr.ConsecutiveErrors("sports"); got != 0 {
		t.Fatalf("expected streak reset, got %d", got)
	}

	// Rejections are venue verdicts, not transport failures; the streak is
	// untouched.
	dispatch(tr, "o4", "sports", "error", 0.15, 100, false)
	dispatch(tr, "o5", "sports", "rejected", 0.15, 100, false)
	if got := tr.ConsecutiveErrors("sports"); got != 1 {
		t.Fatalf("expected streak 1 after rejection, got %d", got)
	}
}

func TestRecentOrdersMostRecentFirst(t *testing.T) {
	tr := NewTracker()
	dispatch(tr, "o1", "sports", "submitted", 0.15, 100, false)
	dispatch(tr, "o2", "sports", "submitted", 0.15, 100, false)
	dispatch(tr, "o3", "sports", "submitted", 0.15, 100, false)

	recent := tr.RecentOrders(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].ID != "o3" || recent[1].ID != "o2" {
		t.Fatalf("expected o3,o2; got %s,%s", recent[0].ID, recent[1].ID)
	}
}

func TestCounts(t *testing.T) {
	tr := NewTracker()
	dispatch(tr, "o1", "sports", "submitted", 0.15, 100, false)
	dispatch(tr, "o2", "sports", "rejected", 0.15, 100, false)
	dispatch(tr, "o3", "sports", "submitted", 0.15, 100, false)
	tr.RecordSettlement("o3", 0)

	orders, submitted, settled := tr.Counts()
	if orders != 3 || submitted != 1 || settled != 1 {
		t.Fatalf("counts: expected 3/1/1, got %d/%d/%d", orders, submitted, settled)
	}
}
