package scan

import (
	"time"
)

// Cycle stages, in execution order. Every cycle ends at Reporting no
// matter how early the pipeline drains.
type Stage int

const (
	Scanning Stage = iota
	Filtering
	Researching
	Judging
	Admitting
	Dispatching
	Reporting
)

func (s Stage) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Filtering:
		return "filtering"
	case Researching:
		return "researching"
	case Judging:
		return "judging"
	case Admitting:
		return "admitting"
	case Dispatching:
		return "dispatching"
	case Reporting:
		return "reporting"
	default:
		return "unknown"
	}
}

const (
	ActionTrade   = "TRADE"
	ActionPass    = "PASS"
	ActionMonitor = "MONITOR"
)

// Line is the final word on one considered candidate.
type Line struct {
	Market   string  `json:"market"`
	Question string  `json:"question,omitempty"`
	Action   string  `json:"action"`
	Reason   string  `json:"reason"`
	Edge     float64 `json:"edge,omitempty"`
}

// OrderOutcome records the single dispatch a cycle may perform.
type OrderOutcome struct {
	OrderID   string  `json:"order_id"`
	Market    string  `json:"market"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Shares    float64 `json:"shares"`
	Simulated bool    `json:"simulated"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
}

// CycleReport is the structured summary a cycle always produces.
type CycleReport struct {
	ID         string        `json:"id"`
	Agent      string        `json:"agent"`
	Domain     string        `json:"domain"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Scanned    int           `json:"scanned"`
	Eligible   int           `json:"eligible"`
	Researched int           `json:"researched"`
	Judged     int           `json:"judged"`
	Lines      []Line        `json:"lines"`
	Order      *OrderOutcome `json:"order,omitempty"`
	Note       string        `json:"note,omitempty"`
}
