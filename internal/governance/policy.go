package governance

import "time"

// Policy is the whole-document governance state read by the admission gate
// and written by the allocator and by operators. Updates replace the full
// document; there are no per-field writes.
type Policy struct {
	SimulationOnly     bool               `json:"simulation_only" yaml:"simulation_only"`
	BlockNewIntents    bool               `json:"block_new_intents" yaml:"block_new_intents"`
	BlockedDomains     []string           `json:"blocked_domains" yaml:"blocked_domains"`
	MaxOrderNotional   float64            `json:"max_order_notional_usd" yaml:"max_order_notional_usd"`
	MaxTotalNotional   float64            `json:"max_total_notional_usd" yaml:"max_total_notional_usd"`
	MaxEntryPrice      float64            `json:"max_entry_price" yaml:"max_entry_price"`
	AgentCeilings      map[string]float64 `json:"agent_ceilings" yaml:"agent_ceilings"`
	PausedAgents       []string           `json:"paused_agents" yaml:"paused_agents"`
	RegimeLabel        string             `json:"regime_label" yaml:"regime_label"`

	Version   int       `json:"version" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
	UpdatedBy string    `json:"updated_by" yaml:"-"`
	Reason    string    `json:"reason" yaml:"-"`
}

// Default returns the starting policy before any governance write.
func Default() Policy {
	return Policy{
		SimulationOnly:   true,
		MaxOrderNotional: 50,
		MaxTotalNotional: 500,
		MaxEntryPrice:    0.20,
		AgentCeilings:    map[string]float64{},
	}
}

// DomainBlocked reports whether a domain appears on the blocked list.
func (p Policy) DomainBlocked(domain string) bool {
	for _, d := range p.BlockedDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// AgentPaused reports whether an agent appears on the paused list.
func (p Policy) AgentPaused(agent string) bool {
	for _, a := range p.PausedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// clone deep-copies the document so snapshots never alias store state.
func (p Policy) clone() Policy {
	cp := p
	cp.BlockedDomains = append([]string(nil), p.BlockedDomains...)
	cp.PausedAgents = append([]string(nil), p.PausedAgents...)
	cp.AgentCeilings = make(map[string]float64, len(p.AgentCeilings))
	for k, v := range p.AgentCeilings {
		cp.AgentCeilings[k] = v
	}
	return cp
}
