package gate

import (
	"fmt"

	"github.com/ploylabs/ploy/internal/governance"
)

// Intent is a fully specified order the orchestrator wants to place.
type Intent struct {
	ID        string  `json:"id"`
	Agent     string  `json:"agent"`
	Domain    string  `json:"domain"`
	MarketID  string  `json:"market_id"`
	TokenID   string  `json:"token_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Shares    float64 `json:"shares"`
	Simulated bool    `json:"simulated"`
}

// Cost returns the order notional in USD.
func (i Intent) Cost() float64 { return i.Shares * i.Price }

type Kind int

const (
	Allow Kind = iota
	AllowModified
	Deny
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case AllowModified:
		return "allow_modified"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict on an intent. For Allow and AllowModified,
// Intent carries the admitted order; the input is never mutated.
type Decision struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
	Intent Intent `json:"intent"`
}

// Evaluate checks an intent against the current policy snapshot.
// currentExposure is the live notional already deployed across all agents.
// Checks run in a fixed order and the first failure wins, so a single intent
// always maps to one deterministic reason.
func Evaluate(intent Intent, policy governance.Policy, currentExposure float64) Decision {
	if cost := intent.Cost(); policy.MaxOrderNotional > 0 && cost > policy.MaxOrderNotional {
		return Decision{
			Kind:   Deny,
			Reason: fmt.Sprintf("order cost %.2f exceeds limit %.2f", cost, policy.MaxOrderNotional),
		}
	}
	if policy.MaxEntryPrice > 0 && intent.Price > policy.MaxEntryPrice {
		return Decision{
			Kind:   Deny,
			Reason: fmt.Sprintf("price %.3f exceeds reward-to-risk threshold %.3f", intent.Price, policy.MaxEntryPrice),
		}
	}
	if policy.BlockNewIntents {
		return Decision{Kind: Deny, Reason: "new intents blocked by policy"}
	}
	if policy.DomainBlocked(intent.Domain) {
		return Decision{Kind: Deny, Reason: fmt.Sprintf("domain %s blocked by policy", intent.Domain)}
	}
	if policy.AgentPaused(intent.Agent) {
		return Decision{Kind: Deny, Reason: fmt.Sprintf("agent %s paused by policy", intent.Agent)}
	}
	if projected := currentExposure + intent.Cost(); policy.MaxTotalNotional > 0 && projected > policy.MaxTotalNotional {
		return Decision{
			Kind:   Deny,
			Reason: fmt.Sprintf("projected exposure %.2f exceeds total limit %.2f", projected, policy.MaxTotalNotional),
		}
	}
	if policy.SimulationOnly && !intent.Simulated {
		modified := intent
		modified.Simulated = true
		return Decision{
			Kind:   AllowModified,
			Reason: "simulation mode forced by policy",
			Intent: modified,
		}
	}
	return Decision{Kind: Allow, Intent: intent}
}
