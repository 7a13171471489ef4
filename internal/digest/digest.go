// Package digest renders the periodic Telegram session summary.
package digest

import (
	"fmt"
	"strings"
)

// AgentLine is one agent's row in the summary.
type AgentLine struct {
	Agent       string
	Score       float64
	RealizedPnL float64
	ExposureUSD float64
	ErrorStreak int
	Paused      bool
}

// Summary is the data behind one digest message.
type Summary struct {
	Mode          string
	Regime        string
	PolicyVersion int
	OpenExposure  float64
	RealizedPnL   float64
	Orders        int
	Submitted     int
	Settled       int
	Agents        []AgentLine
	Actions       []string
}

// BuildActions derives the suggested follow-ups for a summary.
func BuildActions(s Summary) []string {
	actions := make([]string, 0, 4)
	for _, a := range s.Agents {
		if a.Paused {
			actions = append(actions, fmt.Sprintf("Review paused agent %s before resuming.", a.Agent))
		} else if a.ErrorStreak > 0 {
			actions = append(actions, fmt.Sprintf("Check dispatch path for %s (%d consecutive errors).", a.Agent, a.ErrorStreak))
		}
	}
	if s.RealizedPnL < 0 {
		actions = append(actions, "Improve selectivity: raise the reward/risk or expected value floor.")
	}
	if s.Settled < 20 && strings.EqualFold(s.Mode, "live") {
		actions = append(actions, "Collect at least 20 settlements before scaling allocations.")
	}
	if len(actions) == 0 {
		actions = append(actions, "Keep current discipline and monitor regime drift.")
	}
	return actions
}

// RenderHTML renders the summary in Telegram HTML parse mode.
func RenderHTML(s Summary) string {
	var b strings.Builder
	b.WriteString("<b>Ploy Session Digest</b>\n")
	b.WriteString(fmt.Sprintf("Mode: %s\nRegime: %s\nPolicy: v%d\n", strings.ToUpper(s.Mode), s.Regime, s.PolicyVersion))
	b.WriteString(fmt.Sprintf("Realized PnL: %.2f USDC\nOpen Exposure: %.2f USDC\n", s.RealizedPnL, s.OpenExposure))
	b.WriteString(fmt.Sprintf("Orders: %d (submitted %d, settled %d)\n", s.Orders, s.Submitted, s.Settled))

	if len(s.Agents) > 0 {
		b.WriteString("\n<b>Agents</b>\n")
		for _, a := range s.Agents {
			state := "active"
			if a.Paused {
				state = "paused"
			}
			b.WriteString(fmt.Sprintf("- %s: score %.2f, pnl %.2f, exposure %.2f (%s)\n",
				a.Agent, a.Score, a.RealizedPnL, a.ExposureUSD, state))
		}
	}
	if len(s.Actions) > 0 {
		b.WriteString("\n<b>Follow-ups</b>\n")
		for _, action := range s.Actions {
			b.WriteString("- " + action + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}
