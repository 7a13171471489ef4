package config

import (
	"fmt"
	"strings"
)

// ApplyRolloutPhase applies a staged rollout preset to the config.
// Supported phases:
// - paper:  all orders simulated against the paper engine
// - shadow: full live wiring, orders still forced to simulation
// - live:   live order submission using configured values
func ApplyRolloutPhase(cfg *Config, phase string) error {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return nil
	}

	switch p {
	case "paper":
		cfg.Policy.SimulationOnly = true
	case "shadow", "live-dryrun", "live-dry-run":
		cfg.Policy.SimulationOnly = true
	case "live":
		cfg.Policy.SimulationOnly = false
	default:
		return fmt.Errorf("unknown rollout phase %q (supported: paper|shadow|live)", phase)
	}

	return nil
}
