package regime

import (
	"fmt"
	"math"
)

// Label identifies a market regime.
type Label int

const (
	Unknown Label = iota
	HighVol
	LowVol
	Trending
	Ranging
)

func (l Label) String() string {
	switch l {
	case HighVol:
		return "high_vol"
	case LowVol:
		return "low_vol"
	case Trending:
		return "trending"
	case Ranging:
		return "ranging"
	default:
		return "unknown"
	}
}

// Profile is the allocation posture a confirmed regime maps to.
type Profile struct {
	PreferredStance string  `json:"preferred_stance"`
	MaxIntentPct    float64 `json:"max_intent_pct"`
	ExposureScale   float64 `json:"exposure_scale"`
}

var profiles = map[Label]Profile{
	HighVol:  {PreferredStance: "defensive", MaxIntentPct: 0.15, ExposureScale: 0.50},
	LowVol:   {PreferredStance: "carry", MaxIntentPct: 0.30, ExposureScale: 1.00},
	Trending: {PreferredStance: "directional", MaxIntentPct: 0.25, ExposureScale: 1.00},
	Ranging:  {PreferredStance: "carry", MaxIntentPct: 0.20, ExposureScale: 0.75},
}

// ProfileFor returns the allocation profile for a label. Unknown maps to the
// Ranging profile, the most conservative stance that still allows activity.
func ProfileFor(label Label) Profile {
	if p, ok := profiles[label]; ok {
		return p
	}
	return profiles[Ranging]
}

// Sample is one observation of the tracked reference series.
type Sample struct {
	Price float64
}

// Reading is a single classification with its confidence.
type Reading struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	VolRatio   float64 `json:"vol_ratio"`
	Direction  float64 `json:"direction"`
}

// Config holds the classification thresholds.
type Config struct {
	ShortWindow   int     `yaml:"short_window"`
	LongWindow    int     `yaml:"long_window"`
	HighVolRatio  float64 `yaml:"high_vol_ratio"`
	LowVolRatio   float64 `yaml:"low_vol_ratio"`
	TrendMinMove  float64 `yaml:"trend_min_move"`
	TrendMinAlign float64 `yaml:"trend_min_align"`
}

func DefaultConfig() Config {
	return Config{
		ShortWindow:   12,
		LongWindow:    48,
		HighVolRatio:  1.5,
		LowVolRatio:   0.6,
		TrendMinMove:  0.04,
		TrendMinAlign: 0.70,
	}
}

// Classify labels the window by comparing short-horizon volatility against
// long-horizon volatility and measuring directional consistency. Priority is
// HighVol over Trending over LowVol, with Ranging as the residual. The window
// must cover the long horizon; shorter windows return an error and the caller
// discards the reading.
func (c Config) Classify(window []Sample) (Reading, error) {
	if len(window) < c.LongWindow {
		return Reading{}, fmt.Errorf("classify: window %d shorter than long horizon %d", len(window), c.LongWindow)
	}

	longVol := stddevReturns(window[len(window)-c.LongWindow:])
	shortVol := stddevReturns(window[len(window)-c.ShortWindow:])
	ratio := 1.0
	if longVol > 0 {
		ratio = shortVol / longVol
	}

	short := window[len(window)-c.ShortWindow:]
	move := short[len(short)-1].Price - short[0].Price
	align := directionAlignment(short)
	direction := align
	if move < 0 {
		direction = -align
	}

	r := Reading{VolRatio: ratio, Direction: direction}
	switch {
	case ratio >= c.HighVolRatio:
		r.Label = HighVol
		r.Confidence = boundedConfidence((ratio - c.HighVolRatio) / c.HighVolRatio)
	case math.Abs(move) >= c.TrendMinMove && align >= c.TrendMinAlign:
		r.Label = Trending
		r.Confidence = boundedConfidence(align - c.TrendMinAlign)
	case ratio <= c.LowVolRatio:
		r.Label = LowVol
		r.Confidence = boundedConfidence((c.LowVolRatio - ratio) / c.LowVolRatio)
	default:
		r.Label = Ranging
		r.Confidence = 0.5
	}
	return r, nil
}

// stddevReturns computes the standard deviation of step returns over the
// window.
func stddevReturns(window []Sample) float64 {
	if len(window) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		returns = append(returns, window[i].Price-window[i-1].Price)
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// directionAlignment returns the fraction of steps moving in the dominant
// direction, in [0.5, 1] for any non-flat window.
func directionAlignment(window []Sample) float64 {
	ups, downs := 0, 0
	for i := 1; i < len(window); i++ {
		switch {
		case window[i].Price > window[i-1].Price:
			ups++
		case window[i].Price < window[i-1].Price:
			downs++
		}
	}
	total := ups + downs
	if total == 0 {
		return 0
	}
	if ups >= downs {
		return float64(ups) / float64(total)
	}
	return float64(downs) / float64(total)
}

// boundedConfidence maps a raw excess into [0.5, 1].
func boundedConfidence(excess float64) float64 {
	if excess < 0 {
		excess = 0
	}
	c := 0.5 + excess
	if c > 1 {
		return 1
	}
	return c
}
