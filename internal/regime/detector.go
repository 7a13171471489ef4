package regime

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State tracks where a candidate regime sits in the confirmation lifecycle.
type State int

const (
	Observing State = iota
	PendingConfirmation
	Confirmed
	Applied
)

func (s State) String() string {
	switch s {
	case Observing:
		return "observing"
	case PendingConfirmation:
		return "pending_confirmation"
	case Confirmed:
		return "confirmed"
	case Applied:
		return "applied"
	default:
		return "unknown"
	}
}

// Transition records a confirmed regime change.
type Transition struct {
	From      Label     `json:"from"`
	To        Label     `json:"to"`
	Reading   Reading   `json:"reading"`
	Timestamp time.Time `json:"timestamp"`
}

// Detector feeds price samples through the classifier and requires two
// consecutive identical labels before a regime change is confirmed. A single
// divergent reading resets the candidate. Only confirmed transitions are
// surfaced; callers apply them to policy and then mark them applied.
type Detector struct {
	mu sync.Mutex

	cfg Config
	log zerolog.Logger

	samples        []Sample
	state          State
	active         Label
	candidate      Label
	candidateCount int
	lastReading    Reading
	transitions    []Transition
	now            func() time.Time
}

func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	return &Detector{
		cfg: cfg,
		log: log.With().Str("component", "regime").Logger(),
		now: time.Now,
	}
}

// Observe appends a price sample and reclassifies. It returns a non-nil
// Transition only when this observation confirms a regime change. A window
// still too short for the long horizon is not an error; a classification
// failure is returned and leaves confirmation state untouched.
func (d *Detector) Observe(price float64) (*Transition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.samples = append(d.samples, Sample{Price: price})
	if max := d.cfg.LongWindow * 2; len(d.samples) > max {
		d.samples = d.samples[len(d.samples)-max:]
	}
	if len(d.samples) < d.cfg.LongWindow {
		return nil, nil
	}

	reading, err := d.cfg.Classify(d.samples)
	if err != nil {
		return nil, err
	}
	d.lastReading = reading

	if reading.Label != d.candidate {
		d.candidate = reading.Label
		d.candidateCount = 1
		if reading.Label != d.active {
			d.state = PendingConfirmation
		} else if d.state == PendingConfirmation {
			// Divergence did not confirm; back to steady state.
			d.state = Observing
		}
		return nil, nil
	}

	d.candidateCount++
	if d.candidateCount != 2 || reading.Label == d.active {
		return nil, nil
	}

	tr := Transition{
		From:      d.active,
		To:        reading.Label,
		Reading:   reading,
		Timestamp: d.now().UTC(),
	}
	d.active = reading.Label
	d.state = Confirmed
	d.transitions = append(d.transitions, tr)
	d.log.Info().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Float64("confidence", reading.Confidence).
		Msg("regime confirmed")
	return &tr, nil
}

// MarkApplied records that the confirmed regime has been written to policy.
func (d *Detector) MarkApplied() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Confirmed {
		d.state = Applied
	}
}

// Active returns the last confirmed label.
func (d *Detector) Active() Label {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// State returns the current confirmation state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastReading returns the most recent classification.
func (d *Detector) LastReading() Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReading
}

// Transitions returns the confirmed transition history, oldest first.
func (d *Detector) Transitions() []Transition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transition(nil), d.transitions...)
}
