package governance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrUnattributedWrite = errors.New("policy update missing author or reason")

// Update is a proposed whole-document replacement. Version, UpdatedAt and
// UpdatedBy on the embedded document are assigned by the store.
type Update struct {
	Document Policy
	Author   string
	Reason   string
}

// HistoryEntry records one committed policy version.
type HistoryEntry struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Reason    string    `json:"reason"`
	Document  Policy    `json:"document"`
}

// Sink observes committed policy versions. Used for journaling and metrics;
// sink failures never affect the commit.
type Sink interface {
	PolicyCommitted(entry HistoryEntry)
}

// Store holds the current policy document and its append-only history.
// Writers are serialized; concurrent updates land in commit order and the
// last committed document wins. Readers always see a complete version.
type Store struct {
	mu      sync.RWMutex
	current Policy
	history []HistoryEntry
	sinks   []Sink
	log     zerolog.Logger
	now     func() time.Time
}

func NewStore(initial Policy, log zerolog.Logger) *Store {
	s := &Store{
		log: log.With().Str("component", "governance").Logger(),
		now: time.Now,
	}
	initial.Version = 1
	initial.UpdatedAt = s.now().UTC()
	if initial.UpdatedBy == "" {
		initial.UpdatedBy = "config"
	}
	if initial.Reason == "" {
		initial.Reason = "initial policy"
	}
	s.current = initial.clone()
	s.history = []HistoryEntry{{
		Version:   initial.Version,
		Timestamp: initial.UpdatedAt,
		Author:    initial.UpdatedBy,
		Reason:    initial.Reason,
		Document:  initial.clone(),
	}}
	return s
}

// AddSink registers an observer for committed versions.
func (s *Store) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Version returns the current document version.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Version
}

// Update replaces the whole document, bumps the version, and appends to
// history. Writes without attribution are refused.
func (s *Store) Update(ctx context.Context, u Update) (Policy, error) {
	if err := ctx.Err(); err != nil {
		return Policy{}, err
	}
	if u.Author == "" || u.Reason == "" {
		return Policy{}, ErrUnattributedWrite
	}

	s.mu.Lock()
	doc := u.Document.clone()
	doc.Version = s.current.Version + 1
	doc.UpdatedAt = s.now().UTC()
	doc.UpdatedBy = u.Author
	doc.Reason = u.Reason
	s.current = doc

	entry := HistoryEntry{
		Version:   doc.Version,
		Timestamp: doc.UpdatedAt,
		Author:    u.Author,
		Reason:    u.Reason,
		Document:  doc.clone(),
	}
	s.history = append(s.history, entry)
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	s.log.Info().
		Int("version", entry.Version).
		Str("author", entry.Author).
		Str("reason", entry.Reason).
		Msg("policy committed")

	for _, sink := range sinks {
		sink.PolicyCommitted(entry)
	}
	return doc.clone(), nil
}

// History returns a copy of the committed version log, oldest first.
func (s *Store) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	for i, e := range s.history {
		e.Document = e.Document.clone()
		out[i] = e
	}
	return out
}
