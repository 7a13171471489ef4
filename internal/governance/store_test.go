package governance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testStore() *Store {
	return NewStore(Default(), zerolog.Nop())
}

func TestInitialVersion(t *testing.T) {
	s := testStore()
	snap := s.Snapshot()
	require.Equal(t, 1, snap.Version)
	require.True(t, snap.SimulationOnly)
	require.Equal(t, 50.0, snap.MaxOrderNotional)
	require.Equal(t, 0.20, snap.MaxEntryPrice)
	require.Len(t, s.History(), 1)
}

func TestUpdateBumpsVersionAndAppendsHistory(t *testing.T) {
	s := testStore()

	doc := s.Snapshot()
	doc.MaxOrderNotional = 25
	_, err := s.Update(context.Background(), Update{Document: doc, Author: "operator", Reason: "tighten caps"})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, 2, snap.Version)
	require.Equal(t, 25.0, snap.MaxOrderNotional)
	require.Equal(t, "operator", snap.UpdatedBy)

	hist := s.History()
	require.Len(t, hist, 2)
	require.Equal(t, 1, hist[0].Version)
	require.Equal(t, 2, hist[1].Version)
	require.Equal(t, "tighten caps", hist[1].Reason)
}

func TestUpdateRequiresAttribution(t *testing.T) {
	s := testStore()
	_, err := s.Update(context.Background(), Update{Document: s.Snapshot()})
	require.ErrorIs(t, err, ErrUnattributedWrite)
	require.Equal(t, 1, s.Version())
}

func TestLastWriterWins(t *testing.T) {
	s := testStore()

	a := s.Snapshot()
	a.MaxOrderNotional = 10
	b := s.Snapshot()
	b.MaxOrderNotional = 80

	_, err := s.Update(context.Background(), Update{Document: a, Author: "allocator", Reason: "defensive"})
	require.NoError(t, err)
	_, err = s.Update(context.Background(), Update{Document: b, Author: "operator", Reason: "manual override"})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, 80.0, snap.MaxOrderNotional)
	require.Equal(t, 3, snap.Version)
}

func TestSnapshotDoesNotAliasStoreState(t *testing.T) {
	s := testStore()
	snap := s.Snapshot()
	snap.AgentCeilings["sports"] = 0.5
	snap.BlockedDomains = append(snap.BlockedDomains, "politics")

	fresh := s.Snapshot()
	require.Empty(t, fresh.AgentCeilings)
	require.Empty(t, fresh.BlockedDomains)
}

func TestConcurrentWritersSerialize(t *testing.T) {
	s := testStore()
	const writers = 16

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := s.Snapshot()
			_, err := s.Update(context.Background(), Update{Document: doc, Author: "allocator", Reason: "tick"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	hist := s.History()
	require.Len(t, hist, writers+1)
	for i, e := range hist {
		require.Equal(t, i+1, e.Version)
	}
	require.Equal(t, writers+1, s.Version())
}

type captureSink struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (c *captureSink) PolicyCommitted(e HistoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func TestSinkObservesCommits(t *testing.T) {
	s := testStore()
	sink := &captureSink{}
	s.AddSink(sink)

	doc := s.Snapshot()
	doc.RegimeLabel = "high_vol"
	_, err := s.Update(context.Background(), Update{Document: doc, Author: "allocator", Reason: "regime=high_vol"})
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.entries, 1)
	require.Equal(t, 2, sink.entries[0].Version)
	require.Equal(t, "high_vol", sink.entries[0].Document.RegimeLabel)
}

func TestUpdateHonorsCancelledContext(t *testing.T) {
	s := testStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Update(ctx, Update{Document: s.Snapshot(), Author: "operator", Reason: "late"})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}
