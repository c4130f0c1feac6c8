package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	s, st, err := Open(statePath(t))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Empty(t, st.Positions)
	assert.False(t, st.LiveMode)
	assert.Zero(t, st.NextTicket)
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := statePath(t)
	s, _, err := Open(path)
	require.NoError(t, err)

	opened := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	ls := LedgerState{
		Positions: []Position{{
			Ticket: 1_000_000, Symbol: "EURUSD", Side: "BUY", Volume: 0.5,
			OpenPrice: 1.1000, CurrentPrice: 1.1020, StopLoss: 1.0950,
			TakeProfit: 1.1100, Profit: 100, OpenTime: opened,
		}},
		ClosedPositions: []Position{{
			Ticket: 1_000_001, Symbol: "GBPUSD", Side: "SELL", Volume: 0.1,
			OpenPrice: 1.2500, CurrentPrice: 1.2400, ClosePrice: 1.2400,
			Profit: 100, OpenTime: opened, CloseTime: opened.Add(time.Hour),
		}},
		NextTicket:     1_000_002,
		InitialBalance: 10_000,
	}
	require.NoError(t, s.SaveLedger(ls))

	_, st, err := Open(path)
	require.NoError(t, err)
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "EURUSD", st.Positions[0].Symbol)
	assert.Equal(t, 1.0950, st.Positions[0].StopLoss)
	require.Len(t, st.ClosedPositions, 1)
	assert.True(t, opened.Add(time.Hour).Equal(st.ClosedPositions[0].CloseTime))
	assert.Equal(t, int64(1_000_002), st.NextTicket)
	assert.Equal(t, 10_000.0, st.InitialBalance)
	assert.False(t, st.LastUpdated.IsZero())
}

func TestLiveModeMergesWithLedger(t *testing.T) {
	t.Parallel()

	path := statePath(t)
	s, _, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SaveLedger(LedgerState{NextTicket: 1_000_005, InitialBalance: 5000}))
	require.NoError(t, s.SaveLiveMode(true))

	// Neither save may clobber the other's section.
	_, st, err := Open(path)
	require.NoError(t, err)
	assert.True(t, st.LiveMode)
	assert.Equal(t, int64(1_000_005), st.NextTicket)

	require.NoError(t, s.SaveLedger(LedgerState{NextTicket: 1_000_009, InitialBalance: 5000}))
	_, st, err = Open(path)
	require.NoError(t, err)
	assert.True(t, st.LiveMode, "ledger save must keep the live flag")
	assert.Equal(t, int64(1_000_009), st.NextTicket)
}

func TestOpenCorruptFile(t *testing.T) {
	t.Parallel()

	path := statePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := Open(path)
	assert.ErrorIs(t, err, ErrCorruptState)

	// The corrupt file stays on disk for inspection.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestSaveCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s, _, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SaveLiveMode(false))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestPositionJSONFieldNames(t *testing.T) {
	t.Parallel()

	// The on-disk keys are load-bearing: existing state files from the
	// desktop app must keep loading.
	path := statePath(t)
	s, _, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveLedger(LedgerState{
		Positions: []Position{{Ticket: 1, Symbol: "EURUSD", Side: "BUY", StopLoss: 1.09, TakeProfit: 1.12}},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"ticket"`, `"type"`, `"sl"`, `"tp"`, `"open_price"`, `"live_mode"`, `"next_ticket"`} {
		assert.Contains(t, string(data), key)
	}
}
