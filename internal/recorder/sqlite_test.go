package recorder

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"Divvy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "divvy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_HistoryNewestFirst(t *testing.T) {
	r := newTestRecorder(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []*model.Event{
		{ID: "e1", Sequence: 1, Type: model.EventContributed, At: at, Cycle: 1, Actor: "0xalice", Subject: "0xalice", Amount: 8, Phase: model.PhaseContributing, Total: 8, Holdings: 8},
		{ID: "e2", Sequence: 2, Type: model.EventMaxContributionChanged, At: at.Add(time.Minute), Cycle: 1, Actor: "0xowner", Amount: 20, Phase: model.PhaseContributing, Total: 8, Holdings: 8},
	}
	for _, e := range events {
		require.NoError(t, r.RecordEvent(e))
	}
	require.NoError(t, r.RecordEvent(events[0]), "replays are ignored")

	got, err := r.History(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, model.EventMaxContributionChanged, got[0].Type)
	assert.Equal(t, model.Amount(20), got[0].Amount)
	assert.Equal(t, model.Address("0xalice"), got[1].Subject)
	assert.True(t, at.Equal(got[1].At))

	limited, err := r.History(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRecorder_CycleSummary(t *testing.T) {
	r := newTestRecorder(t)
	at := time.Now()
	seq := uint64(0)
	record := func(typ model.EventType, cycle uint64, amount model.Amount) {
		seq++
		require.NoError(t, r.RecordEvent(&model.Event{
			ID: "evt-" + string(rune('a'+seq)), Sequence: seq, Type: typ, At: at, Cycle: cycle, Amount: amount,
		}))
	}
	record(model.EventContributed, 1, 8)
	record(model.EventContributed, 1, 4)
	record(model.EventContributed, 1, 1)
	record(model.EventWithdrawalWindowOpened, 1, 4)
	record(model.EventWithdrawn, 1, 4)
	record(model.EventWithdrawn, 1, 4)
	record(model.EventContributed, 2, 3)

	sum, err := r.Cycle(1)
	require.NoError(t, err)
	assert.Equal(t, &CycleSummary{Cycle: 1, Contributions: 3, Contributed: 13, Withdrawals: 2, PaidOut: 8}, sum)

	empty, err := r.Cycle(9)
	require.NoError(t, err)
	assert.Equal(t, &CycleSummary{Cycle: 9}, empty)
}

func TestSQLiteRecorder_FullRangeAmounts(t *testing.T) {
	r := newTestRecorder(t)
	at := time.Now()
	require.NoError(t, r.RecordEvent(&model.Event{
		ID: "big-1", Sequence: 1, Type: model.EventContributed, At: at, Cycle: 4,
		Amount: math.MaxUint64 - 1, Total: math.MaxUint64 - 1, Holdings: math.MaxUint64 - 1,
	}))
	require.NoError(t, r.RecordEvent(&model.Event{
		ID: "big-2", Sequence: 2, Type: model.EventContributed, At: at, Cycle: 4,
		Amount: 1, Total: math.MaxUint64, Holdings: math.MaxUint64,
	}))

	got, err := r.History(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.Amount(math.MaxUint64), got[0].Total)
	assert.Equal(t, model.Amount(math.MaxUint64), got[0].Holdings)

	sum, err := r.Cycle(4)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Contributions)
	assert.Equal(t, model.Amount(math.MaxUint64), sum.Contributed)
}
