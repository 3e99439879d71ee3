package recorder

import (
	"time"

	"Divvy/internal/model"
)

// EventRecord is one row of the ledger event history.
type EventRecord struct {
	ID       string
	Sequence uint64
	Type     model.EventType
	At       time.Time
	Cycle    uint64
	Actor    model.Address
	Subject  model.Address
	Amount   model.Amount
	Phase    model.Phase
	Total    model.Amount
	Holdings model.Amount
}

// CycleSummary aggregates one contribution/withdrawal cycle.
type CycleSummary struct {
	Cycle         uint64
	Contributions int
	Contributed   model.Amount
	Withdrawals   int
	PaidOut       model.Amount
}

// Recorder persists ledger history for analysis.
type Recorder interface {
	RecordEvent(evt *model.Event) error
	History(limit int) ([]EventRecord, error)
	Cycle(cycle uint64) (*CycleSummary, error)
	Close() error
}
