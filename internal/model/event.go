package model

import "time"

// EventType names a committed ledger mutation.
type EventType string

const (
	EventContributed              EventType = "CONTRIBUTED"
	EventWithdrawn                EventType = "WITHDRAWN"
	EventWithdrawalWindowOpened   EventType = "WITHDRAWAL_WINDOW_OPENED"
	EventContributionWindowOpened EventType = "CONTRIBUTION_WINDOW_OPENED"
	EventMaxContributionChanged   EventType = "MAX_CONTRIBUTION_CHANGED"
	EventOwnershipTransferred     EventType = "OWNERSHIP_TRANSFERRED"
)

// Event is emitted after a ledger mutation commits.
type Event struct {
	ID       string
	Sequence uint64
	Type     EventType
	At       time.Time
	Cycle    uint64
	Actor    Address
	Subject  Address // participant or new owner, when relevant
	Amount   Amount  // contribution, payout, or new max depending on Type
	Phase    Phase
	Total    Amount
	Holdings Amount
}
