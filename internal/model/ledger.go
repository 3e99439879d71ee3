package model

import (
	"strings"
	"time"
)

// Address identifies a participant or the controller.
type Address string

// Normalize trims surrounding whitespace.
func (a Address) Normalize() Address {
	return Address(strings.TrimSpace(string(a)))
}

// Valid reports whether the address is well-formed.
func (a Address) Valid() bool {
	return a.Normalize() != ""
}

// Amount is a value in the pool's smallest unit.
type Amount uint64

// Phase is the window the pool is currently in.
type Phase string

const (
	PhaseContributing Phase = "CONTRIBUTING"
	PhaseWithdrawing  Phase = "WITHDRAWING"
)

// Balance is one participant's contribution in the current window.
type Balance struct {
	Participant Address `json:"participant"`
	Amount      Amount  `json:"amount"`
}

// LedgerState is a point-in-time copy of the pool ledger, also used as the persisted form.
type LedgerState struct {
	Owner                Address   `json:"owner"`
	Phase                Phase     `json:"phase"`
	ContributionOpenedAt time.Time `json:"contribution_opened_at"`
	WithdrawalOpenedAt   time.Time `json:"withdrawal_opened_at"`
	DefaultMax           Amount    `json:"default_max_contribution"`
	MaxContribution      Amount    `json:"max_contribution"`
	HighestContribution  Amount    `json:"highest_contribution"`
	Total                Amount    `json:"total"`
	Balances             []Balance `json:"balances"` // participant insertion order
	PayoutShare          Amount    `json:"payout_share"`
	PayoutCount          int       `json:"payout_count"`
	Holdings             Amount    `json:"holdings"`
	Cycle                uint64    `json:"cycle"`
	Sequence             uint64    `json:"sequence"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Withdrawable reports whether the withdrawal window is open.
func (s *LedgerState) Withdrawable() bool {
	return s.Phase == PhaseWithdrawing
}

// Participants returns the participant list in insertion order.
func (s *LedgerState) Participants() []Address {
	out := make([]Address, 0, len(s.Balances))
	for _, b := range s.Balances {
		out = append(out, b.Participant)
	}
	return out
}

// BalanceOf returns the participant's balance, 0 if unknown.
func (s *LedgerState) BalanceOf(addr Address) Amount {
	for _, b := range s.Balances {
		if b.Participant == addr {
			return b.Amount
		}
	}
	return 0
}

// RemainderFloat is the value held by the pool that no current participant has a claim on.
func (s *LedgerState) RemainderFloat() Amount {
	owed := s.Total
	if s.Phase == PhaseWithdrawing {
		owed = s.PayoutShare * Amount(len(s.Balances))
	}
	if s.Holdings < owed {
		return 0
	}
	return s.Holdings - owed
}
