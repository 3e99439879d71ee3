package ledger

import (
	"time"

	"Divvy/internal/model"
)

func (l *Ledger) Owner() model.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

func (l *Ledger) Phase() model.Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Withdrawable reports whether the withdrawal window is open.
func (l *Ledger) Withdrawable() bool {
	return l.Phase() == model.PhaseWithdrawing
}

func (l *Ledger) MaxContribution() model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxContribution
}

func (l *Ledger) HighestContribution() model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.highestContribution
}

func (l *Ledger) Total() model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *Ledger) ContributionOpenedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contributionOpenedAt
}

// WithdrawalOpenedAt is the zero time while contributing.
func (l *Ledger) WithdrawalOpenedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.withdrawalOpenedAt
}

// BalanceOf returns 0 for unknown identities.
func (l *Ledger) BalanceOf(addr model.Address) model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr.Normalize()]
}

// Participants returns a copy of the participant list in insertion order.
func (l *Ledger) Participants() []model.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Address, len(l.participants))
	copy(out, l.participants)
	return out
}

// PayoutShare is the fixed per-participant payout of the open withdrawal window.
func (l *Ledger) PayoutShare() model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payoutShare
}

// Holdings is the value the pool holds, including remainder float from earlier cycles.
func (l *Ledger) Holdings() model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings
}

// NextTransitionAt is when the current window's time gate opens.
func (l *Ledger) NextTransitionAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == model.PhaseWithdrawing {
		return l.withdrawalOpenedAt.Add(l.opts.WithdrawalPeriod)
	}
	return l.contributionOpenedAt.Add(l.opts.ContributionPeriod)
}

// Snapshot returns a copy of the full ledger state.
func (l *Ledger) Snapshot() model.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.snapshot()
}

func (l *Ledger) snapshot() *model.LedgerState {
	balances := make([]model.Balance, 0, len(l.participants))
	for _, p := range l.participants {
		balances = append(balances, model.Balance{Participant: p, Amount: l.balances[p]})
	}
	return &model.LedgerState{
		Owner:                l.owner,
		Phase:                l.phase,
		ContributionOpenedAt: l.contributionOpenedAt,
		WithdrawalOpenedAt:   l.withdrawalOpenedAt,
		DefaultMax:           l.opts.DefaultMax,
		MaxContribution:      l.maxContribution,
		HighestContribution:  l.highestContribution,
		Total:                l.total,
		Balances:             balances,
		PayoutShare:          l.payoutShare,
		PayoutCount:          l.payoutCount,
		Holdings:             l.holdings,
		Cycle:                l.cycle,
		Sequence:             l.sequence,
		UpdatedAt:            l.updatedAt,
	}
}
