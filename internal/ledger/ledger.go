package ledger

import (
	"fmt"
	"log"
	"math/bits"
	"sync"
	"time"

	"Divvy/internal/model"

	"github.com/rs/xid"
)

const (
	// DefaultMaxContribution is restored at the start of every contribution window.
	DefaultMaxContribution model.Amount = 10
	// DefaultContributionPeriod is the minimum length of a contribution window.
	DefaultContributionPeriod = 14 * 24 * time.Hour
	// DefaultWithdrawalPeriod is the minimum length of a withdrawal window.
	DefaultWithdrawalPeriod = 3 * 24 * time.Hour
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Publisher receives events after they commit. Publish must not block.
type Publisher interface {
	Publish(evt *model.Event)
}

// Store persists ledger snapshots.
type Store interface {
	Save(state *model.LedgerState) error
}

// Options configures a Ledger. Zero values fall back to the defaults.
type Options struct {
	DefaultMax         model.Amount
	ContributionPeriod time.Duration
	WithdrawalPeriod   time.Duration
	Clock              Clock
	Publisher          Publisher
	Store              Store
}

func (o Options) withDefaults() Options {
	if o.DefaultMax == 0 {
		o.DefaultMax = DefaultMaxContribution
	}
	if o.ContributionPeriod <= 0 {
		o.ContributionPeriod = DefaultContributionPeriod
	}
	if o.WithdrawalPeriod <= 0 {
		o.WithdrawalPeriod = DefaultWithdrawalPeriod
	}
	if o.Clock == nil {
		o.Clock = ClockFunc(time.Now)
	}
	return o
}

// Ledger is the pooled-contribution state machine. Every method holds the lock for its
// full duration and validates all preconditions before mutating anything.
// Callers are served in lock-acquisition order; sync.Mutex hands off to the longest
// waiter once a waiter has been blocked for over 1ms, so no caller starves.
type Ledger struct {
	mu   sync.Mutex
	opts Options

	owner                model.Address
	phase                model.Phase
	contributionOpenedAt time.Time
	withdrawalOpenedAt   time.Time
	maxContribution      model.Amount
	highestContribution  model.Amount
	total                model.Amount
	balances             map[model.Address]model.Amount
	participants         []model.Address

	payoutShare model.Amount
	payoutCount int
	holdings    model.Amount
	cycle       uint64
	sequence    uint64
	updatedAt   time.Time
}

// New creates a ledger in the contribution phase, owned by owner.
func New(owner model.Address, opts Options) (*Ledger, error) {
	owner = owner.Normalize()
	if !owner.Valid() {
		return nil, ErrInvalidAddress
	}
	opts = opts.withDefaults()
	now := opts.Clock.Now()
	l := &Ledger{
		opts:                 opts,
		owner:                owner,
		phase:                model.PhaseContributing,
		contributionOpenedAt: now,
		maxContribution:      opts.DefaultMax,
		balances:             make(map[model.Address]model.Amount),
		cycle:                1,
		updatedAt:            now,
	}
	l.save()
	return l, nil
}

// Restore rebuilds a ledger from a snapshot, rejecting snapshots that break an invariant.
func Restore(state *model.LedgerState, opts Options) (*Ledger, error) {
	if state == nil {
		return nil, fmt.Errorf("restore ledger: nil state")
	}
	opts = opts.withDefaults()
	if state.DefaultMax != 0 && state.DefaultMax != opts.DefaultMax {
		log.Printf("[WARN] restored default max %d differs from configured %d, using configured value from next window", state.DefaultMax, opts.DefaultMax)
	}
	l := &Ledger{
		opts:                 opts,
		owner:                state.Owner.Normalize(),
		phase:                state.Phase,
		contributionOpenedAt: state.ContributionOpenedAt,
		withdrawalOpenedAt:   state.WithdrawalOpenedAt,
		maxContribution:      state.MaxContribution,
		highestContribution:  state.HighestContribution,
		total:                state.Total,
		balances:             make(map[model.Address]model.Amount, len(state.Balances)),
		payoutShare:          state.PayoutShare,
		payoutCount:          state.PayoutCount,
		holdings:             state.Holdings,
		cycle:                state.Cycle,
		sequence:             state.Sequence,
		updatedAt:            state.UpdatedAt,
	}
	for _, b := range state.Balances {
		if _, dup := l.balances[b.Participant]; dup {
			return nil, fmt.Errorf("restore ledger: duplicate participant %q", b.Participant)
		}
		l.balances[b.Participant] = b.Amount
		l.participants = append(l.participants, b.Participant)
	}
	if l.cycle == 0 {
		l.cycle = 1
	}
	if err := l.checkInvariants(); err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) checkInvariants() error {
	if !l.owner.Valid() {
		return fmt.Errorf("owner is empty")
	}
	switch l.phase {
	case model.PhaseContributing:
		if !l.withdrawalOpenedAt.IsZero() {
			return fmt.Errorf("withdrawal timestamp set while contributing")
		}
	case model.PhaseWithdrawing:
		if l.withdrawalOpenedAt.IsZero() {
			return fmt.Errorf("withdrawal timestamp unset while withdrawing")
		}
	default:
		return fmt.Errorf("unknown phase %q", l.phase)
	}
	var sum, highest model.Amount
	for _, p := range l.participants {
		amt := l.balances[p]
		if amt == 0 {
			return fmt.Errorf("participant %q has zero balance", p)
		}
		sum += amt
		if amt > highest {
			highest = amt
		}
	}
	if sum != l.total {
		return fmt.Errorf("total %d does not match balances %d", l.total, sum)
	}
	if highest != l.highestContribution {
		return fmt.Errorf("highest contribution %d does not match balances %d", l.highestContribution, highest)
	}
	if l.maxContribution == 0 || l.maxContribution < l.highestContribution {
		return fmt.Errorf("max contribution %d below highest %d", l.maxContribution, l.highestContribution)
	}
	return nil
}

// Contribute credits amount to participant for the current window.
func (l *Ledger) Contribute(participant model.Address, amount model.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock.Now()

	participant = participant.Normalize()
	if !participant.Valid() {
		return ErrInvalidAddress
	}
	if l.phase != model.PhaseContributing {
		return reject(CodePhaseError, "withdrawal window open")
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if l.balances[participant] > 0 {
		return ErrDuplicateContribution
	}
	if amount > l.maxContribution {
		return reject(CodeLimitExceeded, fmt.Sprintf("amount %d exceeds max contribution %d", amount, l.maxContribution))
	}
	total, carry := bits.Add64(uint64(l.total), uint64(amount), 0)
	if carry != 0 {
		return reject(CodeLimitExceeded, fmt.Sprintf("amount %d would overflow pool total %d", amount, l.total))
	}
	holdings, carry := bits.Add64(uint64(l.holdings), uint64(amount), 0)
	if carry != 0 {
		return reject(CodeLimitExceeded, fmt.Sprintf("amount %d would overflow pool holdings %d", amount, l.holdings))
	}

	l.balances[participant] = amount
	l.participants = append(l.participants, participant)
	l.total = model.Amount(total)
	l.holdings = model.Amount(holdings)
	if amount > l.highestContribution {
		l.highestContribution = amount
	}

	l.commit(now, model.EventContributed, participant, participant, amount)
	return nil
}

// Withdraw pays participant the cycle's fixed equal share and clears their balance.
// The share is captured when the withdrawal window opens, so every participant receives
// the same amount regardless of claim order. Division remainders stay in the pool.
func (l *Ledger) Withdraw(participant model.Address) (model.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock.Now()

	participant = participant.Normalize()
	if l.phase != model.PhaseWithdrawing {
		return 0, reject(CodePhaseError, "withdrawal window closed")
	}
	balance := l.balances[participant]
	if balance == 0 {
		return 0, ErrNotAParticipant
	}

	share := l.payoutShare
	delete(l.balances, participant)
	l.removeParticipant(participant)
	l.total -= balance
	l.holdings -= share
	l.highestContribution = l.recomputeHighest()

	l.commit(now, model.EventWithdrawn, participant, participant, share)
	return share, nil
}

// OpenWithdrawalWindow ends the contribution window and fixes the payout share.
func (l *Ledger) OpenWithdrawalWindow(caller model.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock.Now()

	if caller.Normalize() != l.owner {
		return ErrUnauthorized
	}
	if l.phase == model.PhaseWithdrawing {
		return reject(CodeAlreadyOpen, "withdrawal window already open")
	}
	if gate := l.contributionOpenedAt.Add(l.opts.ContributionPeriod); now.Before(gate) {
		return reject(CodeTooEarly, fmt.Sprintf("withdrawal window opens at %s", gate.Format(time.RFC3339)))
	}

	l.phase = model.PhaseWithdrawing
	l.withdrawalOpenedAt = now
	l.payoutCount = len(l.participants)
	l.payoutShare = 0
	if l.payoutCount > 0 {
		l.payoutShare = l.total / model.Amount(l.payoutCount)
	}

	l.commit(now, model.EventWithdrawalWindowOpened, l.owner, "", l.payoutShare)
	return nil
}

// OpenContributionWindow starts a new cycle. Unclaimed shares and division remainders
// stay in the pool holdings.
func (l *Ledger) OpenContributionWindow(caller model.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock.Now()

	if caller.Normalize() != l.owner {
		return ErrUnauthorized
	}
	if l.phase != model.PhaseWithdrawing {
		return reject(CodeAlreadyOpen, "contribution window already open")
	}
	if gate := l.withdrawalOpenedAt.Add(l.opts.WithdrawalPeriod); now.Before(gate) {
		return reject(CodeTooEarly, fmt.Sprintf("contribution window opens at %s", gate.Format(time.RFC3339)))
	}

	l.phase = model.PhaseContributing
	l.contributionOpenedAt = now
	l.withdrawalOpenedAt = time.Time{}
	l.balances = make(map[model.Address]model.Amount)
	l.participants = nil
	l.total = 0
	l.highestContribution = 0
	l.maxContribution = l.opts.DefaultMax
	l.payoutShare = 0
	l.payoutCount = 0
	l.cycle++

	l.commit(now, model.EventContributionWindowOpened, l.owner, "", l.maxContribution)
	return nil
}

// ChangeMaxContribution sets the per-participant ceiling for the current window.
func (l *Ledger) ChangeMaxContribution(caller model.Address, newMax model.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock.Now()

	if caller.Normalize() != l.owner {
		return ErrUnauthorized
	}
	if l.phase != model.PhaseContributing {
		return reject(CodePhaseError, "withdrawal window open")
	}
	if newMax == 0 {
		return reject(CodeInvalidLimit, "max contribution must be positive")
	}
	if newMax < l.highestContribution {
		return reject(CodeInvalidLimit, fmt.Sprintf("max contribution %d below highest contribution %d", newMax, l.highestContribution))
	}

	l.maxContribution = newMax
	l.commit(now, model.EventMaxContributionChanged, l.owner, "", newMax)
	return nil
}

// TransferOwnership hands the controller role to newOwner.
func (l *Ledger) TransferOwnership(caller, newOwner model.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock.Now()

	if caller.Normalize() != l.owner {
		return ErrUnauthorized
	}
	newOwner = newOwner.Normalize()
	if !newOwner.Valid() {
		return ErrInvalidAddress
	}

	previous := l.owner
	l.owner = newOwner
	l.commit(now, model.EventOwnershipTransferred, previous, newOwner, 0)
	return nil
}

func (l *Ledger) removeParticipant(addr model.Address) {
	for i, p := range l.participants {
		if p == addr {
			l.participants = append(l.participants[:i], l.participants[i+1:]...)
			return
		}
	}
}

func (l *Ledger) recomputeHighest() model.Amount {
	var highest model.Amount
	for _, p := range l.participants {
		if amt := l.balances[p]; amt > highest {
			highest = amt
		}
	}
	return highest
}

// commit stamps the mutation, persists the snapshot, and publishes the event.
// Caller must hold l.mu.
func (l *Ledger) commit(now time.Time, typ model.EventType, actor, subject model.Address, amount model.Amount) {
	l.sequence++
	l.updatedAt = now
	l.save()
	if l.opts.Publisher == nil {
		return
	}
	l.opts.Publisher.Publish(&model.Event{
		ID:       xid.New().String(),
		Sequence: l.sequence,
		Type:     typ,
		At:       now,
		Cycle:    l.cycle,
		Actor:    actor,
		Subject:  subject,
		Amount:   amount,
		Phase:    l.phase,
		Total:    l.total,
		Holdings: l.holdings,
	})
}

func (l *Ledger) save() {
	if l.opts.Store == nil {
		return
	}
	if err := l.opts.Store.Save(l.snapshot()); err != nil {
		log.Printf("[ERROR] failed to save ledger state: %v", err)
	}
}
