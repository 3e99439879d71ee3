package notifier

import (
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"Divvy/internal/model"

	"github.com/shopspring/decimal"
)

// Formatter renders ledger state and events as Telegram HTML messages.
type Formatter struct {
	Decimals int32  // smallest-unit exponent, e.g. 18 for wei -> ether
	Symbol   string // display unit
}

// Amount renders a smallest-unit amount in display units.
func (f Formatter) Amount(a model.Amount) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -f.Decimals)
	s := d.String()
	if f.Symbol != "" {
		s += " " + f.Symbol
	}
	return s
}

// FormatStatus formats the current ledger state for display.
func (f Formatter) FormatStatus(state *model.LedgerState, nextTransition time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Pool status</b> | cycle %d\n\n", state.Cycle))
	b.WriteString(fmt.Sprintf("Phase: %s\n", phaseLabel(state.Phase)))
	b.WriteString(fmt.Sprintf("Owner: %s\n", Code(state.Owner)))
	b.WriteString(fmt.Sprintf("Participants: %d\n", len(state.Balances)))
	b.WriteString(fmt.Sprintf("Total: %s\n", f.Amount(state.Total)))
	b.WriteString(fmt.Sprintf("Max contribution: %s\n", f.Amount(state.MaxContribution)))
	b.WriteString(fmt.Sprintf("Highest contribution: %s\n", f.Amount(state.HighestContribution)))
	if state.Withdrawable() {
		b.WriteString(fmt.Sprintf("Payout per participant: %s\n", f.Amount(state.PayoutShare)))
	}
	b.WriteString(fmt.Sprintf("Holdings: %s (float %s)\n", f.Amount(state.Holdings), f.Amount(state.RemainderFloat())))
	if !nextTransition.IsZero() {
		b.WriteString(fmt.Sprintf("Next window from: %s\n", nextTransition.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatParticipants lists participants and balances in contribution order.
func (f Formatter) FormatParticipants(state *model.LedgerState) string {
	if len(state.Balances) == 0 {
		return "No participants in this window."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👥 <b>Participants</b> (%d)\n\n", len(state.Balances)))
	for i, bal := range state.Balances {
		b.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, Code(bal.Participant), f.Amount(bal.Amount)))
	}
	return b.String()
}

// FormatEvent renders a ledger event, or "" for events that are not announced.
func (f Formatter) FormatEvent(evt *model.Event) string {
	switch evt.Type {
	case model.EventMaxContributionChanged:
		return fmt.Sprintf("⚙️ <b>Max contribution changed</b>\n\nNew max: %s", f.Amount(evt.Amount))
	case model.EventWithdrawalWindowOpened:
		return fmt.Sprintf("🔓 <b>Withdrawal window open</b> | cycle %d\n\nPool total: %s\nPayout per participant: %s",
			evt.Cycle, f.Amount(evt.Total), f.Amount(evt.Amount))
	case model.EventContributionWindowOpened:
		return fmt.Sprintf("🟢 <b>Contribution window open</b> | cycle %d\n\nMax contribution: %s\nCarried float: %s",
			evt.Cycle, f.Amount(evt.Amount), f.Amount(evt.Holdings))
	case model.EventOwnershipTransferred:
		return fmt.Sprintf("👑 <b>Ownership transferred</b>\n\n%s → %s", Code(evt.Actor), Code(evt.Subject))
	default:
		return ""
	}
}

// Code renders an address as escaped inline code.
func Code(addr model.Address) string {
	return "<code>" + html.EscapeString(string(addr)) + "</code>"
}

func phaseLabel(p model.Phase) string {
	switch p {
	case model.PhaseContributing:
		return "contribution window"
	case model.PhaseWithdrawing:
		return "withdrawal window"
	default:
		return string(p)
	}
}
