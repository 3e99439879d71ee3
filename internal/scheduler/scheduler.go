package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"Divvy/internal/ledger"
	"Divvy/internal/model"
	"Divvy/internal/notifier"
	"Divvy/internal/recorder"

	"github.com/robfig/cron/v3"
)

// Sender delivers a notification message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs the periodic pool tasks and reacts to ledger events.
type Scheduler struct {
	Cron      *cron.Cron
	Ledger    *ledger.Ledger
	Notifier  Sender
	Recorder  recorder.Recorder
	Formatter notifier.Formatter
	Ctx       context.Context

	// Operator is the identity the autopilot acts as when rotating windows.
	// It only succeeds while it is the ledger owner.
	Operator model.Address
}

// NewScheduler creates a new Scheduler. tn may be nil when notifications are disabled.
func NewScheduler(ctx context.Context, l *ledger.Ledger, tn Sender, rec recorder.Recorder, f notifier.Formatter) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Ledger:    l,
		Notifier:  tn,
		Recorder:  rec,
		Formatter: f,
		Ctx:       ctx,
	}
}

// RegisterAll registers the window rotation and status report tasks.
// An empty rotateCron disables the autopilot.
func (s *Scheduler) RegisterAll(rotateCron, reportCron string) error {
	if rotateCron != "" {
		if _, err := s.Cron.AddFunc(rotateCron, func() { s.RotateWindows() }); err != nil {
			return fmt.Errorf("register rotate task: %w", err)
		}
	}
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RotateWindows opens the next window as the operator once its time gate has passed.
// It reports whether a transition happened.
func (s *Scheduler) RotateWindows() bool {
	var err error
	phase := s.Ledger.Phase()
	switch phase {
	case model.PhaseContributing:
		err = s.Ledger.OpenWithdrawalWindow(s.Operator)
	case model.PhaseWithdrawing:
		err = s.Ledger.OpenContributionWindow(s.Operator)
	}
	switch {
	case err == nil:
		log.Printf("[INFO] autopilot rotated window out of %s", phase)
		return true
	case ledger.IsCode(err, ledger.CodeTooEarly), ledger.IsCode(err, ledger.CodeAlreadyOpen):
		return false
	case ledger.IsCode(err, ledger.CodeUnauthorized):
		log.Printf("[WARN] autopilot operator %s is not the owner, skipping rotation", s.Operator)
		return false
	default:
		log.Printf("[ERROR] autopilot rotation: %v", err)
		return false
	}
}

func (s *Scheduler) reportTask() {
	log.Println("[INFO] running status report")
	s.trySend(s.statusReport())
}

func (s *Scheduler) statusReport() string {
	state := s.Ledger.Snapshot()
	report := s.Formatter.FormatStatus(&state, s.Ledger.NextTransitionAt())
	sum, err := s.Recorder.Cycle(state.Cycle)
	if err != nil {
		log.Printf("[ERROR] cycle summary: %v", err)
		return report
	}
	if sum.Contributions > 0 || sum.Withdrawals > 0 {
		report += fmt.Sprintf("\nThis cycle: %d contributions (%s), %d payouts (%s)",
			sum.Contributions, s.Formatter.Amount(sum.Contributed),
			sum.Withdrawals, s.Formatter.Amount(sum.PaidOut))
	}
	return report
}

// HandleEvent records a committed ledger event and announces the ones users care about.
func (s *Scheduler) HandleEvent(evt *model.Event) {
	if err := s.Recorder.RecordEvent(evt); err != nil {
		log.Printf("[ERROR] record event %s #%d: %v", evt.Type, evt.Sequence, err)
	}
	if msg := s.Formatter.FormatEvent(evt); msg != "" {
		s.trySend(msg)
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return s.help()
	}
	switch fields[0] {
	case "/status":
		return s.statusReport()
	case "/participants":
		state := s.Ledger.Snapshot()
		return s.Formatter.FormatParticipants(&state)
	case "/balance":
		if len(fields) < 2 {
			return "Usage: /balance &lt;address&gt;"
		}
		addr := model.Address(fields[1])
		return fmt.Sprintf("%s: %s", notifier.Code(addr), s.Formatter.Amount(s.Ledger.BalanceOf(addr)))
	case "/history":
		return s.history()
	default:
		return s.help()
	}
}

func (s *Scheduler) history() string {
	records, err := s.Recorder.History(10)
	if err != nil {
		log.Printf("[ERROR] load history: %v", err)
		return "History is unavailable right now."
	}
	if len(records) == 0 {
		return "No recorded events."
	}
	var b strings.Builder
	b.WriteString("🧾 <b>Recent events</b>\n\n")
	for _, r := range records {
		b.WriteString(fmt.Sprintf("#%d %s %s", r.Sequence, r.At.Format("01-02 15:04"), r.Type))
		if r.Subject != "" {
			b.WriteString(" " + notifier.Code(r.Subject))
		}
		if r.Amount > 0 {
			b.WriteString(" " + s.Formatter.Amount(r.Amount))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Scheduler) help() string {
	return "Available commands:\n• /status\n• /participants\n• /balance &lt;address&gt;\n• /history"
}

// shutdownSendTimeout bounds sends made after the scheduler context is cancelled,
// while the dispatcher drains its queue.
const shutdownSendTimeout = 10 * time.Second

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	ctx := s.Ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(s.Ctx), shutdownSendTimeout)
		defer cancel()
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
