package main

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"Divvy/internal/ledger"
	"Divvy/internal/model"
	"Divvy/internal/notifier"
	"Divvy/internal/recorder"

	"github.com/spf13/cobra"
)

// Offline commands operate directly on the state file. Do not run them while
// `divvy serve` is using the same file.

var caller string

// recordingPublisher writes events straight to the recorder.
type recordingPublisher struct {
	rec recorder.Recorder
}

func (p recordingPublisher) Publish(evt *model.Event) {
	if err := p.rec.RecordEvent(evt); err != nil {
		log.Printf("[ERROR] record event %s #%d: %v", evt.Type, evt.Sequence, err)
	}
}

// withLedger opens the configured ledger and runs fn against it.
func withLedger(fn func(l *ledger.Ledger, f notifier.Formatter) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rec := openRecorder(cfg)
	defer rec.Close()

	l, err := ledger.Open(cfg.Ledger.StateFile, model.Address(cfg.Ledger.Owner), ledgerOptions(cfg, recordingPublisher{rec: rec}))
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	return fn(l, notifier.Formatter{Decimals: cfg.Display.Decimals, Symbol: cfg.Display.Symbol})
}

func parseAmount(s string) (model.Amount, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return model.Amount(v), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the ledger status and participants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			state := l.Snapshot()
			fmt.Fprintln(cmd.OutOrStdout(), f.FormatStatus(&state, l.NextTransitionAt()))
			fmt.Fprintln(cmd.OutOrStdout(), f.FormatParticipants(&state))
			return nil
		})
	},
}

var contributeCmd = &cobra.Command{
	Use:   "contribute <amount>",
	Short: "Contribute to the current window as --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			if err := l.Contribute(model.Address(caller), amount); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contributed %s, pool total %s\n", f.Amount(amount), f.Amount(l.Total()))
			return nil
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw the equal share as --as",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			share, err := l.Withdraw(model.Address(caller))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paid %s\n", f.Amount(share))
			return nil
		})
	},
}

var openWithdrawalCmd = &cobra.Command{
	Use:   "open-withdrawal",
	Short: "Open the withdrawal window (owner only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			if err := l.OpenWithdrawalWindow(model.Address(caller)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "withdrawal window open, %s per participant\n", f.Amount(l.PayoutShare()))
			return nil
		})
	},
}

var openContributionCmd = &cobra.Command{
	Use:   "open-contribution",
	Short: "Open a new contribution window (owner only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			if err := l.OpenContributionWindow(model.Address(caller)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contribution window open until at least %s\n", l.NextTransitionAt().Format(time.RFC3339))
			return nil
		})
	},
}

var setMaxCmd = &cobra.Command{
	Use:   "set-max <amount>",
	Short: "Change the max contribution for the current window (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			if err := l.ChangeMaxContribution(model.Address(caller), amount); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "max contribution is now %s\n", f.Amount(amount))
			return nil
		})
	},
}

var transferOwnerCmd = &cobra.Command{
	Use:   "transfer-owner <address>",
	Short: "Transfer ownership to another address (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, f notifier.Formatter) error {
			if err := l.TransferOwnership(model.Address(caller), model.Address(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner is now %s\n", l.Owner())
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{contributeCmd, withdrawCmd, openWithdrawalCmd, openContributionCmd, setMaxCmd, transferOwnerCmd} {
		c.Flags().StringVar(&caller, "as", "", "caller identity")
		_ = c.MarkFlagRequired("as")
	}
	rootCmd.AddCommand(statusCmd, contributeCmd, withdrawCmd, openWithdrawalCmd, openContributionCmd, setMaxCmd, transferOwnerCmd)
}
