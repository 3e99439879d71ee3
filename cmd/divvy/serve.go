package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Divvy/internal/api"
	"Divvy/internal/events"
	"Divvy/internal/ledger"
	"Divvy/internal/model"
	"Divvy/internal/notifier"
	"Divvy/internal/scheduler"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger service: HTTP API, scheduler and Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	log.Println("[INFO] Divvy starting...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rec := openRecorder(cfg)
	defer rec.Close()

	dispatcher := events.NewDispatcher(1024)

	l, err := ledger.Open(cfg.Ledger.StateFile, model.Address(cfg.Ledger.Owner), ledgerOptions(cfg, dispatcher))
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	state := l.Snapshot()
	log.Printf("[INFO] ledger ready: owner=%s phase=%s cycle=%d participants=%d",
		state.Owner, state.Phase, state.Cycle, len(state.Balances))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	formatter := notifier.Formatter{Decimals: cfg.Display.Decimals, Symbol: cfg.Display.Symbol}
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	var sender scheduler.Sender
	if tn.Enabled() {
		sender = tn
	}
	sched := scheduler.NewScheduler(ctx, l, sender, rec, formatter)
	sched.Operator = model.Address(cfg.Ledger.Owner)

	dispatcher.Subscribe(sched.HandleEvent)
	go dispatcher.Run(ctx)

	rotateCron := ""
	if cfg.Schedule.Autopilot {
		rotateCron = cfg.Schedule.RotateCron
	}
	if err := sched.RegisterAll(rotateCron, cfg.Schedule.ReportCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- api.NewServer(l).ListenAndServe(ctx, cfg.HTTP.Addr)
	}()

	log.Println("[INFO] Divvy is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
		cancel()
		if err := <-apiErr; err != nil {
			log.Printf("[WARN] http api shutdown: %v", err)
		}
	case err := <-apiErr:
		log.Printf("[ERROR] http api: %v", err)
		cancel()
	}

	<-dispatcher.Done()
	if n := dispatcher.Dropped(); n > 0 {
		log.Printf("[WARN] %d events were dropped without notification", n)
	}
	log.Println("[INFO] Divvy stopped")
	return nil
}
