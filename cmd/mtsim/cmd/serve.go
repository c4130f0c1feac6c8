package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mtsim/alert"
	"mtsim/broker/mtapi"
	"mtsim/facade"
	"mtsim/journal"
	"mtsim/monitor"
	"mtsim/server"
	"mtsim/sim"
	"mtsim/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulator service",
	Long: `Connect to the terminal bridge, restore the simulated ledger from its
state file, and serve the client WebSocket endpoint. The auto-close
monitor runs for as long as the service does.

Example:
  mtsim serve -f config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, state, err := store.Open(cfg.Simulator.StateFile)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}

	var j journal.Journal = journal.Nop{}
	if cfg.Journal.Type == "sqlite" {
		sj, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer sj.Close()
		j = sj
	}

	ledger := sim.NewLedger(st, j, log, sim.Config{
		TicketBase:     cfg.Simulator.TicketBase,
		InitialBalance: cfg.Account.InitialBalance,
		Leverage:       cfg.Account.Leverage,
		Currency:       cfg.Account.Currency,
	})
	if err := ledger.Restore(state.LedgerState); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	client, err := mtapi.Dial(ctx, cfg.Bridge.URL, log)
	if err != nil {
		return fmt.Errorf("connect bridge: %w", err)
	}
	defer client.Close()

	f := facade.New(ledger, client, st, state.LiveMode, log)

	interval, err := cfg.Simulator.Interval()
	if err != nil {
		return fmt.Errorf("scan interval: %w", err)
	}

	mon := monitor.New(ledger, client, alert.FromEnv(log), interval, log)
	srv := server.New(cfg.Server.Addr, f, log)

	log.Infow("starting",
		"bridge", cfg.Bridge.URL,
		"addr", cfg.Server.Addr,
		"live_mode", state.LiveMode,
		"state_file", cfg.Simulator.StateFile,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
