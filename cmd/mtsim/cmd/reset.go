package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mtsim/sim"
	"mtsim/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the simulated ledger",
	Long: `Clear all simulated positions and history and reinitialize the balance.
Operates directly on the state file; run it while the service is stopped.

Example:
  mtsim reset --balance 5000`,
	RunE: runReset,
}

var resetBalance float64

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Float64VarP(&resetBalance, "balance", "b", 0, "new initial balance (0 uses the configured default)")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, state, err := store.Open(cfg.Simulator.StateFile)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}

	ledger := sim.NewLedger(st, nil, nil, sim.Config{
		TicketBase:     cfg.Simulator.TicketBase,
		InitialBalance: cfg.Account.InitialBalance,
		Leverage:       cfg.Account.Leverage,
		Currency:       cfg.Account.Currency,
	})
	if err := ledger.Restore(state.LedgerState); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	if err := ledger.Reset(resetBalance); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	acct := ledger.Summary()
	fmt.Printf("Simulator reset.\n")
	fmt.Printf("  Balance: %.2f %s\n", acct.Balance, acct.Currency)
	fmt.Printf("  Equity:  %.2f %s\n", acct.Equity, acct.Currency)
	fmt.Printf("  State:   %s\n", cfg.Simulator.StateFile)
	return nil
}
