package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mtsim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query and display close records from the SQLite journal.

Examples:
  mtsim journal closes
  mtsim journal closes --days 7`,
}

var journalClosesCmd = &cobra.Command{
	Use:   "closes",
	Short: "List recent auto-close and manual-close records",
	Args:  cobra.NoArgs,
	RunE:  runJournalCloses,
}

var (
	journalDBPath string
	journalDays   int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalClosesCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./journal.db", "path to SQLite journal DB")
	journalClosesCmd.Flags().IntVar(&journalDays, "days", 30, "how many days back to list")
}

func runJournalCloses(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	since := time.Now().AddDate(0, 0, -journalDays)
	recs, err := j.ListCloses(cmd.Context(), since)
	if err != nil {
		return fmt.Errorf("query closes: %w", err)
	}

	if len(recs) == 0 {
		fmt.Printf("No closes in the last %d days.\n", journalDays)
		return nil
	}

	for _, r := range recs {
		flag := ""
		if r.Degraded {
			flag = " (approx)"
		}
		fmt.Printf("#%d %s %s %.2f  %.5f -> %.5f  P/L %.2f%s  %s  %s\n",
			r.Ticket, r.Symbol, r.Side, r.Volume,
			r.OpenPrice, r.ClosePrice, r.Profit, flag,
			r.Reason, r.CloseTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}
