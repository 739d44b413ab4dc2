package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/report"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historySymbol string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored reports or one instrument's statistics",
	Long: `List stored reports, newest first. With --symbol, list the stored per-regime
statistics of one instrument across reports.

Examples:
  leadlag history
  leadlag history --symbol 2330.TW --limit 30`,
	RunE: runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show [report-id]",
	Short: "Print a stored report (latest when no ID is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of rows")
	historyCmd.Flags().StringVar(&historySymbol, "symbol", "", "Show statistics history of this symbol")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := setup(false)
	if err != nil {
		return err
	}
	defer a.close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if historySymbol != "" {
		records, err := a.store.InstrumentHistory(historySymbol, historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DATE\tRUN\tHOLD\tREGIME\tN\tWIN%\tMEAN%")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%.1f\t%+.2f\n",
				r.GeneratedAt.Format("2006-01-02"), r.Run, r.HorizonDays, r.Regime, r.SampleCount, r.WinRatePct, r.MeanReturnPct)
		}
		return w.Flush()
	}

	summaries, err := a.store.ListReports(historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tGENERATED\tREGIME\tCHANGE%\tFLAT\tRUNS\tSKIPPED")
	for _, s := range summaries {
		regime := string(s.Regime)
		if regime == "" {
			regime = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%+.2f\t%s\t%d\t%d\n",
			s.ID, s.GeneratedAt.Format("2006-01-02 15:04"), regime, s.ChangePct, s.FlatAction, s.Runs, s.Skipped)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := setup(false)
	if err != nil {
		return err
	}
	defer a.close()

	var r *models.Report
	if len(args) == 1 {
		r, err = a.store.GetReport(args[0])
	} else {
		r, err = a.store.LatestReport()
	}
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, r)
}
