package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/spf13/cobra"
)

func newPositionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Inspect and manage the position ledger",
	}
	cmd.AddCommand(newPositionsListCmd(root), newPositionsCloseCmd(root), newPositionsSummaryCmd(root))
	return cmd
}

func newPositionsListCmd(root *rootOptions) *cobra.Command {
	var (
		openOnly   bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			ledger := a.service.Ledger()
			positions := ledger.Positions()
			if openOnly {
				positions = ledger.OpenPositions()
			}
			if jsonOutput {
				return writeIndentedJSON(cmd.OutOrStdout(), positions)
			}
			return printPositions(cmd.OutOrStdout(), positions)
		},
	}
	cmd.Flags().BoolVar(&openOnly, "open", false, "Only open positions")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newPositionsCloseCmd(root *rootOptions) *cobra.Command {
	reason := "manual close"
	cmd := &cobra.Command{
		Use:   "close ID",
		Short: "Close a ledger position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.service.Close(args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s %s (%s)\n", p.ID, p.Symbol, p.ExitReason)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", reason, "Exit reason recorded on the position")
	return cmd
}

func newPositionsSummaryCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show portfolio exposure over the open positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.service.Ledger().PortfolioSummary()
			if jsonOutput {
				return writeIndentedJSON(cmd.OutOrStdout(), s)
			}
			return printSummary(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func printPositions(w io.Writer, positions []models.Position) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSTRATEGY\tSTATE\tCONTRACTS\tNET DEBIT\tRISK\tENTERED")
	for i := range positions {
		p := &positions[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			p.ID, p.Symbol, p.StrategyType, p.State, p.Contracts, p.NetDebit,
			p.RiskAmount().StringFixed(2), p.EntryDate.Format("2006-01-02"))
	}
	return tw.Flush()
}

func printSummary(w io.Writer, s risk.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Open positions\t%d\n", s.OpenPositions)
	fmt.Fprintf(tw, "Closed positions\t%d\n", s.ClosedPositions)
	fmt.Fprintf(tw, "Total risk\t$%s\n", s.TotalRisk.StringFixed(2))
	fmt.Fprintf(tw, "Utilization\t%.2f%% of %.0f\n", 100*s.Utilization, s.AccountSize)
	fmt.Fprintf(tw, "Net delta\t$%.2f (%.2f%%)\n", s.NetDeltaDollars, 100*s.DeltaExposure)
	fmt.Fprintf(tw, "Risk\t%.1f %s\n", s.RiskScore, s.Level)
	for _, sector := range slices.Sorted(maps.Keys(s.SectorExposure)) {
		fmt.Fprintf(tw, "Sector %s\t%.2f%%\n", sector, 100*s.SectorExposure[sector])
	}
	return tw.Flush()
}
