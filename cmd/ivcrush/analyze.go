package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/api"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	jsonOutput bool
	admit      bool
	timeout    time.Duration
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze SYMBOL...",
		Short: "Analyze upcoming earnings calendar spreads",
		Long: `Fetch a market snapshot for each symbol, run the full analysis pipeline
and print the decision.

Examples:
  ivcrush analyze AAPL NFLX
  ivcrush analyze TSLA --framework hybrid --json
  ivcrush analyze AMZN --admit`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			outcomes := a.service.Analyze(ctx, args, opts.admit)

			if opts.jsonOutput {
				return writeIndentedJSON(cmd.OutOrStdout(), outcomes)
			}
			return printOutcomes(cmd.OutOrStdout(), outcomes)
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full analysis as JSON")
	cmd.Flags().BoolVar(&opts.admit, "admit", false, "Add actionable, sized candidates to the ledger")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall deadline for the run")
	return cmd
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutcomes(w io.Writer, outcomes []api.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tDECISION\tCONFIDENCE\tSIGNALS\tIV/RV\tSLOPE\tCONTRACTS\tNOTE")
	for _, o := range outcomes {
		if o.Result == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t-\t%s\n", o.Symbol, o.Error)
			continue
		}
		r := o.Result
		ivrv, slope := "-", "-"
		if s := r.CalendarSpreadAnalysis.Result; s != nil {
			ivrv = fmt.Sprintf("%.2f", s.IVRVRatio)
			slope = fmt.Sprintf("%.5f", s.TSSlope)
		}
		contracts := "-"
		if size := r.PositionSizing.Size; size != nil {
			contracts = fmt.Sprintf("%d", size.Contracts())
		}
		note := o.Error
		if o.Admitted != nil {
			note = "admitted " + o.Admitted.ID
		}
		if note == "" && len(r.TradingDecision.Reasoning) > 0 {
			note = r.TradingDecision.Reasoning[0]
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%.2f\t%d/3\t%s\t%s\t%s\t%s\n",
			o.Symbol, r.Overview.UnderlyingPrice, r.TradingDecision.Decision,
			r.TradingDecision.Confidence, r.TradingDecision.SignalCount,
			ivrv, slope, contracts, strings.TrimSpace(note))
	}
	return tw.Flush()
}
