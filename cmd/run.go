package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline over the session catalog",
	Long:  "Loads the session master list and runs fetch, transcode, merge and annotate for every bill whose inputs changed since the last run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cat, err := env.Catalog.Get(ctx, env.Session)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}

		bills, _ := cmd.Flags().GetStringSlice("bill")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := selectEntries(cat, bills, limit)
		if err != nil {
			return err
		}

		report, err := env.Pipeline.Run(ctx, entries)
		if report != nil {
			formatReport(os.Stdout, report)
		}
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			zap.L().Warn("run finished with failures",
				zap.Int("failed", report.Failed),
				zap.Int("documents", report.Documents),
			)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSlice("bill", nil, "only process these bill numbers")
	runCmd.Flags().Int("limit", 0, "process at most this many bills (0 = all)")
	rootCmd.AddCommand(runCmd)
}

// selectEntries picks the catalog entries to process, in catalog order
// unless bill numbers are given.
func selectEntries(cat *catalog.Catalog, bills []string, limit int) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if len(bills) > 0 {
		for _, id := range bills {
			e, ok := cat.Lookup(id)
			if !ok {
				return nil, eris.Errorf("bill %s is not in the %s catalog", id, cat.Session)
			}
			entries = append(entries, e)
		}
	} else {
		entries = cat.Entries()
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// formatReport writes the stages that did work or failed, then totals.
func formatReport(out io.Writer, r *model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tSTAGE\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "--------\t-----\t------\t------")
	for _, res := range r.Results {
		if res.Error != "" {
			_, _ = fmt.Fprintf(w, "%s\t-\tfailed\t%s\n", res.Document, res.Error)
		}
		for _, s := range res.Stages {
			detail := s.Reason
			if s.Error != "" {
				detail = s.Error
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Document, s.Stage, s.Status, detail)
		}
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nrun %s (%s): %d documents, %d succeeded, %d failed, $%.4f\n",
		truncateID(r.ID), r.Session, r.Documents, r.Succeeded, r.Failed, r.TokenUsage.Cost)
}
