package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/legislation-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status [bill]",
	Short: "Show document processing state",
	Long:  "Without arguments lists every document of the session with its pending stages. With a bill number prints that document's full record.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		docs, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(args) == 1 {
			doc, ok := findDocument(docs, args[0])
			if !ok {
				return eris.Errorf("no state for %s", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}

		pending, _ := cmd.Flags().GetBool("pending")
		if pending {
			docs = pendingDocuments(docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatStatus(os.Stdout, docs)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("pending", false, "only show documents with a pending stage")
	rootCmd.AddCommand(statusCmd)
}

func findDocument(docs []model.Document, id string) (model.Document, bool) {
	for _, d := range docs {
		if d.ID == id {
			return d, true
		}
	}
	return model.Document{}, false
}

func pendingDocuments(docs []model.Document) []model.Document {
	var out []model.Document
	for _, d := range docs {
		if d.Flags != (model.Flags{}) {
			out = append(out, d)
		}
	}
	return out
}

// formatStatus writes one row per document; pending stages show their name.
func formatStatus(out io.Writer, docs []model.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tPENDING\tMERGE\tAMENDMENTS\tANNOTATED\tUPDATED")
	_, _ = fmt.Fprintln(w, "--------\t-------\t-----\t----------\t---------\t-------")
	for _, d := range docs {
		pending := ""
		for _, s := range model.Stages {
			if d.Flags.Needs(s) {
				if pending != "" {
					pending += ","
				}
				pending += string(s)
			}
		}
		if pending == "" {
			pending = "-"
		}
		annotated := "no"
		if d.Annotation != nil {
			annotated = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID,
			pending,
			d.MergeStatus,
			len(d.Files.Amendments),
			annotated,
			d.LastUpdatedLocal.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
