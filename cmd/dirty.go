package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/store"
)

var dirtyCmd = &cobra.Command{
	Use:   "dirty <stage> [bill...]",
	Short: "Force a stage and every later stage to run again",
	Long: "Marks the stage (fetch, transcode, merge, annotate) and every later stage as pending for the given bills, " +
		"or for every known bill with --all. Marking merge or an earlier stage also lifts a merge freeze.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		stage, err := model.ParseStage(args[0])
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		ids := args[1:]
		if len(ids) == 0 && !all {
			return eris.New("dirty: name at least one bill or pass --all")
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if all {
			docs, err := st.List(ctx)
			if err != nil {
				return eris.Wrap(err, "dirty: list documents")
			}
			ids = nil
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
		}

		n, err := markDocuments(ctx, st, stage, ids)
		fmt.Fprintf(os.Stderr, "Marked %d of %d documents dirty from %s.\n", n, len(ids), stage)
		return err
	},
}

func init() {
	dirtyCmd.Flags().Bool("all", false, "mark every document of the session")
	rootCmd.AddCommand(dirtyCmd)
}

// markDocuments marks stage dirty for each id. Reaching back to merge or
// earlier clears a recorded merge failure so the merge is attempted again.
func markDocuments(ctx context.Context, st store.Store, stage model.Stage, ids []string) (int, error) {
	for i, id := range ids {
		if _, err := markDocument(ctx, st, stage, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// markDocument applies the flag cascade and the merge thaw in one update, so
// a failed write leaves the record as it was.
func markDocument(ctx context.Context, st store.Store, stage model.Stage, id string) (*model.Document, error) {
	u, err := dirtyUpdate(stage)
	if err != nil {
		return nil, err
	}
	doc, err := st.Update(ctx, id, u)
	if err != nil {
		return nil, eris.Wrapf(err, "dirty: %s", id)
	}
	zap.L().Info("marked dirty", zap.String("document", id), zap.String("stage", string(stage)))
	return doc, nil
}

func dirtyUpdate(stage model.Stage) (model.DocumentUpdate, error) {
	patch, err := model.DirtyFrom(stage)
	if err != nil {
		return model.DocumentUpdate{}, err
	}
	u := model.DocumentUpdate{Flags: patch}
	if stage.Index() <= model.StageMerge.Index() {
		u = u.Merge(model.DocumentUpdate{ClearMergeFailure: true})
	}
	return u, nil
}
