package store

import (
	"context"

	"github.com/sells-group/legislation-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store is the durable, per-session collection of document records.
//
// Callers serialize access per document id; the store does not guard against
// two concurrent writers to the same record.
type Store interface {
	// Get returns the record for id, creating and persisting a default
	// record when none exists.
	Get(ctx context.Context, id string) (*model.Document, error)
	// Update deep-merges u into the record for id and persists it before
	// returning.
	Update(ctx context.Context, id string, u model.DocumentUpdate) (*model.Document, error)
	// MarkDirty sets the flag of stage and every later stage.
	MarkDirty(ctx context.Context, id string, stage model.Stage) (*model.Document, error)
	// List returns every record ordered by id.
	List(ctx context.Context) ([]model.Document, error)

	// Runs
	RecordRun(ctx context.Context, report *model.RunReport) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// markDirty is shared by the backends: MarkDirty is an Update with the
// cascading flag patch.
func markDirty(ctx context.Context, s Store, id string, stage model.Stage) (*model.Document, error) {
	patch, err := model.DirtyFrom(stage)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, model.DocumentUpdate{Flags: patch})
}
