package pipeline

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legislation-cli/internal/model"
)

// ErrMergeFailed is returned by the annotate stage while the merge stage of
// the same document is in the failed state.
var ErrMergeFailed = eris.New("merge failed: annotation blocked")

// ErrUnreadableDocument wraps a source document that could not be parsed.
var ErrUnreadableDocument = eris.New("unreadable document")

// StageError ties a stage failure to its document.
type StageError struct {
	Document string
	Stage    model.Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Document, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
