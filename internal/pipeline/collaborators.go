package pipeline

import (
	"context"
	"encoding/json"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/intake"
	"github.com/sells-group/legislation-cli/internal/model"
)

// Fetcher downloads the source documents of a catalog entry. Calling it twice
// with unchanged upstream data must not duplicate files.
type Fetcher interface {
	Fetch(ctx context.Context, entry catalog.Entry) (*intake.FetchResult, error)
}

// TextTransformer applies one amendment to a document's text.
type TextTransformer interface {
	Apply(ctx context.Context, doc, text, amendment string) (string, error)
}

// Annotator answers a structured request about a document's text.
type Annotator interface {
	Analyze(ctx context.Context, doc string, req annotate.Request, text string) (json.RawMessage, error)
}

// usageReporter is implemented by collaborators that meter LLM tokens.
type usageReporter interface {
	Usage() model.TokenUsage
}
