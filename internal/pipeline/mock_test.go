package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/geometry"
	"github.com/sells-group/legislation-cli/internal/intake"
	"github.com/sells-group/legislation-cli/internal/layout"
	"github.com/sells-group/legislation-cli/internal/model"
)

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, entry catalog.Entry) (*intake.FetchResult, error) {
	args := m.Called(ctx, entry.BillNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.FetchResult), args.Error(1)
}

// --- TextTransformer Mock ---

type mockTransformer struct {
	mock.Mock
}

func (m *mockTransformer) Apply(ctx context.Context, doc, text, amendment string) (string, error) {
	args := m.Called(ctx, doc, text, amendment)
	return args.String(0), args.Error(1)
}

func (m *mockTransformer) Usage() model.TokenUsage {
	return model.TokenUsage{InputTokens: 10 * len(m.Calls), Cost: 0.5 * float64(len(m.Calls))}
}

// --- Annotator Mock ---

type mockAnnotator struct {
	mock.Mock
}

func (m *mockAnnotator) Analyze(ctx context.Context, doc string, req annotate.Request, text string) (json.RawMessage, error) {
	args := m.Called(ctx, doc, req.Name, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// --- Introspector Fake ---

// textIntrospector treats a document's bytes as one page of plain text,
// one row per line, and counts how often it is opened.
type textIntrospector struct {
	mu    sync.Mutex
	opens int
	fail  map[string]error
}

func (f *textIntrospector) Open(data []byte) ([]layout.Page, error) {
	f.mu.Lock()
	f.opens++
	err := f.fail[string(data)]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var page layout.Page
	for row, line := range strings.Split(string(data), "\n") {
		x := 72.0
		y := 100.0 + float64(row)*14
		for _, w := range strings.Fields(line) {
			width := float64(len(w)) * 5
			page.Words = append(page.Words, geometry.Word{
				Text: w,
				Box:  geometry.Rect{X0: x, Y0: y, X1: x + width, Y1: y + 10},
			})
			x += width + 3
		}
	}
	return []layout.Page{page}, nil
}

func (f *textIntrospector) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}
