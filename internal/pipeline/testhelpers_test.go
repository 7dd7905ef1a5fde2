package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/intake"
	"github.com/sells-group/legislation-cli/internal/layout"
	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/store"
)

var testAnswers = json.RawMessage(`{
	"bill_summary": "Creates a grant program.",
	"start_year": 2025,
	"end_year": null,
	"funding": 250000,
	"responsible_party": "Maryland Department of the Environment",
	"stakeholders": "Counties",
	"fiscal_impact_summary": null
}`)

var testAgencies = json.RawMessage(`{"relevant_agencies": [
	{"agency_name": "Maryland Department of the Environment", "is_relevant": true,
	 "relevance_explanation": "Administers the program.", "relevance_rating": 5}
]}`)

type harness struct {
	t            *testing.T
	session      model.Session
	store        store.Store
	fetcher      *mockFetcher
	transformer  *mockTransformer
	annotator    *mockAnnotator
	introspector *textIntrospector
	pipeline     *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	session := model.Session{Year: 2025, DataDir: t.TempDir()}
	st, err := store.NewSQLite(session.StatePath())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	h := &harness{
		t:            t,
		session:      session,
		store:        st,
		fetcher:      &mockFetcher{},
		transformer:  &mockTransformer{},
		annotator:    &mockAnnotator{},
		introspector: &textIntrospector{fail: map[string]error{}},
	}
	h.pipeline = New(Deps{
		Store:        st,
		Fetcher:      h.fetcher,
		Introspector: h.introspector,
		Transformer:  h.transformer,
		Annotator:    h.annotator,
		Questions:    &annotate.Set{Questions: annotate.DefaultQuestions()},
	}, Options{
		Session:     session,
		Layout:      layout.DefaultOptions(),
		Plain:       layout.PlainOptions(),
		CallTimeout: 5 * time.Second,
		ModelName:   "test-model",
	})
	h.pipeline.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

// entry builds a catalog entry the way the loader does.
func entry(t *testing.T, id, title string) catalog.Entry {
	t.Helper()
	raw := fmt.Sprintf(`{
		"BillNumber": %q,
		"Title": %q,
		"Synopsis": "Establishing a program.",
		"BroadSubjects": [{"Name": "Environment"}],
		"NarrowSubjects": [{"Name": "Grants"}],
		"StatusCurrentAsOf": "2025-04-07T00:00:00"
	}`, id, title)
	e, err := catalog.ParseEntry(json.RawMessage(raw))
	require.NoError(t, err)
	return e
}

// writePDF places a source document in the session's PDF directory.
func (h *harness) writePDF(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.session.PDFDir(), name)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// expectFetch makes the fetcher return manifest for id.
func (h *harness) expectFetch(e catalog.Entry, manifest model.Files, downloaded int) *mock.Call {
	return h.fetcher.On("Fetch", mock.Anything, e.BillNumber).Return(&intake.FetchResult{
		Manifest:   manifest,
		RawHash:    e.Fingerprint(),
		Downloaded: downloaded,
	}, nil)
}

func (h *harness) expectAnswers() *mock.Call {
	return h.annotator.On("Analyze", mock.Anything, mock.Anything, "answers", mock.Anything).Return(testAnswers, nil)
}

func (h *harness) doc(id string) *model.Document {
	h.t.Helper()
	d, err := h.store.Get(context.Background(), id)
	require.NoError(h.t, err)
	return d
}

func (h *harness) md(name string) string {
	return filepath.Join(h.session.MarkdownDir(), name)
}

func (h *harness) run(entries ...catalog.Entry) *model.RunReport {
	h.t.Helper()
	report, err := h.pipeline.Run(context.Background(), entries)
	require.NoError(h.t, err)
	return report
}

func page(text string) string {
	return "START OF PAGE 1\n" + text + "\nEND OF PAGE 1"
}
