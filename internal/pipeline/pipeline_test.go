package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/resilience"
	"github.com/sells-group/legislation-cli/internal/store"
)

func stageResult(t *testing.T, res model.DocumentResult, stage model.Stage) model.StageResult {
	t.Helper()
	for _, s := range res.Stages {
		if s.Stage == stage {
			return s
		}
	}
	t.Fatalf("no %s result in %+v", stage, res.Stages)
	return model.StageResult{}
}

func TestRun_NoAmendments(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HB0001", "Environment - Grant Program")
	primary := h.writePDF("HB0001.pdf", "Original bill text")
	h.expectFetch(e, model.Files{Primary: primary}, 1)
	h.expectAnswers()

	report := h.run(e)

	assert.Equal(t, 1, report.Succeeded)
	h.transformer.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.annotator.AssertCalled(t, "Analyze", mock.Anything, "HB0001", "answers", page("Original bill text"))

	merge := stageResult(t, report.Results[0], model.StageMerge)
	assert.Equal(t, model.StageStatusSkipped, merge.Status)
	assert.Equal(t, "no amendments", merge.Reason)

	doc := h.doc("HB0001")
	assert.Equal(t, model.MergeStatusOriginal, doc.MergeStatus)
	assert.Equal(t, model.Flags{}, doc.Flags)
	require.NotNil(t, doc.Annotation)
	assert.Equal(t, "Creates a grant program.", doc.Annotation.Answers.BillSummary)
	assert.Equal(t, "test-model", doc.Annotation.Model)
	assert.NoFileExists(t, h.md("HB0001_amended.md"))

	data, err := os.ReadFile(h.md("HB0001.md"))
	require.NoError(t, err)
	assert.Equal(t, page("Original bill text"), string(data))
}

func TestRunMerge_NoAmendmentsAdvancesToAnnotate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := entry(t, "HB0002", "Taxes")
	primary := h.writePDF("HB0002.pdf", "text")
	require.NoError(t, writeFileAtomic(h.md("HB0002.md"), []byte(page("text"))))

	doc, err := h.store.Update(ctx, "HB0002", model.DocumentUpdate{
		Flags: &model.FlagsPatch{NeedsFetch: model.Bool(false), NeedsMerge: model.Bool(true)},
		Files: &model.FilesPatch{Primary: model.String(primary)},
	})
	require.NoError(t, err)

	r := &docRun{id: "HB0002", entry: e, doc: doc}
	out, err := h.pipeline.runMerge(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusSkipped, out.status)

	doc = h.doc("HB0002")
	assert.Equal(t, model.MergeStatusOriginal, doc.MergeStatus)
	assert.False(t, doc.Flags.NeedsMerge)
	assert.True(t, doc.Flags.NeedsAnnotate)
	h.transformer.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SecondRunMakesNoCollaboratorCalls(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HB0001", "Environment - Grant Program")
	manifest := model.Files{
		Primary:    h.writePDF("HB0001.pdf", "Original bill text"),
		Amendments: []string{h.writePDF("HB0001_amd2.pdf", "Amendment two"), h.writePDF("HB0001_amd1.pdf", "Amendment one")},
		FiscalNote: h.writePDF("HB0001_fn.pdf", "Fiscal note text"),
	}
	h.expectFetch(e, manifest, 4)
	h.transformer.On("Apply", mock.Anything, "HB0001", page("Original bill text"), page("Amendment one")).Return("Amended once", nil)
	h.transformer.On("Apply", mock.Anything, "HB0001", "Amended once", page("Amendment two")).Return("Amended twice", nil)
	h.expectAnswers()

	first := h.run(e)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, 20, first.TokenUsage.InputTokens)

	doc := h.doc("HB0001")
	assert.Equal(t, model.MergeStatusMerged, doc.MergeStatus)
	assert.Equal(t, model.Flags{}, doc.Flags)
	merged, err := os.ReadFile(h.md("HB0001_amended.md"))
	require.NoError(t, err)
	assert.Equal(t, "Amended twice", string(merged))
	h.annotator.AssertCalled(t, "Analyze", mock.Anything, "HB0001", "answers",
		"Amended twice\n\nFISCAL NOTE:\n"+page("Fiscal note text"))

	second := h.run(e)
	assert.Equal(t, 1, second.Succeeded)
	assert.Empty(t, second.Results[0].Stages)
	assert.Zero(t, second.TokenUsage.InputTokens)

	h.fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	h.transformer.AssertNumberOfCalls(t, "Apply", 2)
	h.annotator.AssertNumberOfCalls(t, "Analyze", 1)
	assert.Equal(t, 4, h.introspector.Opens())
}

func TestRun_CatalogOnlyChangeSkipsLLMStages(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HB0001", "Environment - Grant Program")
	primary := h.writePDF("HB0001.pdf", "Original bill text")
	h.expectFetch(e, model.Files{Primary: primary}, 1).Once()
	h.expectAnswers()
	h.run(e)

	changed := entry(t, "HB0001", "Environment - Grant Program (as passed)")
	require.NotEqual(t, e.Fingerprint(), changed.Fingerprint())
	h.expectFetch(changed, model.Files{Primary: primary}, 0).Once()

	report := h.run(changed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, model.StageStatusComplete, stageResult(t, report.Results[0], model.StageFetch).Status)
	assert.Equal(t, model.StageStatusSkipped, stageResult(t, report.Results[0], model.StageTranscode).Status)
	assert.Equal(t, model.StageStatusSkipped, stageResult(t, report.Results[0], model.StageAnnotate).Status)

	h.fetcher.AssertNumberOfCalls(t, "Fetch", 2)
	h.annotator.AssertNumberOfCalls(t, "Analyze", 1)
	assert.Equal(t, 1, h.introspector.Opens())
	assert.Equal(t, changed.Fingerprint(), *h.doc("HB0001").Hashes.Source)
}

func TestRun_MergeFailureRetriesFromOriginal(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "SB0010", "Health")
	manifest := model.Files{
		Primary:    h.writePDF("SB0010.pdf", "Original bill text"),
		Amendments: []string{h.writePDF("SB0010_amdA1.pdf", "First"), h.writePDF("SB0010_amdA2.pdf", "Second")},
	}
	h.expectFetch(e, manifest, 3)
	h.transformer.On("Apply", mock.Anything, "SB0010", page("Original bill text"), page("First")).Return("after one", nil)
	h.transformer.On("Apply", mock.Anything, "SB0010", "after one", page("Second")).
		Return("", resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	h.transformer.On("Apply", mock.Anything, "SB0010", "after one", page("Second")).Return("after two", nil)
	h.expectAnswers()

	first := h.run(e)
	assert.Equal(t, 1, first.Failed)
	merge := stageResult(t, first.Results[0], model.StageMerge)
	assert.Equal(t, model.StageStatusFailed, merge.Status)
	assert.Contains(t, merge.Error, "SB0010: merge:")
	assert.Contains(t, merge.Error, "amendment 2 of 2")

	doc := h.doc("SB0010")
	assert.Equal(t, model.MergeStatusFailed, doc.MergeStatus)
	assert.True(t, doc.Flags.NeedsMerge)
	assert.Nil(t, doc.MergeFailure)
	assert.Nil(t, doc.Hashes.Merge)
	assert.NoFileExists(t, h.md("SB0010_amended.md"))
	h.annotator.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	second := h.run(e)
	assert.Equal(t, 1, second.Succeeded)

	// Both amendments are applied again, starting from the original text.
	h.transformer.AssertNumberOfCalls(t, "Apply", 4)
	firstCalls := 0
	for _, c := range h.transformer.Calls {
		if c.Arguments.String(2) == page("Original bill text") {
			firstCalls++
		}
	}
	assert.Equal(t, 2, firstCalls)

	doc = h.doc("SB0010")
	assert.Equal(t, model.MergeStatusMerged, doc.MergeStatus)
	merged, err := os.ReadFile(h.md("SB0010_amended.md"))
	require.NoError(t, err)
	assert.Equal(t, "after two", string(merged))
}

func TestRun_PermanentMergeFailureFreezesUntilInputChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := entry(t, "HB0100", "Labor")
	amd := h.writePDF("HB0100_amd1.pdf", "Strike section 2")
	manifest := model.Files{Primary: h.writePDF("HB0100.pdf", "Section 1 Section 2"), Amendments: []string{amd}}
	h.expectFetch(e, manifest, 2)
	h.transformer.On("Apply", mock.Anything, "HB0100", mock.Anything, page("Strike section 2")).
		Return("", resilience.Permanent(errors.New("refusal"))).Once()

	first := h.run(e)
	assert.Equal(t, 1, first.Failed)

	doc := h.doc("HB0100")
	assert.Equal(t, model.MergeStatusFailed, doc.MergeStatus)
	assert.False(t, doc.Flags.NeedsMerge)
	require.NotNil(t, doc.MergeFailure)
	assert.Contains(t, doc.MergeFailure.Message, "refusal")
	assert.True(t, doc.Flags.NeedsAnnotate)

	// Unchanged input: no retry, annotation stays blocked.
	second := h.run(e)
	annotateRes := stageResult(t, second.Results[0], model.StageAnnotate)
	assert.Equal(t, model.StageStatusSkipped, annotateRes.Status)
	assert.Equal(t, "blocked: merge failed", annotateRes.Reason)

	_, err := h.store.MarkDirty(ctx, "HB0100", model.StageMerge)
	require.NoError(t, err)
	third := h.run(e)
	assert.Equal(t, "frozen after permanent failure", stageResult(t, third.Results[0], model.StageMerge).Reason)
	h.transformer.AssertNumberOfCalls(t, "Apply", 1)
	h.annotator.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// A new amendment text changes the merge digest and thaws the stage.
	h.writePDF("HB0100_amd1.pdf", "Strike section 1")
	_, err = h.store.MarkDirty(ctx, "HB0100", model.StageTranscode)
	require.NoError(t, err)
	h.transformer.On("Apply", mock.Anything, "HB0100", page("Section 1 Section 2"), page("Strike section 1")).Return("Section 2", nil)
	h.expectAnswers()

	fourth := h.run(e)
	assert.Equal(t, 1, fourth.Succeeded)
	doc = h.doc("HB0100")
	assert.Equal(t, model.MergeStatusMerged, doc.MergeStatus)
	assert.Nil(t, doc.MergeFailure)
	require.NotNil(t, doc.Annotation)
	h.annotator.AssertCalled(t, "Analyze", mock.Anything, "HB0100", "answers", "Section 2")
}

func TestRun_CatalogFallbackText(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HJ0003", "Resolution - Chesapeake Bay")
	h.expectFetch(e, model.Files{}, 0)
	h.expectAnswers()

	report := h.run(e)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, "no documents", stageResult(t, report.Results[0], model.StageTranscode).Reason)
	assert.Equal(t, "no primary document", stageResult(t, report.Results[0], model.StageMerge).Reason)

	want := "# Resolution - Chesapeake Bay\n\n## Synopsis\nEstablishing a program.\n\n" +
		"Broad Subjects: Environment\nNarrow Subjects: Grants\n"
	h.annotator.AssertCalled(t, "Analyze", mock.Anything, "HJ0003", "answers", want)
	assert.NotNil(t, h.doc("HJ0003").Annotation)
}

func TestRun_FiscalNoteWithoutPrimary(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HB0200", "Budget")
	h.expectFetch(e, model.Files{FiscalNote: h.writePDF("HB0200_fn.pdf", "Costs 5 million")}, 1)
	h.expectAnswers()

	h.run(e)

	h.annotator.AssertCalled(t, "Analyze", mock.Anything, "HB0200", "answers",
		e.SummaryMarkdown()+"\n\nFISCAL NOTE:\n"+page("Costs 5 million"))
}

func TestRun_AgencyRelevance(t *testing.T) {
	h := newHarness(t)
	h.pipeline.deps.Questions = &annotate.Set{
		Questions: annotate.DefaultQuestions(),
		Agencies:  []model.Agency{{Name: "Maryland Department of the Environment", Summary: "Environmental regulation."}},
	}
	e := entry(t, "HB0001", "Environment")
	h.expectFetch(e, model.Files{Primary: h.writePDF("HB0001.pdf", "Bill")}, 1)
	h.expectAnswers()
	h.annotator.On("Analyze", mock.Anything, "HB0001", "agencies", page("Bill")).Return(testAgencies, nil)

	h.run(e)

	doc := h.doc("HB0001")
	require.NotNil(t, doc.Annotation)
	require.Len(t, doc.Annotation.Agencies, 1)
	assert.Equal(t, 5, doc.Annotation.Agencies[0].RelevanceRating)
	h.annotator.AssertNumberOfCalls(t, "Analyze", 2)
}

func TestRun_AnnotateFailurePreservesPriorAnnotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := entry(t, "HB0001", "Environment")
	h.expectFetch(e, model.Files{Primary: h.writePDF("HB0001.pdf", "Bill")}, 1)

	prior := &model.Annotation{Answers: model.Answers{BillSummary: "Earlier summary."}, Model: "old"}
	_, err := h.store.Update(ctx, "HB0001", model.DocumentUpdate{
		Annotation: prior,
		Hashes:     &model.HashesPatch{Annotate: model.String("stale")},
	})
	require.NoError(t, err)
	h.annotator.On("Analyze", mock.Anything, "HB0001", "answers", mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("schema violation"), 0))

	report := h.run(e)
	assert.Equal(t, 1, report.Failed)
	res := stageResult(t, report.Results[0], model.StageAnnotate)
	assert.Equal(t, model.StageStatusFailed, res.Status)
	assert.Contains(t, res.Error, "answers request")

	doc := h.doc("HB0001")
	assert.True(t, doc.Flags.NeedsAnnotate)
	require.NotNil(t, doc.Annotation)
	assert.Equal(t, "Earlier summary.", doc.Annotation.Answers.BillSummary)
	assert.Equal(t, "stale", *doc.Hashes.Annotate)
}

func TestRun_FailingDocumentDoesNotStopBatch(t *testing.T) {
	h := newHarness(t)
	h.pipeline.opts.MaxConcurrentDocuments = 2
	bad := entry(t, "HB0001", "Broken")
	good := entry(t, "HB0002", "Working")
	h.fetcher.On("Fetch", mock.Anything, "HB0001").Return(nil, errors.New("all retries exhausted"))
	h.expectFetch(good, model.Files{Primary: h.writePDF("HB0002.pdf", "Good bill")}, 1)
	h.expectAnswers()

	report := h.run(bad, good, good)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, h.doc("HB0001").Flags.NeedsFetch)
	assert.NotNil(t, h.doc("HB0002").Annotation)

	runs, err := h.store.ListRuns(context.Background(), store.RunFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.ID, runs[0].ID)
	assert.Equal(t, "2025rs", runs[0].Session)
}

func TestRun_UnreadableDocument(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HB0001", "Environment")
	h.introspector.fail["%PDF-garbage"] = errors.New("malformed xref")
	h.expectFetch(e, model.Files{Primary: h.writePDF("HB0001.pdf", "%PDF-garbage")}, 1)

	report := h.run(e)
	res := stageResult(t, report.Results[0], model.StageTranscode)
	assert.Equal(t, model.StageStatusFailed, res.Status)
	assert.Contains(t, res.Error, "unreadable document")
	assert.True(t, h.doc("HB0001").Flags.NeedsTranscode)
	h.annotator.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_MissingManifestFileRefetches(t *testing.T) {
	h := newHarness(t)
	e := entry(t, "HB0001", "Environment")
	primary := h.writePDF("HB0001.pdf", "Bill")
	h.expectFetch(e, model.Files{Primary: primary}, 1)
	h.expectAnswers()
	h.run(e)

	require.NoError(t, os.Remove(primary))
	h.run(e)
	h.fetcher.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.pipeline.Run(ctx, nil)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Zero(t, report.Documents)
}

func TestStageError(t *testing.T) {
	cause := resilience.Permanent(errors.New("refusal"))
	err := &StageError{Document: "HB0001", Stage: model.StageMerge, Err: cause}

	assert.Equal(t, "HB0001: merge: refusal", err.Error())
	assert.True(t, resilience.IsPermanent(err))
	assert.ErrorIs(t, err, cause)
}

func TestRunMerge_MissingAmendmentTextIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := entry(t, "HB0003", "Transportation")
	require.NoError(t, writeFileAtomic(h.md("HB0003.md"), []byte("Section 1")))
	require.NoError(t, writeFileAtomic(h.md("HB0003_amd1.md"), []byte("Strike section 1")))

	doc, err := h.store.Update(ctx, "HB0003", model.DocumentUpdate{
		Flags: &model.FlagsPatch{NeedsFetch: model.Bool(false), NeedsMerge: model.Bool(true)},
		Files: &model.FilesPatch{
			Primary:    model.String(h.writePDF("HB0003.pdf", "Section 1")),
			Amendments: &[]string{h.writePDF("HB0003_amd1.pdf", "x"), h.writePDF("HB0003_amd2.pdf", "y")},
		},
	})
	require.NoError(t, err)
	h.transformer.On("Apply", mock.Anything, "HB0003", "Section 1", "Strike section 1").Return("Section 2", nil)

	out, err := h.pipeline.runMerge(ctx, &docRun{id: "HB0003", entry: e, doc: doc})
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusComplete, out.status)
	assert.Equal(t, "merged 1 of 2 amendments, 1 text missing", out.reason)
	assert.Equal(t, model.MergeStatusMerged, h.doc("HB0003").MergeStatus)
	h.transformer.AssertNumberOfCalls(t, "Apply", 1)
}

func TestRunTranscode_ManifestFilesAbsent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc, err := h.store.Update(ctx, "HB0004", model.DocumentUpdate{
		Flags: &model.FlagsPatch{NeedsFetch: model.Bool(false), NeedsTranscode: model.Bool(true)},
		Files: &model.FilesPatch{Primary: model.String(h.md("gone.pdf"))},
	})
	require.NoError(t, err)

	out, err := h.pipeline.runTranscode(ctx, &docRun{id: "HB0004", entry: entry(t, "HB0004", "Health"), doc: doc})
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusSkipped, out.status)
	assert.Equal(t, "documents missing", out.reason)

	doc = h.doc("HB0004")
	assert.False(t, doc.Flags.NeedsTranscode)
	assert.True(t, doc.Flags.NeedsMerge)
	assert.Zero(t, h.introspector.Opens())
}

func TestRun_LayoutChangeRetranscodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := entry(t, "HB0001", "Environment - Grant Program")
	h.expectFetch(e, model.Files{Primary: h.writePDF("HB0001.pdf", "Original bill text")}, 1)
	h.expectAnswers()
	h.run(e)
	first := *h.doc("HB0001").Hashes.Transcode
	require.Equal(t, 1, h.introspector.Opens())

	// Same options: a forced transcode is still a no-op.
	_, err := h.store.MarkDirty(ctx, "HB0001", model.StageTranscode)
	require.NoError(t, err)
	report := h.run(e)
	assert.Equal(t, "unchanged", stageResult(t, report.Results[0], model.StageTranscode).Reason)
	assert.Equal(t, 1, h.introspector.Opens())

	h.pipeline.opts.Layout.IncludeStruck = false
	_, err = h.store.MarkDirty(ctx, "HB0001", model.StageTranscode)
	require.NoError(t, err)
	report = h.run(e)
	assert.Equal(t, model.StageStatusComplete, stageResult(t, report.Results[0], model.StageTranscode).Status)
	assert.Equal(t, 2, h.introspector.Opens())
	assert.NotEqual(t, first, *h.doc("HB0001").Hashes.Transcode)
}
