// Package pipeline runs the hash-gated stages of every catalog entry:
// fetch, transcode, merge and annotate.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/layout"
	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/store"
)

// Deps are the pipeline's collaborators.
type Deps struct {
	Store        store.Store
	Fetcher      Fetcher
	Introspector layout.Introspector
	Transformer  TextTransformer
	Annotator    Annotator
	Questions    *annotate.Set
}

// Options tunes a Pipeline.
type Options struct {
	Session model.Session
	// Layout renders bills and amendments; Plain renders fiscal notes.
	Layout layout.Options
	Plain  layout.Options
	// CallTimeout bounds each collaborator call. Zero means no bound.
	CallTimeout time.Duration
	// MaxConcurrentDocuments is the number of documents processed at once.
	MaxConcurrentDocuments int
	// ModelName is recorded on every annotation.
	ModelName string
}

// Pipeline runs the stages over catalog entries.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Pipeline. A nil question set selects the default questions.
func New(deps Deps, opts Options) *Pipeline {
	if opts.MaxConcurrentDocuments < 1 {
		opts.MaxConcurrentDocuments = 1
	}
	if deps.Questions == nil {
		deps.Questions = &annotate.Set{Questions: annotate.DefaultQuestions()}
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// docRun is the state of one document while its stages run.
type docRun struct {
	id    string
	entry catalog.Entry
	doc   *model.Document
}

// outcome is a stage's result when it did not fail.
type outcome struct {
	status model.StageStatus
	reason string
}

func complete(reason string) outcome { return outcome{status: model.StageStatusComplete, reason: reason} }
func skipped(reason string) outcome  { return outcome{status: model.StageStatusSkipped, reason: reason} }

// reasonUpToDate marks a fetch check that found nothing to do; it is left
// out of the document result.
const reasonUpToDate = "up to date"

type stageFunc func(ctx context.Context, r *docRun) (outcome, error)

// Run processes every entry and persists a run report. A failing document
// never stops the others; the returned error is only for report storage
// or cancellation.
func (p *Pipeline) Run(ctx context.Context, entries []catalog.Entry) (*model.RunReport, error) {
	report := &model.RunReport{
		ID:        uuid.NewString(),
		Session:   p.opts.Session.Key(),
		StartedAt: p.now().UTC(),
	}
	log := zap.L().With(zap.String("session", report.Session), zap.String("run_id", report.ID))
	log.Info("pipeline: starting run",
		zap.Int("documents", len(entries)),
		zap.Int("concurrency", p.opts.MaxConcurrentDocuments),
	)
	usageBefore := p.usage()

	// One goroutine per document keeps store writes per id serialized.
	seen := make(map[string]struct{}, len(entries))
	unique := make([]catalog.Entry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.BillNumber]; dup {
			log.Warn("pipeline: duplicate entry ignored", zap.String("document", e.BillNumber))
			continue
		}
		seen[e.BillNumber] = struct{}{}
		unique = append(unique, e)
	}

	results := make([]model.DocumentResult, len(unique))
	var g errgroup.Group
	g.SetLimit(p.opts.MaxConcurrentDocuments)
	for i, e := range unique {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = p.RunDocument(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.Document != "" {
			report.Results = append(report.Results, res)
		}
	}
	report.FinishedAt = p.now().UTC()
	report.TokenUsage = p.usage()
	report.TokenUsage.Sub(usageBefore)
	report.Tally()

	if err := p.deps.Store.RecordRun(ctx, report); err != nil {
		return report, eris.Wrap(err, "pipeline: record run")
	}
	log.Info("pipeline: run complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Float64("cost_usd", report.TokenUsage.Cost),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "pipeline: run interrupted")
	}
	return report, nil
}

// RunDocument runs the stages of one entry in order while their flags are
// set. The first failing stage ends the document.
func (p *Pipeline) RunDocument(ctx context.Context, entry catalog.Entry) model.DocumentResult {
	res := model.DocumentResult{Document: entry.BillNumber}
	log := zap.L().With(zap.String("document", entry.BillNumber))

	doc, err := p.deps.Store.Get(ctx, entry.BillNumber)
	if err != nil {
		res.Error = eris.Wrap(err, "load state").Error()
		log.Error("pipeline: load state failed", zap.Error(err))
		return res
	}
	r := &docRun{id: entry.BillNumber, entry: entry, doc: doc}

	stages := []struct {
		stage model.Stage
		fn    stageFunc
	}{
		{model.StageFetch, p.runFetch},
		{model.StageTranscode, p.runTranscode},
		{model.StageMerge, p.runMerge},
		{model.StageAnnotate, p.runAnnotate},
	}
	for _, s := range stages {
		// Fetch also runs on catalog changes, so it decides for itself.
		if s.stage != model.StageFetch && !r.doc.Flags.Needs(s.stage) {
			continue
		}
		sr := p.trackStage(ctx, r, s.stage, s.fn)
		if sr.Status == model.StageStatusSkipped && sr.Reason == reasonUpToDate {
			continue
		}
		res.Stages = append(res.Stages, sr)
		if sr.Status == model.StageStatusFailed {
			break
		}
	}
	return res
}

// trackStage runs fn and converts its outcome into a StageResult, logging
// duration and failures.
func (p *Pipeline) trackStage(ctx context.Context, r *docRun, stage model.Stage, fn stageFunc) model.StageResult {
	log := zap.L().With(zap.String("document", r.id), zap.String("stage", string(stage)))

	start := time.Now()
	out, err := fn(ctx, r)
	duration := time.Since(start).Milliseconds()

	sr := model.StageResult{Stage: stage, Duration: duration}
	if err != nil {
		stageErr := &StageError{Document: r.id, Stage: stage, Err: err}
		sr.Status = model.StageStatusFailed
		sr.Error = stageErr.Error()
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return sr
	}

	sr.Status = out.status
	sr.Reason = out.reason
	if out.status == model.StageStatusComplete {
		log.Info("pipeline: stage complete",
			zap.String("reason", out.reason),
			zap.Int64("duration_ms", duration),
		)
	} else {
		log.Debug("pipeline: stage skipped", zap.String("reason", out.reason))
	}
	return sr
}

// update persists u and refreshes the in-flight record.
func (p *Pipeline) update(ctx context.Context, r *docRun, u model.DocumentUpdate) error {
	doc, err := p.deps.Store.Update(ctx, r.id, u)
	if err != nil {
		return eris.Wrap(err, "update state")
	}
	r.doc = doc
	return nil
}

// callContext applies the per-call timeout.
func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.CallTimeout)
}

// usage sums the token meters of the LLM collaborators, counting a shared
// client once.
func (p *Pipeline) usage() model.TokenUsage {
	var total model.TokenUsage
	var counted []usageReporter
	for _, c := range []any{p.deps.Transformer, p.deps.Annotator} {
		u, ok := c.(usageReporter)
		if !ok {
			continue
		}
		dup := false
		for _, prev := range counted {
			if prev == u {
				dup = true
			}
		}
		if !dup {
			counted = append(counted, u)
			total.Add(u.Usage())
		}
	}
	return total
}
