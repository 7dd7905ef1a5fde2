package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/resilience"
)

// runMerge folds every amendment, in path order, over the original text.
// A failure on any amendment aborts the fold and nothing is written; the
// next attempt starts again from the original text.
func (p *Pipeline) runMerge(ctx context.Context, r *docRun) (outcome, error) {
	mdDir := p.opts.Session.MarkdownDir()
	out := amendedPath(mdDir, r.id)
	log := zap.L().With(zap.String("document", r.id), zap.String("stage", string(model.StageMerge)))

	// Without a primary text or amendments the document moves on unmerged.
	original := func(reason string) (outcome, error) {
		if err := removeIfExists(out); err != nil {
			return outcome{}, err
		}
		err := p.update(ctx, r, model.DocumentUpdate{
			Flags: &model.FlagsPatch{
				NeedsMerge:    model.Bool(false),
				NeedsAnnotate: model.Bool(true),
			},
			MergeStatus:       model.Status(model.MergeStatusOriginal),
			ClearMergeFailure: true,
		})
		if err != nil {
			return outcome{}, err
		}
		return skipped(reason), nil
	}

	if r.doc.Files.Primary == "" {
		return original("no primary document")
	}
	primary, ok, err := readIfExists(markdownPath(mdDir, r.doc.Files.Primary))
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		log.Warn("pipeline: primary text missing")
		return original("primary text missing")
	}

	amdPaths := make([]string, 0, len(r.doc.Files.Amendments))
	for _, a := range r.doc.Files.Amendments {
		amdPaths = append(amdPaths, markdownPath(mdDir, a))
	}
	sort.Strings(amdPaths)

	parts := [][]byte{primary}
	var amendments []string
	for _, path := range amdPaths {
		data, ok, err := readIfExists(path)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			log.Warn("pipeline: amendment text missing", zap.String("path", path))
			continue
		}
		parts = append(parts, data)
		amendments = append(amendments, string(data))
	}
	if len(amendments) == 0 {
		return original("no amendments")
	}
	hash := digest(parts...)

	if f := r.doc.MergeFailure; f != nil && f.InputHash == hash {
		if err := p.update(ctx, r, model.DocumentUpdate{
			Flags: &model.FlagsPatch{NeedsMerge: model.Bool(false)},
		}); err != nil {
			return outcome{}, err
		}
		return skipped("frozen after permanent failure"), nil
	}

	if stored := r.doc.Hashes.Merge; stored != nil && *stored == hash &&
		r.doc.MergeStatus == model.MergeStatusMerged && exists(out) {
		if err := p.update(ctx, r, model.DocumentUpdate{
			Flags: &model.FlagsPatch{
				NeedsMerge:    model.Bool(false),
				NeedsAnnotate: model.Bool(true),
			},
		}); err != nil {
			return outcome{}, err
		}
		return skipped("unchanged"), nil
	}

	text := string(primary)
	for i, amd := range amendments {
		callCtx, cancel := p.callContext(ctx)
		next, err := p.deps.Transformer.Apply(callCtx, r.id, text, amd)
		cancel()
		if err != nil {
			return outcome{}, p.mergeFailed(ctx, r, out, hash, eris.Wrapf(err, "amendment %d of %d", i+1, len(amendments)))
		}
		text = next
		log.Debug("pipeline: amendment applied", zap.Int("amendment", i+1), zap.Int("chars", len(text)))
	}

	if err := writeFileAtomic(out, []byte(text)); err != nil {
		return outcome{}, err
	}
	err = p.update(ctx, r, model.DocumentUpdate{
		Flags: &model.FlagsPatch{
			NeedsMerge:    model.Bool(false),
			NeedsAnnotate: model.Bool(true),
		},
		Hashes:            &model.HashesPatch{Merge: model.String(hash)},
		MergeStatus:       model.Status(model.MergeStatusMerged),
		ClearMergeFailure: true,
	})
	if err != nil {
		return outcome{}, err
	}
	log.Info("pipeline: amendments merged", zap.Int("amendments", len(amendments)), zap.String("hash", hash))
	if missing := len(amdPaths) - len(amendments); missing > 0 {
		return complete(fmt.Sprintf("merged %d of %d amendments, %d text missing",
			len(amendments), len(amdPaths), missing)), nil
	}
	return complete("merged"), nil
}

// mergeFailed records a failed fold and returns cause. A permanent failure
// freezes the stage on this input; anything else leaves it flagged so the
// next run retries.
func (p *Pipeline) mergeFailed(ctx context.Context, r *docRun, out, hash string, cause error) error {
	if err := removeIfExists(out); err != nil {
		zap.L().Warn("pipeline: remove stale merged text", zap.String("document", r.id), zap.Error(err))
	}
	u := model.DocumentUpdate{MergeStatus: model.Status(model.MergeStatusFailed)}
	if resilience.IsPermanent(cause) {
		u.Flags = &model.FlagsPatch{NeedsMerge: model.Bool(false)}
		u.MergeFailure = &model.Failure{InputHash: hash, Message: cause.Error(), At: p.now()}
	}
	if err := p.update(ctx, r, u); err != nil {
		zap.L().Error("pipeline: record merge failure", zap.String("document", r.id), zap.Error(err))
	}
	zap.L().Warn("pipeline: merge failed",
		zap.String("document", r.id),
		zap.String("kind", resilience.Kind(cause)),
		zap.Error(cause),
	)
	return cause
}
