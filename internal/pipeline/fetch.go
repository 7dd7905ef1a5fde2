package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/model"
)

// fetchDue reports why the fetch stage has to run, or "" when it is up to date.
func fetchDue(r *docRun) string {
	switch {
	case r.doc.Flags.NeedsFetch:
		return "flagged"
	case r.doc.Hashes.Source == nil:
		return "never fetched"
	case *r.doc.Hashes.Source != r.entry.Fingerprint():
		return "catalog entry changed"
	}
	for _, path := range r.doc.Files.Paths() {
		if !exists(path) {
			return "manifest file missing"
		}
	}
	return ""
}

// runFetch downloads the entry's documents when the catalog record changed
// or a manifest file is gone, and cascades to transcode on any change.
func (p *Pipeline) runFetch(ctx context.Context, r *docRun) (outcome, error) {
	log := zap.L().With(zap.String("document", r.id), zap.String("stage", string(model.StageFetch)))

	reason := fetchDue(r)
	if reason == "" {
		return skipped(reasonUpToDate), nil
	}
	log.Debug("pipeline: fetching", zap.String("reason", reason))

	callCtx, cancel := p.callContext(ctx)
	res, err := p.deps.Fetcher.Fetch(callCtx, r.entry)
	cancel()
	if err != nil {
		return outcome{}, err
	}

	prev := r.doc
	changed := prev.Hashes.Source == nil || *prev.Hashes.Source != res.RawHash ||
		!prev.Files.Equal(res.Manifest) || res.Downloaded > 0

	now := p.now()
	amendments := append([]string{}, res.Manifest.Amendments...)
	doc, err := p.deps.Store.Update(ctx, r.id, model.DocumentUpdate{
		Flags: &model.FlagsPatch{NeedsFetch: model.Bool(false)},
		Files: &model.FilesPatch{
			Primary:    model.String(res.Manifest.Primary),
			Amendments: &amendments,
			FiscalNote: model.String(res.Manifest.FiscalNote),
		},
		Hashes:   &model.HashesPatch{Source: model.String(res.RawHash)},
		LastSeen: &now,
	})
	if err != nil {
		return outcome{}, err
	}
	r.doc = doc

	if !changed {
		return complete("no upstream change"), nil
	}
	doc, err = p.deps.Store.MarkDirty(ctx, r.id, model.StageTranscode)
	if err != nil {
		return outcome{}, err
	}
	r.doc = doc
	log.Info("pipeline: documents changed",
		zap.Int("downloaded", res.Downloaded),
		zap.Int("amendments", len(res.Manifest.Amendments)),
		zap.String("hash", res.RawHash),
	)
	return complete("documents changed"), nil
}
