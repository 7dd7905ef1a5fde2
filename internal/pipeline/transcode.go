package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/layout"
	"github.com/sells-group/legislation-cli/internal/model"
)

// source is one manifest document and the text file it becomes.
type source struct {
	pdf   string
	md    string
	plain bool
	data  []byte
}

// sources lists the manifest documents present on disk, in manifest order.
// Fiscal notes are transcoded without strike detection.
func (p *Pipeline) sources(files model.Files) ([]source, error) {
	mdDir := p.opts.Session.MarkdownDir()
	var out []source
	add := func(path string, plain bool) error {
		data, ok, err := readIfExists(path)
		if err != nil {
			return err
		}
		if !ok {
			zap.L().Warn("pipeline: manifest file missing", zap.String("path", path))
			return nil
		}
		out = append(out, source{pdf: path, md: markdownPath(mdDir, path), plain: plain, data: data})
		return nil
	}
	if files.Primary != "" {
		if err := add(files.Primary, false); err != nil {
			return nil, err
		}
	}
	for _, a := range files.Amendments {
		if err := add(a, false); err != nil {
			return nil, err
		}
	}
	if files.FiscalNote != "" {
		if err := add(files.FiscalNote, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// runTranscode turns every manifest PDF into markdown. The digest covers the
// bytes of every present PDF in manifest order.
func (p *Pipeline) runTranscode(ctx context.Context, r *docRun) (outcome, error) {
	srcs, err := p.sources(r.doc.Files)
	if err != nil {
		return outcome{}, err
	}

	advance := model.DocumentUpdate{Flags: &model.FlagsPatch{
		NeedsTranscode: model.Bool(false),
		NeedsMerge:     model.Bool(true),
	}}

	if len(srcs) == 0 {
		if err := p.update(ctx, r, advance); err != nil {
			return outcome{}, err
		}
		if r.doc.Files.Empty() {
			return skipped("no documents"), nil
		}
		return skipped("documents missing"), nil
	}

	// Rendering options are part of the input: new thresholds or marker
	// settings must not pass as an unchanged transcode.
	parts := [][]byte{renderKey(p.opts.Layout, p.opts.Plain)}
	for _, s := range srcs {
		parts = append(parts, s.data)
	}
	hash := digest(parts...)

	if stored := r.doc.Hashes.Transcode; stored != nil && *stored == hash && allTranscoded(srcs) {
		if err := p.update(ctx, r, advance); err != nil {
			return outcome{}, err
		}
		return skipped("unchanged"), nil
	}

	for _, s := range srcs {
		opts := p.opts.Layout
		if s.plain {
			opts = p.opts.Plain
		}
		pages, err := p.deps.Introspector.Open(s.data)
		if err != nil {
			return outcome{}, eris.Wrapf(ErrUnreadableDocument, "%s: %v", s.pdf, err)
		}
		if err := writeFileAtomic(s.md, []byte(layout.DocumentText(pages, opts))); err != nil {
			return outcome{}, err
		}
		zap.L().Debug("pipeline: transcoded",
			zap.String("document", r.id),
			zap.String("path", s.md),
			zap.Int("pages", len(pages)),
		)
	}

	advance.Hashes = &model.HashesPatch{Transcode: model.String(hash)}
	if err := p.update(ctx, r, advance); err != nil {
		return outcome{}, err
	}
	return complete("transcoded"), nil
}

// renderKey is a stable encoding of the layout options.
func renderKey(opts ...layout.Options) []byte {
	return []byte(fmt.Sprintf("%+v", opts))
}

func allTranscoded(srcs []source) bool {
	for _, s := range srcs {
		if !exists(s.md) {
			return false
		}
	}
	return true
}
