package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/model"
)

// annotationText is the annotator input: the merged text when the merge
// produced one, else the original text, else the catalog summary, with the
// fiscal note appended when present.
func (p *Pipeline) annotationText(r *docRun) (string, error) {
	mdDir := p.opts.Session.MarkdownDir()

	var body string
	if r.doc.MergeStatus == model.MergeStatusMerged {
		data, ok, err := readIfExists(amendedPath(mdDir, r.id))
		if err != nil {
			return "", err
		}
		if ok {
			body = string(data)
		}
	}
	if body == "" && r.doc.Files.Primary != "" {
		data, ok, err := readIfExists(markdownPath(mdDir, r.doc.Files.Primary))
		if err != nil {
			return "", err
		}
		if ok {
			body = string(data)
		}
	}
	if body == "" {
		body = r.entry.SummaryMarkdown()
	}

	var fiscalNote string
	if r.doc.Files.FiscalNote != "" {
		data, ok, err := readIfExists(markdownPath(mdDir, r.doc.Files.FiscalNote))
		if err != nil {
			return "", err
		}
		if ok {
			fiscalNote = string(data)
		}
	}
	return annotate.ComposeText(body, fiscalNote), nil
}

// runAnnotate asks the question set, and the agency list when configured,
// about the document's current text. A failure leaves the prior annotation
// in place.
func (p *Pipeline) runAnnotate(ctx context.Context, r *docRun) (outcome, error) {
	if r.doc.MergeStatus == model.MergeStatusFailed {
		return skipped("blocked: merge failed"), nil
	}

	text, err := p.annotationText(r)
	if err != nil {
		return outcome{}, err
	}
	if strings.TrimSpace(text) == "" {
		if err := p.update(ctx, r, model.DocumentUpdate{
			Flags: &model.FlagsPatch{NeedsAnnotate: model.Bool(false)},
		}); err != nil {
			return outcome{}, err
		}
		return skipped("no text"), nil
	}

	hash := digest([]byte(text))
	if stored := r.doc.Hashes.Annotate; stored != nil && *stored == hash && r.doc.Annotation != nil {
		if err := p.update(ctx, r, model.DocumentUpdate{
			Flags: &model.FlagsPatch{NeedsAnnotate: model.Bool(false)},
		}); err != nil {
			return outcome{}, err
		}
		return skipped("unchanged"), nil
	}

	answers, err := p.analyze(ctx, r.id, p.deps.Questions.AnswersRequest(), text)
	if err != nil {
		return outcome{}, err
	}
	var agencies json.RawMessage
	if req, ok := p.deps.Questions.AgencyRequest(); ok {
		agencies, err = p.analyze(ctx, r.id, req, text)
		if err != nil {
			return outcome{}, err
		}
	}

	ann, err := annotate.Decode(answers, agencies, p.opts.ModelName, p.now())
	if err != nil {
		return outcome{}, err
	}
	err = p.update(ctx, r, model.DocumentUpdate{
		Flags:      &model.FlagsPatch{NeedsAnnotate: model.Bool(false)},
		Hashes:     &model.HashesPatch{Annotate: model.String(hash)},
		Annotation: ann,
	})
	if err != nil {
		return outcome{}, err
	}
	zap.L().Info("pipeline: annotated",
		zap.String("document", r.id),
		zap.Int("agencies", len(ann.Agencies)),
		zap.String("hash", hash),
	)
	return complete("annotated"), nil
}

func (p *Pipeline) analyze(ctx context.Context, id string, req annotate.Request, text string) (json.RawMessage, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	out, err := p.deps.Annotator.Analyze(callCtx, id, req, text)
	if err != nil {
		return nil, eris.Wrapf(err, "%s request", req.Name)
	}
	return out, nil
}
