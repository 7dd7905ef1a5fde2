package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/resilience"
	"github.com/sells-group/legislation-cli/pkg/anthropic"
)

const mergeSystemPrompt = "Below you will find bill markdown wrapped in <bill> tags, " +
	"followed by amendment markdown wrapped in <amendment> tags. " +
	"Apply the instructions in the amendment to the bill. " +
	"Respond ONLY with the resulting markdown."

const mergeUserTemplate = "<bill>\n%s\n</bill>\n\n<amendment>\n%s\n</amendment>"

// Apply returns text with the amendment's instructions applied. Empty,
// truncated or refused output is a permanent failure.
func (c *Client) Apply(ctx context.Context, doc, text, amendment string) (string, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(mergeSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf(mergeUserTemplate, text, amendment)}},
		Temperature: &temp,
	}

	out, err := resilience.DoVal(ctx, c.retryConfig("transformer", doc), func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateMessage(ctx, req)
		if err != nil {
			return "", classify(ctx, err)
		}
		c.record(resp, "merge")

		switch resp.StopReason {
		case "refusal":
			return "", resilience.Permanent(eris.Errorf("llm: model refused to apply amendment to %s", doc))
		case "max_tokens":
			return "", resilience.Permanent(eris.Errorf("llm: merged text for %s exceeds %d tokens", doc, c.cfg.MaxTokens))
		}
		result := strings.TrimSpace(resp.Text())
		if result == "" {
			return "", resilience.Permanent(eris.Errorf("llm: empty merge result for %s", doc))
		}
		return result, nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "llm: apply amendment to %s", doc)
	}
	zap.L().Debug("llm: amendment applied",
		zap.String("document", doc),
		zap.Int("input_chars", len(text)),
		zap.Int("output_chars", len(out)),
	)
	return out, nil
}
