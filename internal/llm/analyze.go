package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/resilience"
	"github.com/sells-group/legislation-cli/pkg/anthropic"
)

// Analyze asks req of text and returns the schema-valid JSON answer.
// Unparseable or schema-violating output is retried.
func (c *Client) Analyze(ctx context.Context, doc string, req annotate.Request, text string) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, eris.Wrap(err, "llm: marshal schema")
	}
	schema, err := compileSchema(req.Name, schemaJSON)
	if err != nil {
		return nil, err
	}

	temp := 0.0
	msg := anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System: anthropic.BuildCachedSystemBlocks(req.System +
			"\n\nThe response must be a single JSON object matching this JSON schema:\n" + string(schemaJSON)),
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	}

	out, err := resilience.DoVal(ctx, c.retryConfig("annotator", doc), func(ctx context.Context) (json.RawMessage, error) {
		resp, err := c.api.CreateMessage(ctx, msg)
		if err != nil {
			return nil, classify(ctx, err)
		}
		c.record(resp, "annotate_"+req.Name)

		if resp.StopReason == "refusal" {
			return nil, resilience.Permanent(eris.Errorf("llm: model refused %s for %s", req.Name, doc))
		}
		raw, err := ValidateJSON(schema, resp.Text())
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		return raw, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "llm: analyze %s for %s", req.Name, doc)
	}
	return out, nil
}

func compileSchema(name string, schemaJSON []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return nil, eris.Wrapf(err, "llm: add schema %s", name)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: compile schema %s", name)
	}
	return schema, nil
}

// ValidateJSON extracts the JSON object from a model response and checks it
// against schema.
func ValidateJSON(schema *jsonschema.Schema, text string) (json.RawMessage, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, eris.New("llm: response contains no JSON object")
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, eris.Wrap(err, "llm: malformed JSON")
	}
	if err := schema.Validate(v); err != nil {
		return nil, eris.Wrap(err, "llm: json does not match schema")
	}
	return json.RawMessage(raw), nil
}

// extractJSON strips code fences and surrounding prose from a response.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
