package annotate

import (
	"github.com/sells-group/legislation-cli/internal/model"
)

// AnswersSchema is the JSON schema of an answers object for qs. Every key
// is required; nullable questions also accept null.
func AnswersSchema(qs []model.Question) map[string]any {
	props := make(map[string]any, len(qs))
	required := make([]any, 0, len(qs))
	for _, q := range qs {
		var typ any = string(q.Type)
		if q.Nullable {
			typ = []any{string(q.Type), "null"}
		}
		props[q.Key] = map[string]any{
			"type":        typ,
			"description": q.Text,
		}
		required = append(required, q.Key)
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// AgencySchema is the JSON schema of an agency relevance analysis. Agency
// names must come from names.
func AgencySchema(names []string) map[string]any {
	enum := make([]any, len(names))
	for i, n := range names {
		enum[i] = n
	}
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]any{
			"relevant_agencies": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"agency_name":           map[string]any{"type": "string", "enum": enum},
						"is_relevant":           map[string]any{"type": "boolean"},
						"relevance_explanation": map[string]any{"type": "string"},
						"relevance_rating": map[string]any{
							"type":        "integer",
							"minimum":     1,
							"maximum":     5,
							"description": "Relevance rating from 1 to 5, with 5 being the most relevant",
						},
					},
					"required": []any{"agency_name", "is_relevant", "relevance_explanation", "relevance_rating"},
				},
			},
		},
		"required": []any{"relevant_agencies"},
	}
}
