// Package annotate holds the question set, agency list, answer schemas and
// prompt text of the annotate stage.
package annotate

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/legislation-cli/internal/model"
)

// DefaultQuestions is the standard question set. Their keys map onto
// model.Answers.
func DefaultQuestions() []model.Question {
	return []model.Question{
		{Key: "bill_summary", Type: model.AnswerString,
			Text: "Write a brief, plain-English summary of the bill."},
		{Key: "start_year", Type: model.AnswerInteger, Nullable: true,
			Text: "What year does the bill take effect?"},
		{Key: "end_year", Type: model.AnswerInteger, Nullable: true,
			Text: "What year does the bill expire or sunset?"},
		{Key: "funding", Type: model.AnswerNumber, Nullable: true,
			Text: `How much funding is allocated or mandated by the bill? (if millions, write out full number. E.g. "1 million" should be 1000000)`},
		{Key: "responsible_party", Type: model.AnswerString,
			Text: "What Maryland State agency, department, office, or role is responsible for implementing the bill?"},
		{Key: "stakeholders", Type: model.AnswerString,
			Text: "What population will be impacted by the bill?"},
		{Key: "fiscal_impact_summary", Type: model.AnswerString, Nullable: true,
			Text: "Summarize the state and local fiscal impact as described in the Fiscal Note. Include estimates for revenues and expenditures if available."},
	}
}

// questionFile is the YAML layout of a question set file.
type questionFile struct {
	Questions []model.Question `yaml:"questions"`
}

// LoadQuestions reads a YAML question set and merges it over the defaults:
// an entry with a standard key replaces that question's text, any other key
// adds a question whose answer is kept in Annotation.Extra. The type of a
// standard question cannot be changed.
func LoadQuestions(path string) ([]model.Question, error) {
	qs := DefaultQuestions()
	if path == "" {
		return qs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "annotate: read questions %s", path)
	}
	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "annotate: parse questions %s", path)
	}

	index := make(map[string]int, len(qs))
	for i, q := range qs {
		index[q.Key] = i
	}
	for _, q := range f.Questions {
		q.Key = strings.TrimSpace(q.Key)
		if q.Key == "" || strings.TrimSpace(q.Text) == "" {
			return nil, eris.Errorf("annotate: question in %s needs a key and text", path)
		}
		if i, ok := index[q.Key]; ok {
			qs[i].Text = q.Text
			continue
		}
		switch q.Type {
		case "":
			q.Type = model.AnswerString
		case model.AnswerString, model.AnswerInteger, model.AnswerNumber:
		default:
			return nil, eris.Errorf("annotate: question %q has unknown type %q", q.Key, q.Type)
		}
		index[q.Key] = len(qs)
		qs = append(qs, q)
	}
	return qs, nil
}

// IsStandard reports whether key is answered by a model.Answers field.
func IsStandard(key string) bool {
	for _, q := range DefaultQuestions() {
		if q.Key == key {
			return true
		}
	}
	return false
}
