package annotate

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legislation-cli/internal/model"
)

// Set is everything the annotate stage asks of a bill.
type Set struct {
	Questions []model.Question
	Agencies  []model.Agency
}

// Load reads the question set and agency list. Empty paths select the
// default questions and no agency analysis.
func Load(questionsPath, agenciesPath string) (*Set, error) {
	qs, err := LoadQuestions(questionsPath)
	if err != nil {
		return nil, err
	}
	agencies, err := LoadAgencies(agenciesPath)
	if err != nil {
		return nil, err
	}
	return &Set{Questions: qs, Agencies: agencies}, nil
}

// Request is one structured question to the annotator.
type Request struct {
	Name   string
	System string
	Schema map[string]any
}

// AnswersRequest asks the question set.
func (s *Set) AnswersRequest() Request {
	return Request{Name: "answers", System: SystemPrompt(s.Questions), Schema: AnswersSchema(s.Questions)}
}

// AgencyRequest asks for agency relevance. ok is false when no agency list
// is configured.
func (s *Set) AgencyRequest() (Request, bool) {
	if len(s.Agencies) == 0 {
		return Request{}, false
	}
	return Request{
		Name:   "agencies",
		System: AgencyPrompt(s.Agencies),
		Schema: AgencySchema(AgencyNames(s.Agencies)),
	}, true
}

type agencyAnalysis struct {
	RelevantAgencies []model.AgencyRelevance `json:"relevant_agencies"`
}

// Decode builds an Annotation from schema-valid answers and, optionally,
// agency analysis JSON.
func Decode(answers, agencies json.RawMessage, modelName string, now time.Time) (*model.Annotation, error) {
	a := &model.Annotation{Model: modelName, AnnotatedAt: now.UTC()}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, eris.Wrap(err, "annotate: decode answers")
	}

	var all map[string]any
	if err := json.Unmarshal(answers, &all); err != nil {
		return nil, eris.Wrap(err, "annotate: decode answers")
	}
	for k, v := range all {
		if IsStandard(k) {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		a.Extra[k] = v
	}

	if len(agencies) > 0 {
		var aa agencyAnalysis
		if err := json.Unmarshal(agencies, &aa); err != nil {
			return nil, eris.Wrap(err, "annotate: decode agency analysis")
		}
		a.Agencies = aa.RelevantAgencies
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
