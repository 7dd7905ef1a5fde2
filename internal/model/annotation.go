package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Answers are the structured answers to the standard bill questions.
type Answers struct {
	BillSummary         string   `json:"bill_summary"`
	StartYear           *int     `json:"start_year"`
	EndYear             *int     `json:"end_year"`
	Funding             *float64 `json:"funding"`
	ResponsibleParty    string   `json:"responsible_party"`
	Stakeholders        string   `json:"stakeholders"`
	FiscalImpactSummary *string  `json:"fiscal_impact_summary"`
}

// AgencyRelevance rates how much a bill concerns one agency.
type AgencyRelevance struct {
	AgencyName           string `json:"agency_name"`
	IsRelevant           bool   `json:"is_relevant"`
	RelevanceExplanation string `json:"relevance_explanation"`
	RelevanceRating      int    `json:"relevance_rating"`
}

// Annotation is the result of the annotate stage.
type Annotation struct {
	Answers  Answers           `json:"answers"`
	Agencies []AgencyRelevance `json:"agency_relevance,omitempty"`
	// Extra holds answers to configured questions outside the standard set.
	Extra       map[string]any `json:"extra,omitempty"`
	Model       string         `json:"model,omitempty"`
	AnnotatedAt time.Time      `json:"annotated_at"`
}

// Validate checks agency ratings are within 1..5 and names are present.
func (a Annotation) Validate() error {
	for i, ag := range a.Agencies {
		if ag.AgencyName == "" {
			return eris.Errorf("model: agency %d has no name", i)
		}
		if ag.RelevanceRating < 1 || ag.RelevanceRating > 5 {
			return eris.Errorf("model: agency %q rating %d outside 1..5", ag.AgencyName, ag.RelevanceRating)
		}
	}
	return nil
}
