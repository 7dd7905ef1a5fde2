package annotate

import (
	"fmt"
	"strings"

	"github.com/sells-group/legislation-cli/internal/model"
)

// SystemPrompt instructs the model to answer qs about a bill.
func SystemPrompt(qs []model.Question) string {
	lines := make([]string, len(qs))
	for i, q := range qs {
		lines[i] = fmt.Sprintf("- %s: %s", q.Key, q.Text)
	}
	return "You are reading markdown generated from the text of a bill passed by the Maryland General Assembly, " +
		"and its associated Fiscal and Policy Note (appended at the end). " +
		"Note that ~ syntax means text has been stricken. " +
		"Answer the following questions:\n" +
		strings.Join(lines, "\n") + "\n" +
		"Please respond with only valid JSON in the specified format."
}

// AgencyPrompt instructs the model to rate the bill's relevance to each agency.
func AgencyPrompt(agencies []model.Agency) string {
	entries := make([]string, len(agencies))
	for i, a := range agencies {
		entries[i] = fmt.Sprintf("Agency: %s\nSummary: %s", a.Name, a.Summary)
	}
	return "You are an expert policy analyst. Review the provided bill text and fiscal note. " +
		"We have a list of Maryland State Agencies and their summaries. " +
		"For EACH agency in the list, determine if the bill is relevant to their work or has a notable fiscal impact on them, " +
		"based on the provided Agency Summary.\n\n" +
		"Return a list of ONLY the agencies that are relevant or impacted.\n\n" +
		"For each relevant agency, provide a relevance_rating from 1 to 5, where 5 is the most relevant " +
		"(e.g., they are the primary implementing agency) and 1 is low relevance (e.g., they are minimally impacted or mentioned).\n\n" +
		"AGENCIES LIST:\n" +
		strings.Join(entries, "\n---\n") + "\n\n" +
		"Analyze the bill's content against each agency's summary to make your determination.\n" +
		"Respond with only valid JSON of the form {\"relevant_agencies\": [...]}."
}

// ComposeText joins the bill text and the fiscal note into the annotate
// input. Either part may be empty; the result is empty only when both are.
func ComposeText(body, fiscalNote string) string {
	if fiscalNote == "" {
		return body
	}
	if body == "" {
		return "FISCAL NOTE:\n" + fiscalNote
	}
	return body + "\n\nFISCAL NOTE:\n" + fiscalNote
}
