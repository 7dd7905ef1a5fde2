package model

// AnswerType is the JSON type a question's answer must have.
type AnswerType string

const (
	AnswerString  AnswerType = "string"
	AnswerInteger AnswerType = "integer"
	AnswerNumber  AnswerType = "number"
)

// Question is one question asked of every bill in the annotate stage.
type Question struct {
	Key      string     `json:"key" yaml:"key"`
	Text     string     `json:"text" yaml:"text"`
	Type     AnswerType `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable" yaml:"nullable"`
}

// Agency is a state agency a bill may concern.
type Agency struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}

// Sub removes another instance's usage, for deltas between two snapshots.
func (t *TokenUsage) Sub(other TokenUsage) {
	t.InputTokens -= other.InputTokens
	t.OutputTokens -= other.OutputTokens
	t.CacheCreationTokens -= other.CacheCreationTokens
	t.CacheReadTokens -= other.CacheReadTokens
	t.Cost -= other.Cost
}
