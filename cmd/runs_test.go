package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/legislation-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.RunReport{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Session:    "2025rs",
			StartedAt:  now,
			FinishedAt: now.Add(2 * time.Minute),
			Documents:  12,
			Succeeded:  11,
			Failed:     1,
			TokenUsage: model.TokenUsage{Cost: 3.5},
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			Session:    "2025rs",
			StartedAt:  now.Add(-time.Hour),
			FinishedAt: now.Add(-time.Hour).Add(5 * time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SUCCEEDED")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "$3.50")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "def12345")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestFindRun(t *testing.T) {
	runs := []model.RunReport{
		{ID: "abc12345-6789-0000-0000-000000000000"},
		{ID: "def12345-6789-0000-0000-000000000000"},
	}

	r, ok := findRun(runs, "def12345")
	assert.True(t, ok)
	assert.Equal(t, runs[1].ID, r.ID)

	r, ok = findRun(runs, runs[0].ID)
	assert.True(t, ok)
	assert.Equal(t, runs[0].ID, r.ID)

	_, ok = findRun(runs, "abc")
	assert.False(t, ok, "prefixes shorter than the display id are ambiguous")

	_, ok = findRun(runs, "99999999")
	assert.False(t, ok)
}
