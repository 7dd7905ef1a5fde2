package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterList = `[
  {"BillNumber":"SB0010","CrossfileBillNumber":"HB0005","ChapterNumber":"12","Title":"Senate twin","Synopsis":"s","BroadSubjects":[],"NarrowSubjects":[],"StatusCurrentAsOf":"2025-04-01"},
  {"BillNumber":"HB0005","CrossfileBillNumber":"SB0010","ChapterNumber":"11","Title":"House twin","Synopsis":"h","BroadSubjects":[{"Name":"Education"}],"NarrowSubjects":[{"Name":"Schools"},{"Name":"Teachers"}],"StatusCurrentAsOf":"2025-04-01"},
  {"BillNumber":"HB0001","CrossfileBillNumber":null,"ChapterNumber":null,"Title":"Failed bill","Synopsis":"f","BroadSubjects":[],"NarrowSubjects":[],"StatusCurrentAsOf":"2025-04-01"},
  {"BillNumber":"HB0002","CrossfileBillNumber":"","ChapterNumber":7,"Title":"Numeric chapter","Synopsis":"n","BroadSubjects":null,"NarrowSubjects":null,"StatusCurrentAsOf":"2025-04-01"}
]`

func TestParse_SortsAndDedupsCrossfiles(t *testing.T) {
	t.Parallel()
	cat, err := Parse("2025rs", []byte(masterList), Options{})
	require.NoError(t, err)

	var ids []string
	for _, e := range cat.Entries() {
		ids = append(ids, e.BillNumber)
	}
	assert.Equal(t, []string{"HB0001", "HB0002", "HB0005"}, ids)

	_, ok := cat.Lookup("SB0010")
	assert.False(t, ok, "crossfile twin sorted later is dropped")
	e, ok := cat.Lookup("HB0005")
	require.True(t, ok)
	assert.Equal(t, "SB0010", e.Crossfile())
}

func TestParse_RequireChapter(t *testing.T) {
	t.Parallel()
	cat, err := Parse("2025rs", []byte(masterList), Options{RequireChapter: true})
	require.NoError(t, err)

	_, ok := cat.Lookup("HB0001")
	assert.False(t, ok)
	e, ok := cat.Lookup("HB0002")
	require.True(t, ok)
	assert.True(t, e.Chaptered())
	assert.Equal(t, flexString("7"), e.ChapterNumber)
	assert.Equal(t, 2, cat.Len())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	t.Run("not an array", func(t *testing.T) {
		_, err := Parse("2025rs", []byte(`{}`), Options{})
		assert.Error(t, err)
	})
	t.Run("missing bill number", func(t *testing.T) {
		_, err := Parse("2025rs", []byte(`[{"Title":"x"}]`), Options{})
		assert.Error(t, err)
	})
	t.Run("bad chapter", func(t *testing.T) {
		_, err := Parse("2025rs", []byte(`[{"BillNumber":"HB1","ChapterNumber":true}]`), Options{})
		assert.Error(t, err)
	})
}

func TestFingerprint_IgnoresVolatileFieldsAndKeyOrder(t *testing.T) {
	t.Parallel()
	a, err := Fingerprint(json.RawMessage(`{"BillNumber":"HB1","Title":"T","StatusCurrentAsOf":"2025-01-01"}`))
	require.NoError(t, err)
	b, err := Fingerprint(json.RawMessage(`{"Title":"T","StatusCurrentAsOf":"2025-03-09","BillNumber":"HB1"}`))
	require.NoError(t, err)
	c, err := Fingerprint(json.RawMessage(`{"BillNumber":"HB1","Title":"T2"}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestEntry_Fingerprint(t *testing.T) {
	t.Parallel()
	e, err := ParseEntry(json.RawMessage(`{"BillNumber":"HB1","Title":"T"}`))
	require.NoError(t, err)
	want, err := Fingerprint(json.RawMessage(`{"Title":"T","BillNumber":"HB1"}`))
	require.NoError(t, err)
	assert.Equal(t, want, e.Fingerprint())
}

func TestEntry_SummaryMarkdown(t *testing.T) {
	t.Parallel()
	cat, err := Parse("2025rs", []byte(masterList), Options{})
	require.NoError(t, err)

	e, _ := cat.Lookup("HB0005")
	assert.Equal(t,
		"# House twin\n\n## Synopsis\nh\n\nBroad Subjects: Education\nNarrow Subjects: Schools, Teachers\n",
		e.SummaryMarkdown())

	e, _ = cat.Lookup("HB0002")
	assert.Equal(t, "# Numeric chapter\n\n## Synopsis\nn\n\n", e.SummaryMarkdown())
}

func TestParse_Documents(t *testing.T) {
	t.Parallel()
	data := `[{"BillNumber":"HB0100","Documents":{"Bill":"/2025RS/bills/hb/hb0100T.pdf","Amendments":[{"ID":"123456","URL":"/2025RS/amds/bil_0000/hb0100_12345601.pdf"}],"FiscalNote":"/2025RS/fnotes/bil_0000/hb0100.pdf"}}]`
	cat, err := Parse("2025rs", []byte(data), Options{})
	require.NoError(t, err)

	e, ok := cat.Lookup("HB0100")
	require.True(t, ok)
	require.NotNil(t, e.Documents)
	assert.Equal(t, "/2025RS/bills/hb/hb0100T.pdf", e.Documents.Bill)
	require.Len(t, e.Documents.Amendments, 1)
	assert.Equal(t, "123456", e.Documents.Amendments[0].ID)
}
