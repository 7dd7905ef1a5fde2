// Package catalog loads a session's master list of legislation and exposes
// its entries, deduplicated across crossfiled bills.
package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// volatileKeys are master-list fields left out of the fingerprint because
// they change on every publication without any change to the bill.
var volatileKeys = []string{"StatusCurrentAsOf"}

// Subject is a subject heading attached to a bill.
type Subject struct {
	Name string `json:"Name"`
}

// AmendmentLink locates one adopted amendment.
type AmendmentLink struct {
	ID  string `json:"ID"`
	URL string `json:"URL"`
}

// Documents are the document links of an entry. They are optional; the
// master list carries them only once link discovery has run upstream.
type Documents struct {
	Bill       string          `json:"Bill,omitempty"`
	Amendments []AmendmentLink `json:"Amendments,omitempty"`
	FiscalNote string          `json:"FiscalNote,omitempty"`
}

// Entry is one master-list record.
type Entry struct {
	BillNumber          string     `json:"BillNumber"`
	CrossfileBillNumber flexString `json:"CrossfileBillNumber"`
	ChapterNumber       flexString `json:"ChapterNumber"`
	Title               string     `json:"Title"`
	Synopsis            string     `json:"Synopsis"`
	BroadSubjects       []*Subject `json:"BroadSubjects"`
	NarrowSubjects      []*Subject `json:"NarrowSubjects"`
	StatusCurrentAsOf   string     `json:"StatusCurrentAsOf"`
	Documents           *Documents `json:"Documents,omitempty"`

	fingerprint string
}

// ParseEntry decodes one raw master-list record and computes its fingerprint.
func ParseEntry(raw json.RawMessage) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, eris.Wrap(err, "catalog: decode entry")
	}
	if strings.TrimSpace(e.BillNumber) == "" {
		return Entry{}, eris.New("catalog: entry has no BillNumber")
	}
	fp, err := Fingerprint(raw)
	if err != nil {
		return Entry{}, eris.Wrapf(err, "catalog: fingerprint %s", e.BillNumber)
	}
	e.fingerprint = fp
	return e, nil
}

// Fingerprint is the SHA-256 hex digest of the canonical JSON of a record
// without its volatile fields. Key order in the input does not matter.
func Fingerprint(raw json.RawMessage) (string, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return "", eris.Wrap(err, "catalog: decode record")
	}
	for _, k := range volatileKeys {
		delete(m, k)
	}
	// encoding/json writes map keys sorted, which makes the output canonical.
	canon, err := json.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "catalog: encode record")
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint returns the entry's content fingerprint.
func (e Entry) Fingerprint() string { return e.fingerprint }

// Chaptered reports whether the bill has been assigned a chapter number.
func (e Entry) Chaptered() bool { return e.ChapterNumber != "" }

// Crossfile returns the crossfiled bill number, if any.
func (e Entry) Crossfile() string { return string(e.CrossfileBillNumber) }

// SummaryMarkdown renders the entry's title, synopsis and subjects. It is the
// text of last resort when no bill document could be transcoded.
func (e Entry) SummaryMarkdown() string {
	var b strings.Builder
	b.WriteString("# " + e.Title + "\n\n")
	b.WriteString("## Synopsis\n" + e.Synopsis + "\n\n")
	if broad := subjectNames(e.BroadSubjects); len(broad) > 0 {
		b.WriteString("Broad Subjects: " + strings.Join(broad, ", ") + "\n")
	}
	if narrow := subjectNames(e.NarrowSubjects); len(narrow) > 0 {
		b.WriteString("Narrow Subjects: " + strings.Join(narrow, ", ") + "\n")
	}
	return b.String()
}

func subjectNames(subjects []*Subject) []string {
	var out []string
	for _, s := range subjects {
		if s != nil && s.Name != "" {
			out = append(out, s.Name)
		}
	}
	return out
}

// Catalog is the deduplicated entry list of one session.
type Catalog struct {
	Session string
	entries []Entry
	byID    map[string]int
}

// Options controls how raw entries become a catalog.
type Options struct {
	// RequireChapter drops entries without a chapter number. Used for
	// finished sessions, where unchaptered bills never became law.
	RequireChapter bool
}

// Build filters, sorts and deduplicates entries. Entries are sorted by bill
// number; when two bills are crossfiled the first in that order is kept.
func Build(session string, entries []Entry, opts Options) *Catalog {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if opts.RequireChapter && !e.Chaptered() {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BillNumber < sorted[j].BillNumber
	})

	c := &Catalog{Session: session, byID: make(map[string]int, len(sorted))}
	seenCrossfiles := make(map[string]struct{})
	for _, e := range sorted {
		if _, ok := seenCrossfiles[e.BillNumber]; ok {
			continue
		}
		if _, dup := c.byID[e.BillNumber]; dup {
			continue
		}
		if cf := e.Crossfile(); cf != "" {
			seenCrossfiles[cf] = struct{}{}
		}
		c.byID[e.BillNumber] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// Parse decodes a master-list JSON array and builds the catalog.
func Parse(session string, data []byte, opts Options) (*Catalog, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, eris.Wrap(err, "catalog: decode master list")
	}
	entries := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		e, err := ParseEntry(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: entry %d", i)
		}
		entries = append(entries, e)
	}
	return Build(session, entries, opts), nil
}

// Entries returns the entries in processing order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Lookup returns the entry for a bill number.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// flexString decodes a JSON string, number or null into a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return eris.Errorf("catalog: expected string or number, got %s", b)
	}
	*f = flexString(b)
	return nil
}
