package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// MergeStatus records the outcome of the amendment merge stage.
type MergeStatus string

const (
	MergeStatusOriginal MergeStatus = "original"
	MergeStatusMerged   MergeStatus = "merged"
	MergeStatusFailed   MergeStatus = "failed"
)

// Valid reports whether s is a known merge status.
func (s MergeStatus) Valid() bool {
	switch s {
	case MergeStatusOriginal, MergeStatusMerged, MergeStatusFailed:
		return true
	}
	return false
}

// Flags are the per-stage work markers. They form a chain: fetch before
// transcode before merge before annotate.
type Flags struct {
	NeedsFetch     bool `json:"needs_fetch"`
	NeedsTranscode bool `json:"needs_transcode"`
	NeedsMerge     bool `json:"needs_merge"`
	NeedsAnnotate  bool `json:"needs_annotate"`
}

// Needs reports whether the flag for stage s is set.
func (f Flags) Needs(s Stage) bool {
	switch s {
	case StageFetch:
		return f.NeedsFetch
	case StageTranscode:
		return f.NeedsTranscode
	case StageMerge:
		return f.NeedsMerge
	case StageAnnotate:
		return f.NeedsAnnotate
	}
	return false
}

// Files is the manifest of downloaded source documents. Amendments keep
// discovery order.
type Files struct {
	Primary    string   `json:"primary,omitempty"`
	Amendments []string `json:"amendments,omitempty"`
	FiscalNote string   `json:"fiscal_note,omitempty"`
}

// Paths returns every manifest path: primary, amendments, fiscal note.
func (f Files) Paths() []string {
	var out []string
	if f.Primary != "" {
		out = append(out, f.Primary)
	}
	out = append(out, f.Amendments...)
	if f.FiscalNote != "" {
		out = append(out, f.FiscalNote)
	}
	return out
}

// Empty reports whether the manifest lists no files.
func (f Files) Empty() bool {
	return f.Primary == "" && len(f.Amendments) == 0 && f.FiscalNote == ""
}

// Equal reports whether two manifests list the same files in the same order.
func (f Files) Equal(o Files) bool {
	if f.Primary != o.Primary || f.FiscalNote != o.FiscalNote || len(f.Amendments) != len(o.Amendments) {
		return false
	}
	for i := range f.Amendments {
		if f.Amendments[i] != o.Amendments[i] {
			return false
		}
	}
	return true
}

// Hashes are the input digests of each stage's last successful run. A nil
// hash means the stage has never succeeded.
type Hashes struct {
	Source    *string `json:"source,omitempty"`
	Transcode *string `json:"transcode,omitempty"`
	Merge     *string `json:"merge,omitempty"`
	Annotate  *string `json:"annotate,omitempty"`
}

// Failure records a permanent merge failure and the input digest it
// happened on. The merge stage stays frozen until the digest changes.
type Failure struct {
	InputHash string    `json:"input_hash"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Document is the persisted processing state of one legislative document.
type Document struct {
	ID               string      `json:"id"`
	Flags            Flags       `json:"flags"`
	Files            Files       `json:"files"`
	Hashes           Hashes      `json:"hashes"`
	MergeStatus      MergeStatus `json:"merge_status"`
	MergeFailure     *Failure    `json:"merge_failure,omitempty"`
	Annotation       *Annotation `json:"annotation,omitempty"`
	LastSeen         *time.Time  `json:"last_seen,omitempty"`
	LastUpdatedLocal time.Time   `json:"last_updated_local"`
}

// NewDocument returns a record with default flags: only fetch pending.
func NewDocument(id string, now time.Time) *Document {
	return &Document{
		ID:               id,
		Flags:            Flags{NeedsFetch: true},
		MergeStatus:      MergeStatusOriginal,
		LastUpdatedLocal: now.UTC(),
	}
}

// FlagsPatch sets individual flags. Nil fields are left unchanged.
type FlagsPatch struct {
	NeedsFetch     *bool `json:"needs_fetch,omitempty"`
	NeedsTranscode *bool `json:"needs_transcode,omitempty"`
	NeedsMerge     *bool `json:"needs_merge,omitempty"`
	NeedsAnnotate  *bool `json:"needs_annotate,omitempty"`
}

// FilesPatch sets individual manifest entries. Amendments, when set,
// replaces the whole list.
type FilesPatch struct {
	Primary    *string   `json:"primary,omitempty"`
	Amendments *[]string `json:"amendments,omitempty"`
	FiscalNote *string   `json:"fiscal_note,omitempty"`
}

// HashesPatch sets individual stage hashes.
type HashesPatch struct {
	Source    *string `json:"source,omitempty"`
	Transcode *string `json:"transcode,omitempty"`
	Merge     *string `json:"merge,omitempty"`
	Annotate  *string `json:"annotate,omitempty"`
}

// DocumentUpdate is a partial update. The three grouped fields (Flags,
// Files, Hashes) are merged member by member; every other non-nil field
// replaces the stored value.
type DocumentUpdate struct {
	Flags             *FlagsPatch  `json:"flags,omitempty"`
	Files             *FilesPatch  `json:"files,omitempty"`
	Hashes            *HashesPatch `json:"hashes,omitempty"`
	MergeStatus       *MergeStatus `json:"merge_status,omitempty"`
	MergeFailure      *Failure     `json:"merge_failure,omitempty"`
	ClearMergeFailure bool         `json:"clear_merge_failure,omitempty"`
	Annotation        *Annotation  `json:"annotation,omitempty"`
	LastSeen          *time.Time   `json:"last_seen,omitempty"`
}

// Validate rejects updates that would leave the record malformed.
func (u DocumentUpdate) Validate() error {
	if u.MergeStatus != nil && !u.MergeStatus.Valid() {
		return eris.Errorf("model: invalid merge status %q", *u.MergeStatus)
	}
	if u.MergeFailure != nil && u.ClearMergeFailure {
		return eris.New("model: update both sets and clears merge failure")
	}
	if u.Annotation != nil {
		if err := u.Annotation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge returns an update that applies u and then o.
func (u DocumentUpdate) Merge(o DocumentUpdate) DocumentUpdate {
	out := u
	if o.Flags != nil {
		out.Flags = mergeFlagsPatch(u.Flags, o.Flags)
	}
	if o.Files != nil {
		out.Files = mergeFilesPatch(u.Files, o.Files)
	}
	if o.Hashes != nil {
		out.Hashes = mergeHashesPatch(u.Hashes, o.Hashes)
	}
	if o.MergeStatus != nil {
		out.MergeStatus = o.MergeStatus
	}
	if o.MergeFailure != nil {
		out.MergeFailure = o.MergeFailure
		out.ClearMergeFailure = false
	}
	if o.ClearMergeFailure {
		out.MergeFailure = nil
		out.ClearMergeFailure = true
	}
	if o.Annotation != nil {
		out.Annotation = o.Annotation
	}
	if o.LastSeen != nil {
		out.LastSeen = o.LastSeen
	}
	return out
}

// Apply merges u into d and stamps LastUpdatedLocal.
func (d *Document) Apply(u DocumentUpdate, now time.Time) {
	if p := u.Flags; p != nil {
		setBool(&d.Flags.NeedsFetch, p.NeedsFetch)
		setBool(&d.Flags.NeedsTranscode, p.NeedsTranscode)
		setBool(&d.Flags.NeedsMerge, p.NeedsMerge)
		setBool(&d.Flags.NeedsAnnotate, p.NeedsAnnotate)
	}
	if p := u.Files; p != nil {
		setString(&d.Files.Primary, p.Primary)
		if p.Amendments != nil {
			d.Files.Amendments = append([]string(nil), (*p.Amendments)...)
		}
		setString(&d.Files.FiscalNote, p.FiscalNote)
	}
	if p := u.Hashes; p != nil {
		setHash(&d.Hashes.Source, p.Source)
		setHash(&d.Hashes.Transcode, p.Transcode)
		setHash(&d.Hashes.Merge, p.Merge)
		setHash(&d.Hashes.Annotate, p.Annotate)
	}
	if u.MergeStatus != nil {
		d.MergeStatus = *u.MergeStatus
	}
	if u.MergeFailure != nil {
		f := *u.MergeFailure
		d.MergeFailure = &f
	}
	if u.ClearMergeFailure {
		d.MergeFailure = nil
	}
	if u.Annotation != nil {
		a := *u.Annotation
		d.Annotation = &a
	}
	if u.LastSeen != nil {
		t := u.LastSeen.UTC()
		d.LastSeen = &t
	}
	d.LastUpdatedLocal = now.UTC()
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s.
func String(s string) *string { return &s }

// Status returns a pointer to s.
func Status(s MergeStatus) *MergeStatus { return &s }

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setHash(dst **string, v *string) {
	if v != nil {
		s := *v
		*dst = &s
	}
}

func mergeFlagsPatch(a, b *FlagsPatch) *FlagsPatch {
	out := FlagsPatch{}
	if a != nil {
		out = *a
	}
	if b.NeedsFetch != nil {
		out.NeedsFetch = b.NeedsFetch
	}
	if b.NeedsTranscode != nil {
		out.NeedsTranscode = b.NeedsTranscode
	}
	if b.NeedsMerge != nil {
		out.NeedsMerge = b.NeedsMerge
	}
	if b.NeedsAnnotate != nil {
		out.NeedsAnnotate = b.NeedsAnnotate
	}
	return &out
}

func mergeFilesPatch(a, b *FilesPatch) *FilesPatch {
	out := FilesPatch{}
	if a != nil {
		out = *a
	}
	if b.Primary != nil {
		out.Primary = b.Primary
	}
	if b.Amendments != nil {
		out.Amendments = b.Amendments
	}
	if b.FiscalNote != nil {
		out.FiscalNote = b.FiscalNote
	}
	return &out
}

func mergeHashesPatch(a, b *HashesPatch) *HashesPatch {
	out := HashesPatch{}
	if a != nil {
		out = *a
	}
	if b.Source != nil {
		out.Source = b.Source
	}
	if b.Transcode != nil {
		out.Transcode = b.Transcode
	}
	if b.Merge != nil {
		out.Merge = b.Merge
	}
	if b.Annotate != nil {
		out.Annotate = b.Annotate
	}
	return &out
}
