package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Stage is one hash-gated unit of pipeline work.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTranscode Stage = "transcode"
	StageMerge     Stage = "merge"
	StageAnnotate  Stage = "annotate"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageFetch, StageTranscode, StageMerge, StageAnnotate}

// Index returns the position of s in execution order, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage accepts a stage name. "merge-amendments" and "amend" are
// accepted for the merge stage, "download" for fetch, "convert" for
// transcode and "qa" for annotate.
func ParseStage(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fetch", "download":
		return StageFetch, nil
	case "transcode", "convert":
		return StageTranscode, nil
	case "merge", "merge-amendments", "amend":
		return StageMerge, nil
	case "annotate", "qa":
		return StageAnnotate, nil
	}
	return "", eris.Errorf("model: unknown stage %q", name)
}

// DirtyFrom returns a flags patch that sets the flag of s and of every later
// stage. Earlier stages are untouched.
func DirtyFrom(s Stage) (*FlagsPatch, error) {
	idx := s.Index()
	if idx < 0 {
		return nil, eris.Errorf("model: unknown stage %q", s)
	}
	p := &FlagsPatch{}
	for _, st := range Stages[idx:] {
		switch st {
		case StageFetch:
			p.NeedsFetch = Bool(true)
		case StageTranscode:
			p.NeedsTranscode = Bool(true)
		case StageMerge:
			p.NeedsMerge = Bool(true)
		case StageAnnotate:
			p.NeedsAnnotate = Bool(true)
		}
	}
	return p, nil
}
