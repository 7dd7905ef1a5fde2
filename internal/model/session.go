package model

import (
	"fmt"
	"path/filepath"
)

// Session identifies one legislative session and where its files live.
type Session struct {
	Year    int    `json:"year"`
	DataDir string `json:"data_dir"`
}

// Key is the session identifier used in paths and cache keys, e.g. "2025rs".
func (s Session) Key() string { return fmt.Sprintf("%drs", s.Year) }

// Dir is the session root directory.
func (s Session) Dir() string { return filepath.Join(s.DataDir, s.Key()) }

// PDFDir holds downloaded source documents.
func (s Session) PDFDir() string { return filepath.Join(s.Dir(), "pdf") }

// MarkdownDir holds transcoded and merged text.
func (s Session) MarkdownDir() string { return filepath.Join(s.Dir(), "md") }

// StatePath is the per-session state database.
func (s Session) StatePath() string { return filepath.Join(s.Dir(), "pipeline_state.db") }

// CatalogPath is the local copy of the session master list.
func (s Session) CatalogPath() string { return filepath.Join(s.Dir(), "legislation.json") }
