package catalog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/fetcher"
	"github.com/sells-group/legislation-cli/internal/model"
)

// Loader reads a session's master list, refreshing the local copy from the
// remote master list when a URL is configured.
type Loader struct {
	fetcher        fetcher.Fetcher
	urlTemplate    string
	requireChapter bool
}

// NewLoader creates a Loader. urlTemplate may contain "{year}" and
// "{session}" placeholders; an empty template or nil fetcher means the
// local copy is used as-is.
func NewLoader(f fetcher.Fetcher, urlTemplate string, requireChapter bool) *Loader {
	return &Loader{fetcher: f, urlTemplate: urlTemplate, requireChapter: requireChapter}
}

// URL returns the master-list URL for the session, or "" when offline.
func (l *Loader) URL(s model.Session) string {
	if l.urlTemplate == "" {
		return ""
	}
	r := strings.NewReplacer("{year}", strconv.Itoa(s.Year), "{session}", s.Key())
	return r.Replace(l.urlTemplate)
}

// Load refreshes and parses the session master list.
func (l *Loader) Load(ctx context.Context, s model.Session) (*Catalog, error) {
	path := s.CatalogPath()
	log := zap.L().With(zap.String("session", s.Key()), zap.String("path", path))

	if u := l.URL(s); u != "" && l.fetcher != nil {
		if err := l.refresh(ctx, u, path); err != nil {
			if _, statErr := os.Stat(path); statErr != nil {
				return nil, eris.Wrapf(err, "catalog: refresh %s", u)
			}
			log.Warn("catalog: refresh failed, using local copy", zap.Error(err))
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	cat, err := Parse(s.Key(), data, Options{RequireChapter: l.requireChapter})
	if err != nil {
		return nil, err
	}
	log.Info("catalog loaded", zap.Int("entries", cat.Len()), zap.Bool("require_chapter", l.requireChapter))
	return cat, nil
}

// refresh downloads the master list when its ETag changed and replaces the
// local copy atomically.
func (l *Loader) refresh(ctx context.Context, u, path string) error {
	etagPath := path + ".etag"
	etag := ""
	if _, err := os.Stat(path); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := l.fetcher.DownloadIfChanged(ctx, u, etag)
	if err != nil {
		return err
	}
	if !changed {
		zap.L().Debug("catalog: master list not modified", zap.String("url", u))
		return nil
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return eris.Wrap(err, "catalog: read body")
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	if newETag != "" {
		if err := writeFileAtomic(etagPath, []byte(newETag)); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "catalog: create dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "catalog: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "catalog: rename %s", tmp)
	}
	return nil
}
