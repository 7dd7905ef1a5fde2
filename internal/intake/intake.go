// Package intake downloads the source documents of a catalog entry into the
// session's PDF directory.
package intake

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/fetcher"
	"github.com/sells-group/legislation-cli/internal/model"
)

// FetchResult is the outcome of fetching one entry.
type FetchResult struct {
	// Manifest lists the local files, amendments in discovery order.
	Manifest model.Files
	// RawHash is the fingerprint of the catalog record the files belong to.
	RawHash string
	// Downloaded counts files written by this call.
	Downloaded int
}

// HTTPFetcher downloads entry documents over HTTP. Files already on disk
// are not downloaded again.
type HTTPFetcher struct {
	fetcher fetcher.Fetcher
	session model.Session
	base    *url.URL
}

// New creates an HTTPFetcher. Relative document links are resolved against
// baseURL.
func New(f fetcher.Fetcher, session model.Session, baseURL string) (*HTTPFetcher, error) {
	h := &HTTPFetcher{fetcher: f, session: session}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: parse base url %q", baseURL)
		}
		h.base = u
	}
	return h, nil
}

// Fetch downloads the entry's bill text, amendments and fiscal note.
func (h *HTTPFetcher) Fetch(ctx context.Context, entry catalog.Entry) (*FetchResult, error) {
	res := &FetchResult{RawHash: entry.Fingerprint()}
	docs := entry.Documents
	if docs == nil {
		zap.L().Debug("intake: entry has no document links", zap.String("document", entry.BillNumber))
		return res, nil
	}

	id := entry.BillNumber
	if docs.Bill != "" {
		path, err := h.get(ctx, docs.Bill, id+".pdf", &res.Downloaded)
		if err != nil {
			return nil, err
		}
		res.Manifest.Primary = path
	}
	for _, amd := range docs.Amendments {
		path, err := h.get(ctx, amd.URL, id+"_amd"+safeName(amd.ID)+".pdf", &res.Downloaded)
		if err != nil {
			return nil, err
		}
		res.Manifest.Amendments = append(res.Manifest.Amendments, path)
	}
	if docs.FiscalNote != "" {
		path, err := h.get(ctx, docs.FiscalNote, id+"_fn.pdf", &res.Downloaded)
		if err != nil {
			return nil, err
		}
		res.Manifest.FiscalNote = path
	}
	return res, nil
}

// get downloads link to name in the PDF directory unless it already exists.
func (h *HTTPFetcher) get(ctx context.Context, link, name string, downloaded *int) (string, error) {
	path := filepath.Join(h.session.PDFDir(), name)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	u, err := h.resolve(link)
	if err != nil {
		return "", err
	}
	n, err := h.fetcher.DownloadToFile(ctx, u, path)
	if err != nil {
		return "", eris.Wrapf(err, "intake: download %s", u)
	}
	*downloaded++
	zap.L().Info("intake: downloaded",
		zap.String("url", u),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, nil
}

func (h *HTTPFetcher) resolve(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", eris.Wrapf(err, "intake: parse link %q", link)
	}
	if !u.IsAbs() {
		if h.base == nil {
			return "", eris.Errorf("intake: relative link %q without base url", link)
		}
		u = h.base.ResolveReference(u)
	}
	return u.String(), nil
}

// safeName keeps letters, digits, '-' and '_' so an amendment id can be
// used in a file name.
func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
