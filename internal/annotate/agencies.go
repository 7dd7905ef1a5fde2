package annotate

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legislation-cli/internal/model"
)

// Agency list CSV columns.
const (
	colAgencyName = "Agency Name"
	colSummary    = "Summary"
)

// LoadAgencies reads the agency list CSV. Rows without a name are skipped
// and duplicate names keep their first summary. The result is sorted by name.
func LoadAgencies(path string) ([]model.Agency, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "annotate: open agencies %s", path)
	}
	defer f.Close() //nolint:errcheck

	agencies, err := ReadAgencies(f)
	if err != nil {
		return nil, eris.Wrapf(err, "annotate: agencies %s", path)
	}
	return agencies, nil
}

// ReadAgencies parses agency CSV from r.
func ReadAgencies(r io.Reader) ([]model.Agency, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	nameCol, summaryCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case colAgencyName:
			nameCol = i
		case colSummary:
			summaryCol = i
		}
	}
	if nameCol < 0 {
		return nil, eris.Errorf("missing %q column", colAgencyName)
	}

	seen := make(map[string]struct{})
	var out []model.Agency
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}
		if nameCol >= len(rec) {
			continue
		}
		name := strings.TrimSpace(rec[nameCol])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		a := model.Agency{Name: name, Summary: "N/A"}
		if summaryCol >= 0 && summaryCol < len(rec) && strings.TrimSpace(rec[summaryCol]) != "" {
			a.Summary = strings.TrimSpace(rec[summaryCol])
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AgencyNames returns the names of agencies in order.
func AgencyNames(agencies []model.Agency) []string {
	names := make([]string, len(agencies))
	for i, a := range agencies {
		names[i] = a.Name
	}
	return names
}
