// Package domains loads and validates the company-domain list that gets
// pasted into Apollo's company filter.
package domains

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"prospectpipe/internal/pipeerr"
)

// domainPattern validates a bare DNS name: labels of up to 63 chars that
// neither start nor end with a hyphen, and a TLD of at least two letters.
var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// FilterResult reports the outcome of loading a domain list.
type FilterResult struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
	Total   int      `json:"total"`
}

// IsValid reports whether s is a plausible company domain.
func IsValid(s string) bool {
	return domainPattern.MatchString(s)
}

// Normalize strips scheme, path, and leading www from a raw cell value.
func Normalize(raw string) string {
	d := strings.TrimSpace(strings.ToLower(raw))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	if idx := strings.IndexAny(d, "/?#"); idx >= 0 {
		d = d[:idx]
	}
	d = strings.TrimPrefix(d, "www.")
	return d
}

// LoadCSV reads domains from the first column of a CSV file. A header row
// is detected by checking whether the first cell validates as a domain.
// Duplicates are dropped, order is preserved.
func LoadCSV(path string) (*FilterResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipeerr.NewDomainFilter("cannot open domain file", err).WithContext("path", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are fine, only column 0 matters
	records, err := r.ReadAll()
	if err != nil {
		return nil, pipeerr.NewDomainFilter("cannot parse domain CSV", err).WithContext("path", path)
	}
	if len(records) == 0 {
		return nil, pipeerr.NewDomainFilter("domain file is empty", nil).WithContext("path", path)
	}

	result := &FilterResult{}
	seen := make(map[string]bool)

	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		raw := strings.TrimSpace(record[0])
		if raw == "" {
			continue
		}

		d := Normalize(raw)

		// First row that doesn't validate is treated as a header
		if i == 0 && !IsValid(d) {
			continue
		}

		result.Total++
		if !IsValid(d) {
			result.Invalid = append(result.Invalid, raw)
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		result.Valid = append(result.Valid, d)
	}

	if len(result.Valid) == 0 {
		return nil, pipeerr.NewDomainFilter("no valid domains in file", nil).
			WithContext("path", path).
			WithContext("invalid_count", len(result.Invalid))
	}

	return result, nil
}

// PasteBlock renders the valid domains as the newline-separated block the
// agent pastes into Apollo's company include filter.
func (r *FilterResult) PasteBlock() string {
	return strings.Join(r.Valid, "\n")
}

// Summary is a one-line human-readable description of the load result.
func (r *FilterResult) Summary() string {
	return fmt.Sprintf("%d valid, %d invalid of %d domains", len(r.Valid), len(r.Invalid), r.Total)
}
