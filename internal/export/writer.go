package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prospectpipe/internal/logging"
)

// Metadata describes one completed extraction run.
type Metadata struct {
	Timestamp    time.Time `json:"timestamp"`
	SearchURL    string    `json:"search_url"`
	SearchID     string    `json:"search_id,omitempty"`
	ApifyRunID   string    `json:"apify_run_id,omitempty"`
	DatasetID    string    `json:"dataset_id,omitempty"`
	ContactCount int       `json:"contact_count"`
	WithEmail    int       `json:"with_email"`
	DurationSecs float64   `json:"duration_seconds"`
}

// csvHeader is the column layout of the contact CSV.
var csvHeader = []string{
	"first_name", "last_name", "email", "sanitized_phone",
	"title", "organization_name", "linkedin_url", "employment_history",
}

// Writer saves run artifacts under one output directory with a shared
// timestamped basename, e.g. apollo_contacts_20250114_153012.csv.
type Writer struct {
	dir    string
	prefix string
	now    func() time.Time // injectable for tests
}

// NewWriter creates a writer.
func NewWriter(dir, prefix string) *Writer {
	if prefix == "" {
		prefix = "apollo_contacts"
	}
	return &Writer{dir: dir, prefix: prefix, now: time.Now}
}

// Basename returns the timestamped basename without extension.
func (w *Writer) Basename() string {
	return fmt.Sprintf("%s_%s", w.prefix, w.now().Format("20060102_150405"))
}

// Artifacts is the set of file paths one save produces.
type Artifacts struct {
	CSVPath      string `json:"csv_path"`
	JSONPath     string `json:"json_path"`
	MetadataPath string `json:"metadata_path"`
}

// Save writes the CSV, JSON, and metadata files for a contact set.
func (w *Writer) Save(contacts []Contact, meta Metadata) (*Artifacts, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := w.Basename()
	artifacts := &Artifacts{
		CSVPath:      filepath.Join(w.dir, base+".csv"),
		JSONPath:     filepath.Join(w.dir, base+".json"),
		MetadataPath: filepath.Join(w.dir, base+"_metadata.json"),
	}

	if err := w.saveCSV(artifacts.CSVPath, contacts); err != nil {
		return nil, err
	}
	if err := writeJSON(artifacts.JSONPath, contacts); err != nil {
		return nil, err
	}

	meta.ContactCount = len(contacts)
	meta.WithEmail = countWithEmail(contacts)
	if meta.Timestamp.IsZero() {
		meta.Timestamp = w.now()
	}
	if err := writeJSON(artifacts.MetadataPath, meta); err != nil {
		return nil, err
	}

	logging.Export("saved %d contacts (%d with email) to %s", len(contacts), meta.WithEmail, artifacts.CSVPath)
	return artifacts, nil
}

func (w *Writer) saveCSV(path string, contacts []Contact) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, c := range contacts {
		record := []string{
			c.FirstName, c.LastName, c.Email, c.SanitizedPhone,
			c.Title, c.OrganizationName, c.LinkedInURL, c.EmploymentHist,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func countWithEmail(contacts []Contact) int {
	n := 0
	for _, c := range contacts {
		if c.HasEmail() {
			n++
		}
	}
	return n
}
