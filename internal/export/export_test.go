package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromItems(t *testing.T) {
	items := []map[string]interface{}{
		{
			"first_name":        "Ada",
			"last_name":         "Lovelace",
			"email":             "ada@analytical.io",
			"title":             "CTO",
			"organization_name": "Analytical Engines",
			"linkedin_url":      "https://linkedin.com/in/ada",
			"employment_history": []interface{}{
				map[string]interface{}{"title": "CTO", "organization_name": "Analytical Engines"},
				map[string]interface{}{"title": "Engineer", "organization_name": "Babbage & Co"},
			},
		},
		{
			// camelCase variant of the actor schema
			"firstName": "Grace",
			"lastName":  "Hopper",
			"email":     "",
			"company":   "Navy",
		},
	}

	contacts := FromItems(items)
	require.Len(t, contacts, 2)

	want := Contact{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Email:            "ada@analytical.io",
		Title:            "CTO",
		OrganizationName: "Analytical Engines",
		LinkedInURL:      "https://linkedin.com/in/ada",
		EmploymentHist:   "CTO at Analytical Engines; Engineer at Babbage & Co",
	}
	if diff := cmp.Diff(want, contacts[0]); diff != "" {
		t.Errorf("contact mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Grace", contacts[1].FirstName)
	assert.Equal(t, "Navy", contacts[1].OrganizationName)
}

func TestContactHasEmail(t *testing.T) {
	assert.True(t, Contact{Email: "x@y.com"}.HasEmail())
	assert.False(t, Contact{Email: ""}.HasEmail())
	assert.False(t, Contact{Email: "email_not_unlocked@domain.com"}.HasEmail())
	assert.False(t, Contact{Email: "not-an-email"}.HasEmail())
}

func TestWriterSave(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "apollo_contacts")
	w.now = func() time.Time { return time.Date(2025, 1, 14, 15, 30, 12, 0, time.UTC) }

	contacts := []Contact{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@analytical.io"},
		{FirstName: "No", LastName: "Email"},
	}
	meta := Metadata{
		SearchURL:  "https://app.apollo.io/#/people?qOrganizationSearchListId=65a1b2c3d4e5f6a7b8c9d0e1",
		SearchID:   "65a1b2c3d4e5f6a7b8c9d0e1",
		ApifyRunID: "run1",
		DatasetID:  "ds1",
	}

	artifacts, err := w.Save(contacts, meta)
	require.NoError(t, err)

	assert.Contains(t, artifacts.CSVPath, "apollo_contacts_20250114_153012.csv")

	// CSV layout
	f, err := os.Open(artifacts.CSVPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "Ada", records[1][0])

	// JSON round trip
	data, err := os.ReadFile(artifacts.JSONPath)
	require.NoError(t, err)
	var loaded []Contact
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Len(t, loaded, 2)

	// Metadata counts are computed, not trusted from the caller
	data, err = os.ReadFile(artifacts.MetadataPath)
	require.NoError(t, err)
	var loadedMeta Metadata
	require.NoError(t, json.Unmarshal(data, &loadedMeta))
	assert.Equal(t, 2, loadedMeta.ContactCount)
	assert.Equal(t, 1, loadedMeta.WithEmail)
	assert.Equal(t, "run1", loadedMeta.ApifyRunID)
}

func TestWriterSave_EmptyContacts(t *testing.T) {
	w := NewWriter(t.TempDir(), "")
	artifacts, err := w.Save(nil, Metadata{})
	require.NoError(t, err)

	f, err := os.Open(artifacts.CSVPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header only")
}
