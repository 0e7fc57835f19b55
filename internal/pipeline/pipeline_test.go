package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/agent"
	"prospectpipe/internal/config"
	"prospectpipe/internal/pipeerr"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return New(config.DefaultConfig(), t.TempDir(), nil)
}

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "domains.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestPrepareInputs(t *testing.T) {
	p := newTestPipeline(t)
	csv := writeCSV(t, "domain\nacme.com\nnot a domain\nexample.org\n")

	filter, titleList, err := p.prepareInputs(Inputs{
		DomainsCSV: csv,
		Titles:     []string{"founders", "VP of Sales"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme.com", "example.org"}, filter.Valid)
	assert.Contains(t, titleList, "Founder")
	assert.Contains(t, titleList, "VP of Sales")
}

func TestPrepareInputs_NoCSV(t *testing.T) {
	p := newTestPipeline(t)
	_, _, err := p.prepareInputs(Inputs{})
	require.Error(t, err)

	pe, ok := pipeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, pipeerr.CodeDomainFilter, pe.Code)
}

func TestPrepareInputs_NoValidDomains(t *testing.T) {
	p := newTestPipeline(t)
	csv := writeCSV(t, "domain\nnot a domain\n???\n")

	_, _, err := p.prepareInputs(Inputs{DomainsCSV: csv})
	require.Error(t, err)
}

func TestPrepareInputs_RecordsOutOfRange(t *testing.T) {
	p := newTestPipeline(t)
	csv := writeCSV(t, "domain\nacme.com\n")

	for _, records := range []int{-1, config.MaxTotalRecords + 1} {
		_, _, err := p.prepareInputs(Inputs{DomainsCSV: csv, Records: records})
		require.Error(t, err, "records=%d", records)

		pe, ok := pipeerr.As(err)
		require.True(t, ok)
		assert.Equal(t, pipeerr.CodeConfig, pe.Code)
	}

	// Zero means "use the configured default" and is fine
	_, _, err := p.prepareInputs(Inputs{DomainsCSV: csv})
	require.NoError(t, err)
}

func TestExtractSearchID_URLPreferred(t *testing.T) {
	id := "65a1b2c3d4e5f6a7b8c9d0e1"
	other := "ffffffffffffffffffffffff"

	got, err := extractSearchID(&agent.Result{
		Data: "https://app.apollo.io/#/people?qOrganizationSearchListId=" + id,
	}, "https://app.apollo.io/#/people?qOrganizationSearchListId="+other, "")
	require.NoError(t, err)
	assert.Equal(t, id, got, "reported URL wins over the live one")
}

func TestExtractSearchID_ProseFallback(t *testing.T) {
	id := "65a1b2c3d4e5f6a7b8c9d0e1"

	got, err := extractSearchID(&agent.Result{
		Data: "The search list id is " + id + " after applying the filters.",
	}, "https://app.apollo.io/#/people", "")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestExtractSearchID_AnchorFallback(t *testing.T) {
	id := "65a1b2c3d4e5f6a7b8c9d0e1"
	page := `<html><body><a href="/#/people?qOrganizationSearchListId=` + id + `">saved search</a></body></html>`

	got, err := extractSearchID(&agent.Result{Data: "done"}, "https://app.apollo.io/#/people", page)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestExtractSearchID_Missing(t *testing.T) {
	_, err := extractSearchID(&agent.Result{Data: "done"}, "https://app.apollo.io/#/people", "<html></html>")
	require.Error(t, err)

	pe, ok := pipeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, pipeerr.CodeSearchIDExtraction, pe.Code)
}

func TestBrowserConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Browser.Headless = true
	ws := t.TempDir()
	p := New(cfg, ws, nil)

	bc := p.BrowserConfig()
	assert.True(t, bc.Headless)
	assert.Equal(t, filepath.Join(ws, "apollo_profile"), bc.ProfileDir)
	assert.Equal(t, 1920, bc.WindowWidth)
	assert.NotZero(t, bc.NavTimeout)
}

func TestResolvePath(t *testing.T) {
	p := New(config.DefaultConfig(), "/work", nil)
	assert.Equal(t, "/work/output", p.resolvePath("output"))
	assert.Equal(t, "/abs/output", p.resolvePath("/abs/output"))
	assert.Empty(t, p.resolvePath(""))
}

func TestResultSummary(t *testing.T) {
	r := &Result{
		RunID:        "abc",
		DomainCount:  5,
		Titles:       []string{"CEO"},
		SearchID:     "65a1b2c3d4e5f6a7b8c9d0e1",
		ApifyRunID:   "run1",
		DatasetID:    "ds1",
		ContactCount: 42,
		Duration:     90 * time.Second,
	}
	s := r.Summary()
	assert.Contains(t, s, "abc")
	assert.Contains(t, s, "65a1b2c3d4e5f6a7b8c9d0e1")
	assert.Contains(t, s, "run1")
	assert.Contains(t, s, "1m30s")
}
