package domains

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/pipeerr"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "domains.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIsValid(t *testing.T) {
	valid := []string{"example.com", "sub.example.co.uk", "a1-b2.io", "x.ai"}
	for _, d := range valid {
		assert.True(t, IsValid(d), d)
	}

	invalid := []string{"", "example", "-bad.com", "bad-.com", "exa mple.com", "example.c", ".com"}
	for _, d := range invalid {
		assert.False(t, IsValid(d), d)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "example.com", Normalize("https://www.example.com/about?x=1"))
	assert.Equal(t, "example.com", Normalize("  HTTP://EXAMPLE.COM  "))
	assert.Equal(t, "sub.example.com", Normalize("sub.example.com"))
}

func TestLoadCSV_HeaderAndDedupe(t *testing.T) {
	path := writeCSV(t, "domain\nexample.com\nhttps://www.example.com/\nacme.io\nnot a domain\n")

	result, err := LoadCSV(path)
	require.NoError(t, err)

	want := []string{"example.com", "acme.io"}
	if diff := cmp.Diff(want, result.Valid); diff != "" {
		t.Errorf("valid domains mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"not a domain"}, result.Invalid)
	assert.Equal(t, 4, result.Total)
}

func TestLoadCSV_NoHeader(t *testing.T) {
	path := writeCSV(t, "example.com\nacme.io\n")

	result, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, result.Valid, 2)
}

func TestLoadCSV_AllInvalid(t *testing.T) {
	path := writeCSV(t, "company\nnope\nalso nope\n")

	_, err := LoadCSV(path)
	require.Error(t, err)

	pe, ok := pipeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, pipeerr.CodeDomainFilter, pe.Code)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestPasteBlock(t *testing.T) {
	r := &FilterResult{Valid: []string{"a.com", "b.io"}}
	assert.Equal(t, "a.com\nb.io", r.PasteBlock())
}
