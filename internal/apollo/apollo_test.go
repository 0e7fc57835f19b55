package apollo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleID = "65a1b2c3d4e5f6a7b8c9d0e1"

func TestDetectState(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want PageState
	}{
		{"login page", "https://app.apollo.io/#/login", StateAuthentication},
		{"people search", "https://app.apollo.io/#/people?page=1", StatePeopleSearch},
		{"filtered search wins over people", "https://app.apollo.io/#/people?qOrganizationSearchListId=" + sampleID, StateFilteredSearch},
		{"contacts", "https://app.apollo.io/#/contacts", StateContacts},
		{"companies", "https://app.apollo.io/#/companies", StateCompanies},
		{"sequences", "https://app.apollo.io/#/sequences", StateSequences},
		{"unrelated", "https://app.apollo.io/#/settings", StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectState(tt.url))
		})
	}
}

func TestDetectSecurity(t *testing.T) {
	indicators := DetectSecurity("<html>Just a moment... Checking your browser</html>")
	assert.Contains(t, indicators, IndicatorCloudflare)

	indicators = DetectSecurity("Too many requests. Please slow down.")
	assert.Contains(t, indicators, IndicatorRateLimit)

	indicators = DetectSecurity("Session expired. Please sign in.")
	assert.Contains(t, indicators, IndicatorAuthWall)

	assert.Empty(t, DetectSecurity("<html>People search results</html>"))
}

func TestIsAuthenticated(t *testing.T) {
	assert.True(t, IsAuthenticated("https://app.apollo.io/#/people"))
	assert.False(t, IsAuthenticated("https://app.apollo.io/#/login"))
	assert.False(t, IsAuthenticated("https://example.com/"))
}

func TestExtractSearchID_Fragment(t *testing.T) {
	url := "https://app.apollo.io/#/people?page=1&sortAscending=false&qOrganizationSearchListId=" + sampleID
	id, err := ExtractSearchID(url)
	require.NoError(t, err)
	assert.Equal(t, sampleID, id)
}

func TestExtractSearchID_QueryString(t *testing.T) {
	url := "https://app.apollo.io/people?qOrganizationSearchListId=" + sampleID
	id, err := ExtractSearchID(url)
	require.NoError(t, err)
	assert.Equal(t, sampleID, id)
}

func TestExtractSearchID_Missing(t *testing.T) {
	_, err := ExtractSearchID("https://app.apollo.io/#/people?page=1")
	require.Error(t, err)
}

func TestExtractSearchID_RejectsMalformedID(t *testing.T) {
	// Too short to be a search list ID
	_, err := ExtractSearchID("https://app.apollo.io/#/people?qOrganizationSearchListId=abc123")
	require.Error(t, err)
}

func TestExtractSearchIDFromText(t *testing.T) {
	text := "The final URL contained the ID " + sampleID + " after applying filters."
	id, err := ExtractSearchIDFromText(text)
	require.NoError(t, err)
	assert.Equal(t, sampleID, id)

	_, err = ExtractSearchIDFromText("no id here")
	require.Error(t, err)
}

func TestExtractSearchIDFromHTML(t *testing.T) {
	page := `<html><body>
		<a href="/#/settings">Settings</a>
		<a href="/#/people?page=1&qOrganizationSearchListId=` + sampleID + `">Saved search</a>
	</body></html>`

	id, err := ExtractSearchIDFromHTML(page)
	require.NoError(t, err)
	assert.Equal(t, sampleID, id)

	_, err = ExtractSearchIDFromHTML("<html><body><a href='/#/people'>x</a></body></html>")
	require.Error(t, err)
}

func TestBuildSearchURL(t *testing.T) {
	u, err := BuildSearchURL(sampleID, []string{"CEO", "VP of Sales"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(u, "https://app.apollo.io/#/people?page=1&sortAscending=false&sortByField=%5Bnone%5D&qOrganizationSearchListId="+sampleID))
	assert.Contains(t, u, "personTitles[]=CEO")
	assert.Contains(t, u, "personTitles[]=VP%20of%20Sales")
	assert.NotContains(t, u, "+", "spaces in the fragment must be %20, never +")
}

func TestBuildSearchURL_NoTitles(t *testing.T) {
	u, err := BuildSearchURL(sampleID, nil)
	require.NoError(t, err)
	assert.NotContains(t, u, "personTitles")
}

func TestBuildSearchURL_InvalidID(t *testing.T) {
	_, err := BuildSearchURL("not-a-hex-id", nil)
	require.Error(t, err)

	_, err = BuildSearchURL("abcdef", nil)
	require.Error(t, err)
}

func TestSearchURLRoundTrip(t *testing.T) {
	u, err := BuildSearchURL(sampleID, []string{"Founder"})
	require.NoError(t, err)

	id, err := ExtractSearchID(u)
	require.NoError(t, err)
	assert.Equal(t, sampleID, id)
	assert.Equal(t, StateFilteredSearch, DetectState(u))
}
