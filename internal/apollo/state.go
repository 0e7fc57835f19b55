// Package apollo encodes Apollo.io-specific semantics: page state
// detection, search-list-ID extraction, and people-search URL building.
package apollo

import (
	"strings"
)

// PageState classifies where in the Apollo UI a URL points.
type PageState string

const (
	StateAuthentication PageState = "authentication_page"
	StatePeopleSearch   PageState = "people_search"
	StateFilteredSearch PageState = "filtered_search"
	StateContacts       PageState = "contacts"
	StateCompanies      PageState = "companies"
	StateSequences      PageState = "sequences"
	StateUnknown        PageState = "unknown"
)

// SecurityIndicator flags a hostile page condition.
type SecurityIndicator string

const (
	IndicatorCloudflare SecurityIndicator = "cloudflare_challenge"
	IndicatorRateLimit  SecurityIndicator = "rate_limited"
	IndicatorAuthWall   SecurityIndicator = "auth_wall"
)

// DetectState maps an Apollo URL to a page state. The filtered-search
// state wins over the plain people-search state because the search list
// ID only appears once filters have been applied.
func DetectState(url string) PageState {
	if strings.Contains(url, "qOrganizationSearchListId") {
		return StateFilteredSearch
	}

	switch {
	case strings.Contains(url, "/login"):
		return StateAuthentication
	case strings.Contains(url, "/people"):
		return StatePeopleSearch
	case strings.Contains(url, "/contacts"):
		return StateContacts
	case strings.Contains(url, "/companies"):
		return StateCompanies
	case strings.Contains(url, "/sequences"):
		return StateSequences
	}
	return StateUnknown
}

// cloudflareMarkers are fragments that appear in Cloudflare challenge pages.
var cloudflareMarkers = []string{
	"checking your browser",
	"cloudflare",
	"cf-challenge",
	"just a moment",
	"verify you are human",
}

// rateLimitMarkers are fragments that appear when Apollo throttles a session.
var rateLimitMarkers = []string{
	"rate limit",
	"too many requests",
	"slow down",
	"quota exceeded",
}

// authWallMarkers are fragments that appear when the session is logged out.
var authWallMarkers = []string{
	"sign in to continue",
	"log in to apollo",
	"session expired",
	"please sign in",
}

// DetectSecurity scans page content for hostile conditions. Returns every
// indicator found; an empty slice means the page looks normal.
func DetectSecurity(pageContent string) []SecurityIndicator {
	content := strings.ToLower(pageContent)
	var found []SecurityIndicator

	for _, m := range cloudflareMarkers {
		if strings.Contains(content, m) {
			found = append(found, IndicatorCloudflare)
			break
		}
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(content, m) {
			found = append(found, IndicatorRateLimit)
			break
		}
	}
	for _, m := range authWallMarkers {
		if strings.Contains(content, m) {
			found = append(found, IndicatorAuthWall)
			break
		}
	}
	return found
}

// IsAuthenticated reports whether a URL looks like a logged-in Apollo page.
func IsAuthenticated(url string) bool {
	state := DetectState(url)
	return state != StateAuthentication && state != StateUnknown
}
