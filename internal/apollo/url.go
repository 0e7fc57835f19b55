package apollo

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURL is the Apollo web app root.
const BaseURL = "https://app.apollo.io"

// PeopleSearchURL is the entry point for the people search UI.
const PeopleSearchURL = BaseURL + "/#/people"

// BuildSearchURL builds the people-search URL the scraping actor consumes.
// The layout mirrors what Apollo itself produces after filters are applied:
// hash-routed path, fixed sort parameters, the search list ID, then one
// personTitles[] parameter per title.
func BuildSearchURL(searchID string, titles []string) (string, error) {
	if !searchIDPattern.MatchString(searchID) || len(searchID) != 24 {
		return "", fmt.Errorf("invalid search list ID: %q", searchID)
	}

	var sb strings.Builder
	sb.WriteString(BaseURL)
	sb.WriteString("/#/people?page=1&sortAscending=false&sortByField=%5Bnone%5D&")
	sb.WriteString(searchIDParam)
	sb.WriteString("=")
	sb.WriteString(searchID)

	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		sb.WriteString("&personTitles[]=")
		// The parameter lives in the URL fragment, where "+" is not
		// reliably decoded as a space; spaces must be %20.
		sb.WriteString(strings.ReplaceAll(url.QueryEscape(title), "+", "%20"))
	}

	return sb.String(), nil
}
