package apollo

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"prospectpipe/internal/pipeerr"
)

// searchIDPattern matches a 24-character hex search list ID.
var searchIDPattern = regexp.MustCompile(`\b([a-f0-9]{24})\b`)

// searchIDParam is the query parameter Apollo stores the ID under.
const searchIDParam = "qOrganizationSearchListId"

// ExtractSearchID pulls the search list ID out of an Apollo URL. Apollo is
// a hash-routed SPA, so the parameter lives in the URL fragment, not the
// query string.
func ExtractSearchID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", pipeerr.NewSearchIDExtraction("unparseable URL", err).WithContext("url", rawURL)
	}

	// Fragment looks like "/people?page=1&qOrganizationSearchListId=<id>"
	fragment := u.Fragment
	if idx := strings.Index(fragment, "?"); idx >= 0 {
		if vals, err := url.ParseQuery(fragment[idx+1:]); err == nil {
			if id := vals.Get(searchIDParam); id != "" && searchIDPattern.MatchString(id) {
				return id, nil
			}
		}
	}

	// Some navigations leave the parameter in the query string proper.
	if id := u.Query().Get(searchIDParam); id != "" && searchIDPattern.MatchString(id) {
		return id, nil
	}

	// Last resort: the raw URL may carry the ID without clean query syntax.
	if strings.Contains(rawURL, searchIDParam) {
		if m := searchIDPattern.FindString(rawURL[strings.Index(rawURL, searchIDParam):]); m != "" {
			return m, nil
		}
	}

	return "", pipeerr.NewSearchIDExtraction("no search list ID in URL", nil).WithContext("url", rawURL)
}

// ExtractSearchIDFromText scans free-form agent output for a 24-hex ID.
// Used as a fallback when the agent reports the ID instead of the URL.
func ExtractSearchIDFromText(text string) (string, error) {
	if m := searchIDPattern.FindString(text); m != "" {
		return m, nil
	}
	return "", pipeerr.NewSearchIDExtraction("no search list ID in text", nil)
}

// ExtractSearchIDFromHTML scans page HTML for an anchor whose href carries
// the search list ID. Fallback for when the agent never reports the final
// URL but the page links to the filtered search.
func ExtractSearchIDFromHTML(pageHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "", pipeerr.NewSearchIDExtraction("unparseable HTML", err)
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" || !strings.Contains(attr.Val, searchIDParam) {
					continue
				}
				if id, err := ExtractSearchID(attr.Val); err == nil {
					found = id
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if found == "" {
		return "", pipeerr.NewSearchIDExtraction("no search list ID in page HTML", nil)
	}
	return found, nil
}
