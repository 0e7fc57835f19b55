// Package export normalizes scraped Apify items into contacts and writes
// the CSV, JSON, and metadata artifacts for a run.
package export

import (
	"fmt"
	"strings"
)

// Contact is one normalized prospect record.
type Contact struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	SanitizedPhone   string `json:"sanitized_phone,omitempty"`
	Title            string `json:"title,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	LinkedInURL      string `json:"linkedin_url,omitempty"`
	EmploymentHist   string `json:"employment_history,omitempty"`
}

// FullName returns the display name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// HasEmail reports whether the record carries a usable email address.
func (c Contact) HasEmail() bool {
	e := strings.ToLower(strings.TrimSpace(c.Email))
	return e != "" && e != "email_not_unlocked@domain.com" && strings.Contains(e, "@")
}

// FromItems converts raw Apify dataset items into contacts. Unknown keys
// are ignored; the actor's schema has drifted before and will again.
func FromItems(items []map[string]interface{}) []Contact {
	contacts := make([]Contact, 0, len(items))
	for _, item := range items {
		contacts = append(contacts, Contact{
			FirstName:        str(item, "first_name", "firstName"),
			LastName:         str(item, "last_name", "lastName"),
			Email:            str(item, "email"),
			SanitizedPhone:   str(item, "sanitized_phone", "sanitizedPhone", "phone"),
			Title:            str(item, "title"),
			OrganizationName: str(item, "organization_name", "organizationName", "company"),
			LinkedInURL:      str(item, "linkedin_url", "linkedinUrl"),
			EmploymentHist:   employmentSummary(item),
		})
	}
	return contacts
}

// str returns the first non-empty string value among the given keys.
func str(item map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// employmentSummary flattens the employment_history array into a
// "Title at Org; Title at Org" string.
func employmentSummary(item map[string]interface{}) string {
	raw, ok := item["employment_history"]
	if !ok {
		raw, ok = item["employmentHistory"]
	}
	if !ok {
		return ""
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return ""
	}

	var parts []string
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		title := str(m, "title")
		org := str(m, "organization_name", "organizationName")
		switch {
		case title != "" && org != "":
			parts = append(parts, fmt.Sprintf("%s at %s", title, org))
		case org != "":
			parts = append(parts, org)
		case title != "":
			parts = append(parts, title)
		}
	}
	return strings.Join(parts, "; ")
}
