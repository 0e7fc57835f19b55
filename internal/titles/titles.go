// Package titles holds the job-title catalog used for Apollo people
// filters, grouped by seniority category.
package titles

import (
	"fmt"
	"sort"
	"strings"
)

// Categories maps a category key to its job titles.
var Categories = map[string][]string{
	"c_suite": {
		"CEO", "CFO", "CTO", "COO", "CMO", "CRO", "CIO",
		"Chief Executive Officer", "Chief Financial Officer",
		"Chief Technology Officer", "Chief Operating Officer",
		"Chief Marketing Officer", "Chief Revenue Officer",
	},
	"vp_level": {
		"VP of Sales", "VP of Marketing", "VP of Engineering",
		"VP of Operations", "VP of Finance", "VP of Product",
		"Vice President of Sales", "Vice President of Marketing",
	},
	"director_level": {
		"Director of Sales", "Director of Marketing",
		"Director of Engineering", "Director of Operations",
		"Director of Business Development", "Director of Product",
	},
	"head_level": {
		"Head of Sales", "Head of Marketing", "Head of Growth",
		"Head of Engineering", "Head of Operations", "Head of Product",
	},
	"founders": {
		"Founder", "Co-Founder", "Owner", "Managing Partner", "President",
	},
}

// CategoryNames returns the sorted category keys.
func CategoryNames() []string {
	names := make([]string, 0, len(Categories))
	for name := range Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForCategory returns the titles of one category.
func ForCategory(name string) ([]string, error) {
	titles, ok := Categories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown title category %q (valid: %s)", name, strings.Join(CategoryNames(), ", "))
	}
	out := make([]string, len(titles))
	copy(out, titles)
	return out, nil
}

// Expand resolves a mix of category names and literal titles into a
// deduplicated title list, preserving input order.
func Expand(inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	add := func(title string) {
		key := strings.ToLower(title)
		if !seen[key] {
			seen[key] = true
			out = append(out, title)
		}
	}

	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if titles, err := ForCategory(in); err == nil {
			for _, t := range titles {
				add(t)
			}
			continue
		}
		add(in)
	}

	return out, nil
}
