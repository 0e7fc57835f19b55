package agent

import (
	"fmt"
	"strings"

	"prospectpipe/internal/apollo"
)

// BuildApolloSearchTask renders the task prompt that walks the agent
// through Apollo's people search: apply the company-domain filter, apply
// title filters, then report the URL once the search list ID appears.
func BuildApolloSearchTask(domainBlock string, titles []string) string {
	var sb strings.Builder

	sb.WriteString("Apply filters in the Apollo.io people search and report the resulting URL.\n\n")
	sb.WriteString("Follow these steps:\n")
	fmt.Fprintf(&sb, "1. Navigate to %s\n", apollo.PeopleSearchURL)
	sb.WriteString("2. Wait for the people search page to fully load.\n")
	sb.WriteString("3. Open the Company filter panel (it may be labeled \"Company\" or \"Companies\").\n")
	sb.WriteString("4. Find the option to include a list of company domains (\"Include list of companies\" or a bulk-paste field).\n")
	sb.WriteString("5. Paste the following domain list into the field, one domain per line:\n")
	sb.WriteString(domainBlock)
	sb.WriteString("\n6. Apply or confirm the company filter.\n")

	step := 7
	if len(titles) > 0 {
		sb.WriteString(fmt.Sprintf("%d. Open the Job Titles filter and add these titles one by one:\n", step))
		for _, t := range titles {
			fmt.Fprintf(&sb, "   - %s\n", t)
		}
		step++
		fmt.Fprintf(&sb, "%d. Apply the title filter.\n", step)
		step++
	}

	fmt.Fprintf(&sb, "%d. Wait for the results table to refresh.\n", step)
	step++
	fmt.Fprintf(&sb, "%d. Check the browser URL: it must now contain the parameter qOrganizationSearchListId.\n", step)
	step++
	fmt.Fprintf(&sb, "%d. If the parameter has not appeared yet, wait and check again; toggling any filter refreshes it.\n", step)
	step++
	fmt.Fprintf(&sb, "%d. Finish with action \"done\" and put the complete current URL in the data field.\n", step)

	sb.WriteString("\nImportant: do NOT log in; the session is already authenticated. ")
	sb.WriteString("If you see a login page or a Cloudflare check, finish with action \"fail\".")

	return sb.String()
}

// BuildValidationTask renders the minimal task used to validate a stored
// session: open Apollo and report where we land.
func BuildValidationTask() string {
	return fmt.Sprintf(`Check whether this browser session is logged in to Apollo.io.

1. Navigate to %s
2. Wait for the page to load completely.
3. If you see the people search interface (filters, results table), finish with action "done" and data "authenticated".
4. If you are redirected to a login page or asked for credentials, finish with action "done" and data "unauthenticated".
Do not attempt to log in.`, apollo.PeopleSearchURL)
}
