package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"prospectpipe/internal/apollo"
	"prospectpipe/internal/titles"
)

var (
	urlTitles     []string
	urlCategories []string
	urlOutFile    string
)

var urlCmd = &cobra.Command{
	Use:   "url [search-id-or-url]",
	Short: "Build the people-search URL from a search ID",
	Long: `Builds the Apify-ready Apollo people-search URL from a search list ID.
The argument may be the bare 24-character ID or any URL containing the
qOrganizationSearchListId parameter. The result is printed and written
to apify_url.txt for hand-off.

Examples:
  prospect url 65a1b2c3d4e5f6a7b8c9d0e1 --category c_suite
  prospect url "https://app.apollo.io/#/people?...qOrganizationSearchListId=65a1..."`,
	Args: cobra.ExactArgs(1),
	RunE: buildURL,
}

func init() {
	urlCmd.Flags().StringSliceVar(&urlTitles, "title", nil, "literal job title filter (repeatable)")
	urlCmd.Flags().StringSliceVar(&urlCategories, "category", nil, "title category to expand")
	urlCmd.Flags().StringVar(&urlOutFile, "out", "apify_url.txt", "file to write the URL to (empty disables)")
}

func buildURL(cmd *cobra.Command, args []string) error {
	arg := strings.TrimSpace(args[0])

	searchID, err := apollo.ExtractSearchID(arg)
	if err != nil {
		// Maybe it's embedded in surrounding text (a pasted log line).
		searchID, err = apollo.ExtractSearchIDFromText(arg)
	}
	if err != nil {
		return fmt.Errorf("no search list ID in %q: %w", arg, err)
	}

	titleList, err := titles.Expand(append(urlCategories, urlTitles...))
	if err != nil {
		return err
	}

	url, err := apollo.BuildSearchURL(searchID, titleList)
	if err != nil {
		return err
	}

	fmt.Println(styleSuccess.Render(url))

	if urlOutFile != "" {
		path := urlOutFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(workspace, path)
		}
		if err := os.WriteFile(path, []byte(url+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Println(styleMuted.Render("written to " + path))
	}
	return nil
}
