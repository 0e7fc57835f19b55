package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospectpipe/internal/config"
	"prospectpipe/internal/pipeline"
	"prospectpipe/internal/store"
)

var (
	runDomainsCSV string
	runTitles     []string
	runCategories []string
	runRecords    int
	runHeadless   bool
	runDryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full extraction pipeline",
	Long: `Runs the pipeline end to end: load the company-domain CSV, drive the
Apollo people search with the LLM agent, capture the filtered search URL,
scrape contacts through the Apify actor, and export CSV/JSON artifacts.

Examples:
  prospect run --domains companies.csv --category c_suite
  prospect run --domains companies.csv --title "VP of Sales" --records 500
  prospect run --domains companies.csv --category founders --dry-run`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runDomainsCSV, "domains", "", "CSV file of company domains (required)")
	runCmd.Flags().StringSliceVar(&runTitles, "title", nil, "literal job title filter (repeatable)")
	runCmd.Flags().StringSliceVar(&runCategories, "category", nil, "title category: c_suite, vp_level, director_level, head_level, founders")
	runCmd.Flags().IntVar(&runRecords, "records", 0, "records to scrape (default from config)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run the browser headless")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "stop after building the search URL")
	_ = runCmd.MarkFlagRequired("domains")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireLLM(); err != nil {
		return err
	}
	if !runDryRun {
		if err := cfg.RequireApify(); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}

	history, err := openHistory(cfg)
	if err != nil {
		logger.Warn("run history disabled", zap.Error(err))
	}
	if history != nil {
		defer history.Close()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	p := pipeline.New(cfg, workspace, history)
	result, err := p.Run(ctx, pipeline.Inputs{
		DomainsCSV: runDomainsCSV,
		Titles:     append(runCategories, runTitles...),
		Records:    runRecords,
		DryRun:     runDryRun,
	})
	if result != nil && result.Domains != nil && len(result.Domains.Invalid) > 0 {
		fmt.Fprintln(os.Stderr, styleWarn.Render(fmt.Sprintf(
			"skipped %d invalid domains: %s",
			len(result.Domains.Invalid), strings.Join(result.Domains.Invalid, ", "))))
	}
	if err != nil {
		return err
	}

	fmt.Println(styleTitle.Render("Pipeline complete"))
	fmt.Print(result.Summary())
	if runDryRun {
		fmt.Println(styleMuted.Render("dry run: no contacts scraped"))
		fmt.Println(styleSuccess.Render(result.SearchURL))
	}
	return nil
}

// openHistory opens the run ledger; failures disable it rather than
// block the run.
func openHistory(cfg *config.Config) (*store.History, error) {
	path := cfg.Store.DatabasePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	return store.Open(path)
}
