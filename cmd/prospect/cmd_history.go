package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"prospectpipe/internal/store"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past pipeline runs",
	Long: `Lists past pipeline runs from the local ledger, newest first. With a
run ID argument, shows that run in full.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "emit JSON")
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	if len(args) == 1 {
		rec, err := h.Get(args[0])
		if err != nil {
			return err
		}
		return printRun(rec)
	}

	records, err := h.List(historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		return json.NewEncoder(os.Stdout).Encode(records)
	}
	if len(records) == 0 {
		fmt.Println(styleMuted.Render("No runs recorded yet."))
		return nil
	}

	fmt.Println(styleTitle.Render(fmt.Sprintf("%-36s  %-19s  %-9s  %8s  %8s", "ID", "STARTED", "STATUS", "DOMAINS", "CONTACTS")))
	for _, r := range records {
		line := fmt.Sprintf("%-36s  %-19s  %-9s  %8d  %8d",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.DomainCount, r.ContactCount)
		switch r.Status {
		case store.StatusCompleted:
			fmt.Println(line)
		case store.StatusFailed:
			fmt.Println(styleError.Render(line))
		default:
			fmt.Println(styleWarn.Render(line))
		}
	}
	return nil
}

func printRun(rec *store.RunRecord) error {
	if historyJSON {
		return json.NewEncoder(os.Stdout).Encode(rec)
	}

	fmt.Println(styleTitle.Render("Run " + rec.ID))
	fmt.Printf("  status:    %s\n", rec.Status)
	fmt.Printf("  started:   %s\n", rec.StartedAt.Local().Format(time.RFC1123))
	if !rec.FinishedAt.IsZero() {
		fmt.Printf("  finished:  %s\n", rec.FinishedAt.Local().Format(time.RFC1123))
	}
	fmt.Printf("  domains:   %d\n", rec.DomainCount)
	if rec.Titles != "" {
		fmt.Printf("  titles:    %s\n", rec.Titles)
	}
	if rec.SearchID != "" {
		fmt.Printf("  search id: %s\n", rec.SearchID)
	}
	if rec.SearchURL != "" {
		fmt.Printf("  url:       %s\n", rec.SearchURL)
	}
	if rec.ApifyRunID != "" {
		fmt.Printf("  apify:     %s (dataset %s)\n", rec.ApifyRunID, rec.DatasetID)
	}
	fmt.Printf("  contacts:  %d\n", rec.ContactCount)
	if rec.Error != "" {
		fmt.Println(styleError.Render("  error:     " + rec.Error))
	}
	return nil
}
