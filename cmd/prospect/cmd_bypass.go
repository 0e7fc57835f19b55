package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"prospectpipe/internal/cloudflare"
	"prospectpipe/internal/pipeline"
)

var bypassCmd = &cobra.Command{
	Use:   "bypass",
	Short: "Probe which browser configuration clears Cloudflare",
	Long: `Tries browser configurations against Apollo's front page, most covert
first, and reports which one clears the Cloudflare check. Use this when
runs keep dying on the challenge page to find a working configuration.`,
	RunE: probeBypass,
}

func probeBypass(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, workspace, nil)
	strategies := cloudflare.Strategies(p.BrowserConfig(), p.Sessions().ProfileDir())

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	fmt.Println(styleTitle.Render("Probing Cloudflare bypass strategies"))
	results, winner := cloudflare.ProbeAll(ctx, strategies)

	for _, r := range results {
		line := fmt.Sprintf("  %-20s state=%-18s %s", r.Strategy, r.State, r.Duration.Round(time.Second))
		switch {
		case r.Passed:
			fmt.Println(styleSuccess.Render(line))
		case r.Error != "":
			fmt.Println(styleError.Render(line + "  " + r.Error))
		default:
			fmt.Println(styleWarn.Render(line))
		}
	}

	if winner == nil {
		fmt.Println(styleError.Render("No strategy cleared the challenge."))
		fmt.Println(styleMuted.Render("Try again from a different network, or run `prospect session create` headful."))
		return nil
	}

	fmt.Println(styleSuccess.Render("Working strategy: " + winner.Strategy))
	if winner.Strategy == "headful" {
		fmt.Println(styleMuted.Render("Set browser.headless: false in the config to use it."))
	}
	return nil
}
