package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/config"
	"prospectpipe/internal/llm"
	"prospectpipe/internal/pipeline"
	"prospectpipe/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the Apollo login session",
	Long: `Manages the stored Apollo session: create one by logging in manually,
validate it, inspect its age, clean up stale files, or import a
storage-state export from external tooling.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a browser for manual login and capture the session",
	Long: `Opens a visible browser on the Apollo login page. Log in by hand;
once the people search loads, the session is captured and saved as
verified. Close nothing until the command reports success.`,
	RunE: sessionCreate,
}

var sessionValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check whether the stored session is still logged in",
	RunE:  sessionValidate,
}

var sessionInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show session files, ages, and staleness",
	RunE:  sessionInfo,
}

var sessionCleanupAll bool

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale and superseded session files",
	RunE:  sessionCleanup,
}

var sessionAttachURL string

var sessionExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Import a session from an external export or a running browser",
	Long: `Imports an Apollo session captured outside this tool.

By default, watches the session directory until a storage_state.json
exported by external tooling (a Playwright script, typically) lands,
then promotes it to the verified session. Instructions for producing
the export are printed while waiting.

With --attach, connects to a running Chrome/Edge started with
--remote-debugging-port and captures the session straight from it:

  prospect session extract --attach http://127.0.0.1:9222`,
	RunE: sessionExtract,
}

func init() {
	sessionCleanupCmd.Flags().BoolVar(&sessionCleanupAll, "all", false, "remove every session file, not just stale ones")
	sessionExtractCmd.Flags().StringVar(&sessionAttachURL, "attach", "", "debugger URL of a running browser to capture from")
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionValidateCmd)
	sessionCmd.AddCommand(sessionInfoCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	sessionCmd.AddCommand(sessionExtractCmd)
}

func sessionCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, workspace, nil)
	bc := p.BrowserConfig()
	bc.Headless = false // manual login needs a window

	mgr := browser.NewManager(bc)
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Shutdown()

	fmt.Println(styleTitle.Render("Log in to Apollo in the browser window."))
	fmt.Println(styleMuted.Render("The session is captured automatically once the people search loads."))

	if err := p.Sessions().CaptureInteractive(ctx, mgr); err != nil {
		return err
	}
	fmt.Println(styleSuccess.Render("Session captured and verified."))
	return nil
}

func sessionValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireLLM(); err != nil {
		return err
	}

	client, err := llm.New(cfg.LLM, cfg.GetLLMTimeout(), cfg.Agent.Temperature)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, workspace, nil)
	mgr := browser.NewManager(p.BrowserConfig())

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Shutdown()

	if _, err := p.Sessions().Apply(ctx, mgr); err != nil {
		return err
	}

	valid, err := p.Sessions().Validate(ctx, mgr, client)
	if err != nil {
		return err
	}
	if valid {
		fmt.Println(styleSuccess.Render("Session is valid."))
		return nil
	}
	fmt.Println(styleError.Render("Session is expired or logged out."))
	fmt.Println(styleMuted.Render("Run `prospect session create` to capture a fresh one."))
	return nil
}

func sessionInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := session.NewManager(workspace, cfg)
	info := mgr.Info()

	fmt.Println(styleTitle.Render("Session: " + info.Dir))
	fmt.Printf("  source:  %s\n", info.Source)
	if info.ProfileDir != "" {
		state := "missing"
		if info.HasProfile {
			state = "present"
		}
		fmt.Printf("  profile: %s (%s)\n", info.ProfileDir, state)
	}
	for _, f := range info.Files {
		switch {
		case !f.Exists:
			fmt.Printf("  %-30s %s\n", f.Name, styleMuted.Render("absent"))
		case f.Stale:
			fmt.Printf("  %-30s %s\n", f.Name, styleWarn.Render(fmt.Sprintf("stale (%s old)", roundAge(f.Age))))
		default:
			fmt.Printf("  %-30s %s\n", f.Name, styleSuccess.Render(roundAge(f.Age)+" old"))
		}
	}
	return nil
}

func roundAge(d time.Duration) string {
	if d > 48*time.Hour {
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	return d.Round(time.Minute).String()
}

func sessionCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := session.NewManager(workspace, cfg)
	removed, err := mgr.Cleanup(sessionCleanupAll)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		fmt.Println(styleMuted.Render("Nothing to clean up."))
		return nil
	}
	for _, path := range removed {
		fmt.Println(styleSuccess.Render("removed ") + path)
	}
	return nil
}

const extractInstructions = `# Importing an external session

1. On a machine with a logged-in Apollo browser, export the session:

   ` + "```js" + `
   // Playwright
   await context.storageState({ path: "storage_state.json" });
   ` + "```" + `

2. Copy ` + "`storage_state.json`" + ` into the session directory shown below.

3. This command imports and verifies it as soon as the file lands.
`

func sessionExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr := session.NewManager(workspace, cfg)

	if sessionAttachURL != "" {
		return extractFromBrowser(cmd.Context(), cfg, mgr)
	}

	renderer, rerr := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if rerr == nil {
		if out, merr := renderer.Render(extractInstructions); merr == nil {
			fmt.Print(out)
		}
	}
	fmt.Println(styleMuted.Render("watching " + mgr.Dir() + " ..."))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	path, err := mgr.WaitForStateFile(ctx)
	if err != nil {
		return err
	}
	fmt.Println(styleSuccess.Render("Imported and verified: ") + path)
	return nil
}

// extractFromBrowser attaches to a running browser over its debugger URL
// and captures the session directly. The browser must already have an
// Apollo tab logged in.
func extractFromBrowser(ctx context.Context, cfg *config.Config, sessions *session.Manager) error {
	p := pipeline.New(cfg, workspace, nil)
	bc := p.BrowserConfig()
	bc.DebuggerURL = sessionAttachURL

	bmgr := browser.NewManager(bc)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := bmgr.Start(ctx); err != nil {
		return fmt.Errorf("attach to %s: %w", sessionAttachURL, err)
	}
	defer bmgr.Shutdown()

	if err := bmgr.Navigate(ctx, apollo.BaseURL); err != nil {
		return err
	}
	if err := sessions.Save(ctx, bmgr, true); err != nil {
		return err
	}
	fmt.Println(styleSuccess.Render("Session captured from running browser."))
	return nil
}
