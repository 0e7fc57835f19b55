// Package pipeline orchestrates a full extraction run: filter inputs,
// session, agent-driven filtering in the Apollo UI, search-ID capture,
// Apify scraping, export, and the history ledger.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prospectpipe/internal/agent"
	"prospectpipe/internal/apify"
	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/config"
	"prospectpipe/internal/domains"
	"prospectpipe/internal/export"
	"prospectpipe/internal/llm"
	"prospectpipe/internal/logging"
	"prospectpipe/internal/monitor"
	"prospectpipe/internal/pipeerr"
	"prospectpipe/internal/session"
	"prospectpipe/internal/store"
	"prospectpipe/internal/titles"
)

// Inputs are the per-run parameters.
type Inputs struct {
	DomainsCSV string   // path to the company-domain CSV
	Titles     []string // literal titles and/or category names
	Records    int      // 0 = use configured default
	DryRun     bool     // stop after building the search URL
}

// Phases holds per-phase durations for the run summary.
type Phases struct {
	Filter  time.Duration `json:"filter"`
	Session time.Duration `json:"session"`
	Agent   time.Duration `json:"agent"`
	Scrape  time.Duration `json:"scrape"`
	Export  time.Duration `json:"export"`
}

// Result summarizes one pipeline run.
type Result struct {
	RunID        string                `json:"run_id"`
	Domains      *domains.FilterResult `json:"-"`
	DomainCount  int                   `json:"domain_count"`
	Titles       []string              `json:"titles"`
	SearchID     string                `json:"search_id"`
	SearchURL    string                `json:"search_url"`
	ApifyRunID   string                `json:"apify_run_id,omitempty"`
	DatasetID    string                `json:"dataset_id,omitempty"`
	ContactCount int                   `json:"contact_count"`
	Artifacts    *export.Artifacts     `json:"artifacts,omitempty"`
	ReportPath   string                `json:"report_path,omitempty"`
	Phases       Phases                `json:"phases"`
	Duration     time.Duration         `json:"duration"`
}

// Pipeline wires the run phases together.
type Pipeline struct {
	cfg       *config.Config
	workspace string
	history   *store.History // nil disables the ledger
	sessions  *session.Manager
	handler   *pipeerr.Handler
}

// New creates a pipeline. The history store may be nil.
func New(cfg *config.Config, workspace string, history *store.History) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		workspace: workspace,
		history:   history,
		sessions:  session.NewManager(workspace, cfg),
		handler:   pipeerr.NewHandler(0),
	}
}

// BrowserConfig maps the pipeline config onto a browser launch config,
// pointing the profile at the session manager's persistent directory.
func (p *Pipeline) BrowserConfig() browser.Config {
	return browser.Config{
		Headless:     p.cfg.Browser.Headless,
		ProfileDir:   p.sessions.ProfileDir(),
		WindowWidth:  p.cfg.Browser.WindowWidth,
		WindowHeight: p.cfg.Browser.WindowHeight,
		UserAgent:    p.cfg.Browser.UserAgent,
		NavTimeout:   p.cfg.GetNavTimeout(),
		SlowMotion:   p.cfg.GetSlowMotion(),
		DebuggerURL:  p.cfg.Browser.DebuggerURL,
	}
}

// Sessions exposes the session manager for the CLI surface.
func (p *Pipeline) Sessions() *session.Manager { return p.sessions }

// Run executes the pipeline end to end.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.New().String()}

	// Phase 1: inputs. Fail before any browser or API work.
	phaseStart := time.Now()
	filter, titleList, err := p.prepareInputs(in)
	if err != nil {
		return result, err
	}
	result.Domains = filter
	result.DomainCount = len(filter.Valid)
	result.Titles = titleList
	result.Phases.Filter = time.Since(phaseStart)

	historyID := p.beginHistory(result)
	defer func() {
		if historyID != "" && err != nil {
			_ = p.history.Fail(historyID, err)
		}
	}()

	logging.Pipeline("run %s: %d domains, %d titles", result.RunID, result.DomainCount, len(titleList))

	// Phase 2: browser and session.
	phaseStart = time.Now()
	client, err := llm.New(p.cfg.LLM, p.cfg.GetLLMTimeout(), p.cfg.Agent.Temperature)
	if err != nil {
		return result, err
	}

	mgr, err := p.openValidatedBrowser(ctx, client)
	if err != nil {
		return result, err
	}
	defer mgr.Shutdown()
	result.Phases.Session = time.Since(phaseStart)

	// Phase 3: agent applies the filters and surfaces the search ID.
	phaseStart = time.Now()
	searchID, mon, err := p.runAgent(ctx, client, mgr, filter, titleList)
	result.Phases.Agent = time.Since(phaseStart)
	if mon != nil {
		if path, werr := mon.WriteReport(); werr == nil {
			result.ReportPath = path
		}
	}
	if err != nil {
		return result, err
	}
	result.SearchID = searchID

	result.SearchURL, err = apollo.BuildSearchURL(searchID, titleList)
	if err != nil {
		return result, err
	}
	p.updateHistory(historyID, result)
	logging.Pipeline("search url ready: %s", result.SearchURL)

	if in.DryRun {
		result.Duration = time.Since(start)
		if historyID != "" {
			_ = p.history.Complete(historyID, 0)
		}
		return result, nil
	}

	// The browser is done; release it before the long scrape wait.
	_ = p.sessions.Save(ctx, mgr, true)
	mgr.Shutdown()

	// Phase 4: Apify scrape.
	phaseStart = time.Now()
	items, err := p.scrape(ctx, result, in.Records)
	result.Phases.Scrape = time.Since(phaseStart)
	if err != nil {
		return result, err
	}
	p.updateHistory(historyID, result)

	// Phase 5: export.
	phaseStart = time.Now()
	contacts := export.FromItems(items)
	writer := export.NewWriter(p.outputDir(), p.cfg.Output.FilePrefix)
	result.Artifacts, err = writer.Save(contacts, export.Metadata{
		SearchURL:    result.SearchURL,
		SearchID:     result.SearchID,
		ApifyRunID:   result.ApifyRunID,
		DatasetID:    result.DatasetID,
		DurationSecs: time.Since(start).Seconds(),
	})
	result.Phases.Export = time.Since(phaseStart)
	if err != nil {
		return result, err
	}
	result.ContactCount = len(contacts)

	result.Duration = time.Since(start)
	if historyID != "" {
		_ = p.history.Complete(historyID, result.ContactCount)
	}
	logging.Pipeline("run %s complete: %d contacts in %s", result.RunID, result.ContactCount, result.Duration.Round(time.Second))
	return result, nil
}

// prepareInputs loads and validates the domain CSV and expands title
// categories.
func (p *Pipeline) prepareInputs(in Inputs) (*domains.FilterResult, []string, error) {
	if in.DomainsCSV == "" {
		return nil, nil, pipeerr.NewDomainFilter("no domain CSV provided", nil)
	}
	if in.Records < 0 || in.Records > config.MaxTotalRecords {
		return nil, nil, pipeerr.NewConfig(fmt.Sprintf("records out of range [1, %d]: %d", config.MaxTotalRecords, in.Records), nil)
	}
	filter, err := domains.LoadCSV(in.DomainsCSV)
	if err != nil {
		return nil, nil, err
	}
	if len(filter.Valid) == 0 {
		return nil, nil, pipeerr.NewDomainFilter(fmt.Sprintf("no valid domains in %s", in.DomainsCSV), nil)
	}

	titleList, err := titles.Expand(in.Titles)
	if err != nil {
		return nil, nil, err
	}
	return filter, titleList, nil
}

// openValidatedBrowser starts the browser, applies the stored session,
// and validates it, falling back to session recovery when validation
// fails.
func (p *Pipeline) openValidatedBrowser(ctx context.Context, client llm.Client) (*browser.Manager, error) {
	mgr := browser.NewManager(p.BrowserConfig())
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}

	if _, err := p.sessions.Apply(ctx, mgr); err != nil {
		mgr.Shutdown()
		return nil, err
	}

	valid, err := p.sessions.Validate(ctx, mgr, client)
	if err != nil {
		mgr.Shutdown()
		return nil, err
	}
	if valid {
		return mgr, nil
	}

	logging.Pipeline("session invalid, attempting recovery")
	mgr.Shutdown()
	return p.sessions.Recover(ctx, client, p.BrowserConfig())
}

// runAgent drives the filter flow and pulls the search ID out of the
// agent's result, retrying recoverable failures per the error policy.
func (p *Pipeline) runAgent(ctx context.Context, client llm.Client, mgr *browser.Manager, filter *domains.FilterResult, titleList []string) (string, *monitor.Monitor, error) {
	var mon *monitor.Monitor
	if p.cfg.Monitor.Enabled {
		mon = monitor.New(monitor.Config{
			Screenshots:   p.cfg.Monitor.Screenshots,
			ScreenshotDir: p.resolvePath(p.cfg.Monitor.ScreenshotDir),
			ReportDir:     p.resolvePath(p.cfg.Monitor.ReportDir),
		}, mgr, uuid.New().String()[:8])
	}

	task := agent.BuildApolloSearchTask(filter.PasteBlock(), titleList)
	a := agent.New(client, mgr, agent.Config{
		MaxSteps:    p.cfg.Agent.MaxSteps,
		StepTimeout: p.cfg.GetStepTimeout(),
	})
	if mon != nil {
		a.SetObserver(mon)
	}

	for {
		searchID, err := p.runAgentOnce(ctx, a, mgr, task)
		if err == nil {
			return searchID, mon, nil
		}
		if !p.handler.ShouldRetry(err) {
			return "", mon, err
		}

		delay := p.handler.RetryDelay(err)
		logging.Pipeline("recoverable failure, retrying in %s: %v", delay, err)
		select {
		case <-ctx.Done():
			return "", mon, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (p *Pipeline) runAgentOnce(ctx context.Context, a *agent.Agent, mgr *browser.Manager, task string) (string, error) {
	result, err := a.Run(ctx, task)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", pipeerr.NewAgent("agent did not complete the filter flow: "+result.Error, nil)
	}

	var liveURL, pageHTML string
	if url, uerr := mgr.CurrentURL(ctx); uerr == nil {
		liveURL = url
	}
	if html, herr := mgr.HTML(ctx); herr == nil {
		pageHTML = html
	}
	return extractSearchID(result, liveURL, pageHTML)
}

// extractSearchID pulls the search list ID out of an agent run. URLs are
// preferred (reported data, final URL, live page URL); when the agent put
// the bare ID in prose, a raw-text scan catches it, and an anchor scan of
// the final page is the last resort.
func extractSearchID(result *agent.Result, liveURL, pageHTML string) (string, error) {
	for _, u := range []string{result.Data, result.FinalURL, liveURL} {
		if u == "" {
			continue
		}
		if id, err := apollo.ExtractSearchID(u); err == nil {
			return id, nil
		}
	}
	if id, err := apollo.ExtractSearchIDFromText(result.Data); err == nil {
		return id, nil
	}
	if pageHTML != "" {
		if id, err := apollo.ExtractSearchIDFromHTML(pageHTML); err == nil {
			return id, nil
		}
	}
	return "", pipeerr.NewSearchIDExtraction("no qOrganizationSearchListId in agent output or page", nil)
}

// scrape starts the Apify actor, waits it out with periodic progress
// logs, and pulls the dataset.
func (p *Pipeline) scrape(ctx context.Context, result *Result, records int) ([]map[string]interface{}, error) {
	if records <= 0 {
		records = p.cfg.Apify.TotalRecords
	}

	client := apify.NewClient(apify.Config{
		Token:        p.cfg.Apify.Token,
		ActorID:      p.cfg.Apify.ActorID,
		BaseURL:      p.cfg.Apify.BaseURL,
		PollInterval: p.cfg.GetPollInterval(),
		RunTimeout:   p.cfg.GetRunTimeout(),
	})

	run, err := client.StartRun(ctx, apify.RunInput{
		URL:          result.SearchURL,
		TotalRecords: records,
		FileName:     p.cfg.Apify.FileName,
	})
	if err != nil {
		return nil, err
	}
	result.ApifyRunID = run.ID

	g, gctx := errgroup.WithContext(ctx)
	waitDone := make(chan struct{})
	var finished *apify.Run
	g.Go(func() error {
		defer close(waitDone)
		var werr error
		finished, werr = client.WaitForRun(gctx, run.ID)
		return werr
	})
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-waitDone:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logging.Pipeline("apify run %s still in progress (%s)", run.ID, time.Since(start).Round(time.Second))
			}
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.DatasetID = finished.DefaultDatasetID

	return client.DatasetItems(ctx, finished.DefaultDatasetID)
}

func (p *Pipeline) beginHistory(result *Result) string {
	if p.history == nil {
		return ""
	}
	id, err := p.history.Begin(result.DomainCount, result.Titles)
	if err != nil {
		logging.PipelineError("history begin failed: %v", err)
		return ""
	}
	return id
}

func (p *Pipeline) updateHistory(id string, result *Result) {
	if p.history == nil || id == "" {
		return
	}
	err := p.history.Update(id, store.RunRecord{
		SearchID:   result.SearchID,
		SearchURL:  result.SearchURL,
		ApifyRunID: result.ApifyRunID,
		DatasetID:  result.DatasetID,
	})
	if err != nil {
		logging.PipelineError("history update failed: %v", err)
	}
}

func (p *Pipeline) outputDir() string {
	return p.resolvePath(p.cfg.Output.Dir)
}

func (p *Pipeline) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.workspace, path)
}

// Summary renders a short human-readable run summary.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s\n", r.RunID)
	fmt.Fprintf(&sb, "  domains:  %d\n", r.DomainCount)
	fmt.Fprintf(&sb, "  titles:   %d\n", len(r.Titles))
	if r.SearchID != "" {
		fmt.Fprintf(&sb, "  search:   %s\n", r.SearchID)
	}
	if r.ApifyRunID != "" {
		fmt.Fprintf(&sb, "  apify:    %s (dataset %s)\n", r.ApifyRunID, r.DatasetID)
	}
	if r.Artifacts != nil {
		fmt.Fprintf(&sb, "  contacts: %d -> %s\n", r.ContactCount, r.Artifacts.CSVPath)
	}
	fmt.Fprintf(&sb, "  duration: %s\n", r.Duration.Round(time.Second))
	return sb.String()
}
