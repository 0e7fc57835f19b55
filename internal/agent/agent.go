// Package agent implements the LLM-driven navigation loop that operates
// Apollo's UI. Each iteration summarizes the page, asks the model for the
// next action as JSON, executes it through the browser manager, and
// records the step.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/llm"
	"prospectpipe/internal/logging"
	"prospectpipe/internal/pipeerr"
)

// Config configures the agent loop.
type Config struct {
	MaxSteps      int
	StepTimeout   time.Duration
	Screenshots   bool
	ScreenshotDir string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:    25,
		StepTimeout: 90 * time.Second,
	}
}

// Decision is the JSON action the model returns each step.
type Decision struct {
	Action    string `json:"action"`    // navigate, click, click_text, type, press_enter, wait, extract_url, done, fail
	Target    string `json:"target"`    // selector, URL, or visible text
	Text      string `json:"text"`      // text to type
	Reasoning string `json:"reasoning"` // why this action
	Data      string `json:"data"`      // final payload for done/extract_url
}

// Step records one executed action.
type Step struct {
	Index          int           `json:"index"`
	Action         string        `json:"action"`
	Target         string        `json:"target,omitempty"`
	Reasoning      string        `json:"reasoning,omitempty"`
	URL            string        `json:"url"`
	State          string        `json:"state"`
	Error          string        `json:"error,omitempty"`
	ScreenshotPath string        `json:"screenshot_path,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Result is the outcome of one agent task.
type Result struct {
	Success  bool          `json:"success"`
	Data     string        `json:"data,omitempty"`
	Error    string        `json:"error,omitempty"`
	FinalURL string        `json:"final_url"`
	Steps    []Step        `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// Observer receives step notifications. The run monitor implements this.
type Observer interface {
	ObserveStep(step Step, content string)
}

// Agent drives the browser with LLM decisions.
type Agent struct {
	llm      llm.Client
	browser  *browser.Manager
	cfg      Config
	observer Observer
}

// New creates an agent.
func New(client llm.Client, mgr *browser.Manager, cfg Config) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 25
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 90 * time.Second
	}
	return &Agent{llm: client, browser: mgr, cfg: cfg}
}

// SetObserver attaches a step observer.
func (a *Agent) SetObserver(o Observer) {
	a.observer = o
}

const systemPrompt = `You are a precise browser automation operator working inside the Apollo.io web app.
Each turn you receive the current URL, page title, interactive elements, and your step history.
Respond with EXACTLY ONE JSON object and nothing else:
{"action": "...", "target": "...", "text": "...", "reasoning": "...", "data": "..."}

Actions:
- navigate:    target = absolute URL
- click:       target = CSS selector from the element list
- click_text:  target = exact visible text of the element
- type:        target = CSS selector, text = what to type (use \n for newlines)
- press_enter: press the Enter key
- wait:        wait for the page to settle
- extract_url: report the current URL in data and keep going
- done:        task complete, put the requested result in data
- fail:        task impossible, explain in reasoning

Rules:
- One action per turn. Prefer selectors from the element list.
- After changing filters, wait before reading results.
- Never invent selectors that are not on the page.`

// Run executes the task until done, fail, or the step budget runs out.
func (a *Agent) Run(ctx context.Context, task string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	logging.Agent("task started: %d step budget", a.cfg.MaxSteps)

	for i := 0; i < a.cfg.MaxSteps; i++ {
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		step, decision, err := a.runStep(ctx, i, task, result.Steps)
		result.Steps = append(result.Steps, step)
		result.FinalURL = step.URL

		if a.observer != nil {
			content, _ := a.browser.HTML(ctx)
			a.observer.ObserveStep(step, content)
		}

		if err != nil {
			// Hostile page conditions abort the run with a typed error
			if pe, ok := pipeerr.As(err); ok && !pe.Recoverable {
				result.Error = err.Error()
				result.Duration = time.Since(start)
				return result, err
			}
			logging.AgentWarn("step %d failed, continuing: %v", i, err)
			continue
		}

		switch decision.Action {
		case "done":
			result.Success = true
			result.Data = decision.Data
			result.Duration = time.Since(start)
			logging.Agent("task done in %d steps (%v)", len(result.Steps), result.Duration)
			return result, nil
		case "fail":
			result.Error = decision.Reasoning
			result.Duration = time.Since(start)
			logging.AgentError("task failed: %s", decision.Reasoning)
			return result, pipeerr.NewAgent("agent reported failure: "+decision.Reasoning, nil)
		}
	}

	result.Error = "step budget exhausted"
	result.Duration = time.Since(start)
	return result, pipeerr.NewAgent("step budget exhausted", nil).WithContext("max_steps", a.cfg.MaxSteps)
}

// runStep performs one observe-decide-act cycle.
func (a *Agent) runStep(ctx context.Context, index int, task string, history []Step) (Step, *Decision, error) {
	stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	step := Step{Index: index}

	url, err := a.browser.CurrentURL(stepCtx)
	if err != nil {
		step.Error = err.Error()
		step.Duration = time.Since(start)
		return step, nil, err
	}
	step.URL = url
	step.State = string(apollo.DetectState(url))

	title, _ := a.browser.Title(stepCtx)
	pageHTML, err := a.browser.HTML(stepCtx)
	if err != nil {
		step.Error = err.Error()
		step.Duration = time.Since(start)
		return step, nil, err
	}

	// Security check before spending tokens on a blocked page
	if indicators := apollo.DetectSecurity(pageHTML); len(indicators) > 0 {
		err := securityError(indicators)
		step.Error = err.Error()
		step.Duration = time.Since(start)
		return step, nil, err
	}

	digest := ElementDigest(pageHTML, 40)
	prompt := buildStepPrompt(task, url, title, digest, history)

	resp, err := a.llm.CompleteWithSystem(stepCtx, systemPrompt, prompt)
	if err != nil {
		step.Error = err.Error()
		step.Duration = time.Since(start)
		return step, nil, pipeerr.NewAgent("llm step failed", err)
	}

	decision, err := ParseDecision(resp)
	if err != nil {
		step.Error = err.Error()
		step.Duration = time.Since(start)
		return step, nil, err
	}

	step.Action = decision.Action
	step.Target = decision.Target
	step.Reasoning = decision.Reasoning
	logging.AgentDebug("step %d: %s %q (%s)", index, decision.Action, decision.Target, decision.Reasoning)

	if err := a.execute(stepCtx, decision); err != nil {
		step.Error = err.Error()
		step.Duration = time.Since(start)
		return step, decision, err
	}

	if a.cfg.Screenshots && a.cfg.ScreenshotDir != "" {
		step.ScreenshotPath = a.captureScreenshot(stepCtx, index)
	}

	// Refresh the URL after the action so the step records where it landed
	if after, err := a.browser.CurrentURL(stepCtx); err == nil {
		step.URL = after
		step.State = string(apollo.DetectState(after))
	}

	step.Duration = time.Since(start)
	return step, decision, nil
}

func (a *Agent) execute(ctx context.Context, d *Decision) error {
	switch d.Action {
	case "navigate":
		return a.browser.Navigate(ctx, d.Target)
	case "click":
		return a.browser.Click(ctx, d.Target)
	case "click_text":
		return a.browser.ClickText(ctx, d.Target)
	case "type":
		return a.browser.Type(ctx, d.Target, d.Text)
	case "press_enter":
		return a.browser.PressEnter(ctx)
	case "wait":
		return a.browser.WaitStable(ctx, time.Second)
	case "extract_url", "done", "fail":
		return nil
	}
	return fmt.Errorf("unknown action %q", d.Action)
}

func (a *Agent) captureScreenshot(ctx context.Context, index int) string {
	png, err := a.browser.Screenshot(ctx)
	if err != nil {
		logging.AgentDebug("screenshot failed at step %d: %v", index, err)
		return ""
	}
	if err := os.MkdirAll(a.cfg.ScreenshotDir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(a.cfg.ScreenshotDir, fmt.Sprintf("step_%03d.png", index))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return ""
	}
	return path
}

func securityError(indicators []apollo.SecurityIndicator) error {
	for _, ind := range indicators {
		switch ind {
		case apollo.IndicatorCloudflare:
			return pipeerr.NewCloudflareBlocked("cloudflare challenge detected", nil)
		case apollo.IndicatorRateLimit:
			return pipeerr.NewRateLimited("apollo rate limiting detected", nil)
		case apollo.IndicatorAuthWall:
			return pipeerr.NewSessionExpired("auth wall detected", nil)
		}
	}
	return pipeerr.NewAgent("unknown security indicator", nil)
}

func buildStepPrompt(task, url, title, digest string, history []Step) string {
	var sb strings.Builder
	sb.WriteString("TASK:\n")
	sb.WriteString(task)
	sb.WriteString("\n\nCURRENT PAGE:\nURL: ")
	sb.WriteString(url)
	sb.WriteString("\nTitle: ")
	sb.WriteString(title)
	sb.WriteString("\n\nINTERACTIVE ELEMENTS:\n")
	sb.WriteString(digest)

	if len(history) > 0 {
		sb.WriteString("\nPREVIOUS STEPS:\n")
		// Only the tail matters for deciding the next action
		from := 0
		if len(history) > 8 {
			from = len(history) - 8
		}
		for _, s := range history[from:] {
			fmt.Fprintf(&sb, "%d. %s %s", s.Index, s.Action, s.Target)
			if s.Error != "" {
				fmt.Fprintf(&sb, " -> ERROR: %s", s.Error)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nRespond with the next action as a single JSON object.")
	return sb.String()
}

// ParseDecision extracts the JSON decision from a model response,
// tolerating markdown code fences and surrounding prose.
func ParseDecision(resp string) (*Decision, error) {
	s := strings.TrimSpace(resp)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, pipeerr.NewAgent("no JSON object in model response", nil).WithContext("response", truncate(resp, 200))
	}

	var d Decision
	if err := json.Unmarshal([]byte(s[start:end+1]), &d); err != nil {
		return nil, pipeerr.NewAgent("malformed decision JSON", err).WithContext("response", truncate(resp, 200))
	}
	if d.Action == "" {
		return nil, pipeerr.NewAgent("decision missing action", nil)
	}
	return &d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
