// Package monitor observes a pipeline run: it tracks page-state
// transitions, counts security indicators, captures screenshots on
// interesting events, and writes a JSON report at the end.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"prospectpipe/internal/agent"
	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/logging"
)

// Config configures the monitor.
type Config struct {
	Screenshots   bool
	ScreenshotDir string
	ReportDir     string
}

// Transition records one page-state change.
type Transition struct {
	Step      int       `json:"step"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// StepRecord is the monitor's view of one agent step.
type StepRecord struct {
	Index      int      `json:"index"`
	Action     string   `json:"action"`
	URL        string   `json:"url"`
	State      string   `json:"state"`
	Error      string   `json:"error,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Report is the JSON document written at run end.
type Report struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Steps       []StepRecord   `json:"steps"`
	Transitions []Transition   `json:"state_transitions"`
	Security    map[string]int `json:"security_indicators"`
	Screenshots []string       `json:"screenshots,omitempty"`
	ErrorCount  int            `json:"error_count"`
}

// Monitor implements agent.Observer.
type Monitor struct {
	cfg     Config
	browser *browser.Manager

	mu        sync.Mutex
	report    Report
	lastState string
}

// New creates a monitor for one run. The browser manager is used for
// screenshot capture and may be nil when screenshots are disabled.
func New(cfg Config, mgr *browser.Manager, runID string) *Monitor {
	return &Monitor{
		cfg:     cfg,
		browser: mgr,
		report: Report{
			RunID:     runID,
			StartedAt: time.Now(),
			Security:  make(map[string]int),
		},
	}
}

// ObserveStep records one agent step and its page content.
func (m *Monitor) ObserveStep(step agent.Step, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := StepRecord{
		Index:      step.Index,
		Action:     step.Action,
		URL:        step.URL,
		State:      step.State,
		Error:      step.Error,
		DurationMs: step.Duration.Milliseconds(),
	}

	for _, ind := range apollo.DetectSecurity(content) {
		rec.Indicators = append(rec.Indicators, string(ind))
		m.report.Security[string(ind)]++
	}

	stateChanged := step.State != "" && step.State != m.lastState
	if stateChanged {
		m.report.Transitions = append(m.report.Transitions, Transition{
			Step:      step.Index,
			From:      m.lastState,
			To:        step.State,
			URL:       step.URL,
			Timestamp: time.Now(),
		})
		logging.Monitor("state transition at step %d: %s -> %s", step.Index, m.lastState, step.State)
		m.lastState = step.State
	}

	if step.Error != "" {
		m.report.ErrorCount++
	}

	m.report.Steps = append(m.report.Steps, rec)

	// Screenshots only on state changes, errors, or security hits;
	// one per step is enough even when several trigger at once.
	if m.cfg.Screenshots && (stateChanged || step.Error != "" || len(rec.Indicators) > 0) {
		if path := m.captureLocked(step.Index); path != "" {
			m.report.Screenshots = append(m.report.Screenshots, path)
		}
	}
}

func (m *Monitor) captureLocked(stepIndex int) string {
	if m.browser == nil || m.cfg.ScreenshotDir == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	png, err := m.browser.Screenshot(ctx)
	if err != nil {
		logging.MonitorDebug("screenshot failed at step %d: %v", stepIndex, err)
		return ""
	}
	if err := os.MkdirAll(m.cfg.ScreenshotDir, 0o755); err != nil {
		return ""
	}

	path := filepath.Join(m.cfg.ScreenshotDir, fmt.Sprintf("%s_step_%03d.png", m.report.RunID, stepIndex))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return ""
	}
	return path
}

// SecurityCount returns how many times an indicator fired.
func (m *Monitor) SecurityCount(ind apollo.SecurityIndicator) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report.Security[string(ind)]
}

// Snapshot returns a copy of the report so far.
func (m *Monitor) Snapshot() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.report
	r.Steps = append([]StepRecord(nil), m.report.Steps...)
	r.Transitions = append([]Transition(nil), m.report.Transitions...)
	r.Screenshots = append([]string(nil), m.report.Screenshots...)
	r.Security = make(map[string]int, len(m.report.Security))
	for k, v := range m.report.Security {
		r.Security[k] = v
	}
	return r
}

// WriteReport finalizes the report and writes it to the report directory.
// Returns the report path.
func (m *Monitor) WriteReport() (string, error) {
	m.mu.Lock()
	m.report.FinishedAt = time.Now()
	report := m.report
	m.mu.Unlock()

	if m.cfg.ReportDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(m.cfg.ReportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(m.cfg.ReportDir, fmt.Sprintf("monitoring_report_%s.json", report.RunID))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	logging.Monitor("report written: %s (%d steps, %d errors)", path, len(report.Steps), report.ErrorCount)
	return path, nil
}
