// Package cloudflare probes which browser configuration gets past
// Apollo's Cloudflare checks. Each strategy launches a fresh browser,
// loads the site, waits, and classifies where it landed.
package cloudflare

import (
	"context"
	"time"

	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/logging"
)

// Strategy is one bypass configuration to try.
type Strategy struct {
	Name   string
	Config browser.Config
	Settle time.Duration // how long to let the challenge resolve
}

// Result records the outcome of probing one strategy.
type Result struct {
	Strategy   string           `json:"strategy"`
	Passed     bool             `json:"passed"`
	State      apollo.PageState `json:"state"`
	Indicators []string         `json:"indicators,omitempty"`
	FinalURL   string           `json:"final_url"`
	Duration   time.Duration    `json:"duration"`
	Error      string           `json:"error,omitempty"`
}

// Strategies returns the probe order: most covert first, loudest last.
// Headless with stealth flags gets the longest settle time because the
// challenge runs slowest there; a real headful window usually clears in
// seconds or not at all.
func Strategies(base browser.Config, profileDir string) []Strategy {
	stealth := base
	stealth.Headless = true
	stealth.ProfileDir = ""

	profile := base
	profile.Headless = true
	profile.ProfileDir = profileDir

	headful := base
	headful.Headless = false
	headful.ProfileDir = profileDir

	return []Strategy{
		{Name: "stealth_headless", Config: stealth, Settle: 45 * time.Second},
		{Name: "persistent_profile", Config: profile, Settle: 25 * time.Second},
		{Name: "headful", Config: headful, Settle: 12 * time.Second},
	}
}

// Probe runs one strategy against the Apollo front page.
func Probe(ctx context.Context, s Strategy) Result {
	start := time.Now()
	res := Result{Strategy: s.Name}

	mgr := browser.NewManager(s.Config)
	if err := mgr.Start(ctx); err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	defer mgr.Shutdown()

	if err := mgr.Navigate(ctx, apollo.BaseURL); err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	// Poll until the challenge clears or the settle budget runs out.
	deadline := time.Now().Add(s.Settle)
	for {
		res.State, res.Indicators = classify(ctx, mgr)
		res.Passed = len(res.Indicators) == 0 && res.State != apollo.StateUnknown
		if res.Passed || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			res.Error = ctx.Err().Error()
			res.Duration = time.Since(start)
			return res
		case <-time.After(3 * time.Second):
		}
	}

	if url, err := mgr.CurrentURL(ctx); err == nil {
		res.FinalURL = url
	}
	res.Duration = time.Since(start)
	logging.Cloudflare("strategy %s: passed=%v state=%s in %s", s.Name, res.Passed, res.State, res.Duration.Round(time.Second))
	return res
}

// ProbeAll tries strategies in order and stops at the first pass.
// All results are returned so the caller can report what was tried.
func ProbeAll(ctx context.Context, strategies []Strategy) ([]Result, *Result) {
	var results []Result
	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		r := Probe(ctx, s)
		results = append(results, r)
		if r.Passed {
			return results, &results[len(results)-1]
		}
	}
	return results, nil
}

func classify(ctx context.Context, mgr *browser.Manager) (apollo.PageState, []string) {
	url, err := mgr.CurrentURL(ctx)
	if err != nil {
		return apollo.StateUnknown, nil
	}
	state := apollo.DetectState(url)

	var indicators []string
	if html, err := mgr.HTML(ctx); err == nil {
		for _, ind := range apollo.DetectSecurity(html) {
			indicators = append(indicators, string(ind))
		}
	}
	return state, indicators
}
