// Package session manages Apollo login state on disk: storage-state
// files, the persistent browser profile, validation with a short result
// cache, and recovery with alternate browser configurations.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"prospectpipe/internal/agent"
	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/config"
	"prospectpipe/internal/llm"
	"prospectpipe/internal/logging"
	"prospectpipe/internal/pipeerr"
)

// Session file names inside the session directory. The verified file is
// preferred: it is only written after a validation pass succeeded.
const (
	VerifiedStateFile = "verified_storage_state.json"
	StateFile         = "storage_state.json"
	LegacyCookieFile  = "apollo.json"
)

// Source identifies where the loaded session state came from.
type Source string

const (
	SourceVerified Source = "verified"
	SourceStandard Source = "standard"
	SourceLegacy   Source = "legacy"
	SourceNone     Source = "none"
)

// Manager owns the session directory and validation cache.
type Manager struct {
	dir           string
	profileDir    string
	staleness     time.Duration
	validationTTL time.Duration
	attempts      int

	mu            sync.Mutex
	lastValidated time.Time
	lastValid     bool
}

// NewManager builds a session manager from config, resolving the session
// directory relative to the workspace.
func NewManager(workspace string, cfg *config.Config) *Manager {
	dir := cfg.Session.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workspace, dir)
	}
	profile := cfg.Session.ProfileDir
	if profile != "" && !filepath.IsAbs(profile) {
		profile = filepath.Join(workspace, profile)
	}
	return &Manager{
		dir:           dir,
		profileDir:    profile,
		staleness:     time.Duration(cfg.Session.StalenessDays) * 24 * time.Hour,
		validationTTL: cfg.GetValidationTTL(),
		attempts:      cfg.Session.RecoveryAttempts,
	}
}

// Dir returns the session directory.
func (m *Manager) Dir() string { return m.dir }

// ProfileDir returns the persistent browser profile directory, or "".
func (m *Manager) ProfileDir() string { return m.profileDir }

// StatePath returns the path of a session file inside the session dir.
func (m *Manager) StatePath(name string) string {
	return filepath.Join(m.dir, name)
}

// Resolve picks the best available session file: verified state first,
// then the standard state, then the legacy cookie export.
func (m *Manager) Resolve() (string, Source) {
	for _, cand := range []struct {
		name   string
		source Source
	}{
		{VerifiedStateFile, SourceVerified},
		{StateFile, SourceStandard},
		{LegacyCookieFile, SourceLegacy},
	} {
		path := m.StatePath(cand.name)
		if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
			return path, cand.source
		}
	}
	return "", SourceNone
}

// Load reads the best available session state. Legacy cookie files are
// converted to the storage-state format and persisted as the standard
// file so later loads skip the conversion.
func (m *Manager) Load() (*browser.StorageState, Source, error) {
	path, source := m.Resolve()
	if source == SourceNone {
		return nil, SourceNone, pipeerr.NewSessionExpired("no session files found in "+m.dir, nil)
	}

	var state *browser.StorageState
	var err error
	if source == SourceLegacy {
		state, err = browser.ReadLegacyCookies(path)
		if err == nil {
			if werr := browser.WriteStorageState(m.StatePath(StateFile), state); werr == nil {
				logging.Session("converted legacy cookie file to %s", StateFile)
			}
		}
	} else {
		state, err = browser.ReadStorageState(path)
	}
	if err != nil {
		return nil, source, fmt.Errorf("load session state from %s: %w", path, err)
	}

	logging.Session("loaded %s session state: %d cookies, %d origins", source, len(state.Cookies), len(state.Origins))
	return state, source, nil
}

// Apply loads the session state and installs it into the browser.
func (m *Manager) Apply(ctx context.Context, mgr *browser.Manager) (Source, error) {
	state, source, err := m.Load()
	if err != nil {
		return source, err
	}
	if err := mgr.ApplyStorageState(ctx, state); err != nil {
		return source, fmt.Errorf("apply session state: %w", err)
	}
	return source, nil
}

// Save captures the browser's current storage state into the session dir.
// With verified set, the state also becomes the preferred verified file.
func (m *Manager) Save(ctx context.Context, mgr *browser.Manager, verified bool) error {
	state, err := mgr.CaptureStorageState(ctx)
	if err != nil {
		return fmt.Errorf("capture storage state: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := browser.WriteStorageState(m.StatePath(StateFile), state); err != nil {
		return err
	}
	if verified {
		if err := browser.WriteStorageState(m.StatePath(VerifiedStateFile), state); err != nil {
			return err
		}
	}
	logging.Session("saved session state (%d cookies, verified=%v)", len(state.Cookies), verified)
	return nil
}

// MarkVerified promotes the standard state file to verified.
func (m *Manager) MarkVerified() error {
	state, err := browser.ReadStorageState(m.StatePath(StateFile))
	if err != nil {
		return fmt.Errorf("read state for verification: %w", err)
	}
	return browser.WriteStorageState(m.StatePath(VerifiedStateFile), state)
}

// Invalidate drops the cached validation result.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastValidated = time.Time{}
	m.lastValid = false
}

// Validate drives a minimal agent check against Apollo to confirm the
// session is logged in. Results are cached for the configured TTL so
// back-to-back pipeline phases don't re-open the check.
func (m *Manager) Validate(ctx context.Context, mgr *browser.Manager, client llm.Client) (bool, error) {
	m.mu.Lock()
	if !m.lastValidated.IsZero() && time.Since(m.lastValidated) < m.validationTTL {
		valid := m.lastValid
		m.mu.Unlock()
		logging.SessionDebug("validation cache hit: valid=%v", valid)
		return valid, nil
	}
	m.mu.Unlock()

	a := agent.New(client, mgr, agent.Config{MaxSteps: 6})
	result, err := a.Run(ctx, agent.BuildValidationTask())
	if err != nil {
		return false, err
	}

	valid := result.Success && strings.EqualFold(strings.TrimSpace(result.Data), "authenticated")
	// The agent can also settle the question by where it landed.
	if !valid && apollo.IsAuthenticated(result.FinalURL) {
		valid = true
	}

	m.mu.Lock()
	m.lastValidated = time.Now()
	m.lastValid = valid
	m.mu.Unlock()

	logging.Session("validation result: valid=%v (final url %s)", valid, result.FinalURL)
	return valid, nil
}

// FileInfo describes one session file on disk.
type FileInfo struct {
	Name   string        `json:"name"`
	Path   string        `json:"path"`
	Exists bool          `json:"exists"`
	Age    time.Duration `json:"age,omitempty"`
	Stale  bool          `json:"stale,omitempty"`
}

// Info summarizes the session directory.
type Info struct {
	Dir        string     `json:"dir"`
	ProfileDir string     `json:"profile_dir,omitempty"`
	HasProfile bool       `json:"has_profile"`
	Source     Source     `json:"source"`
	Files      []FileInfo `json:"files"`
}

// Info reports the state of every known session file with its age and
// whether it has crossed the staleness threshold.
func (m *Manager) Info() *Info {
	info := &Info{Dir: m.dir, ProfileDir: m.profileDir}
	_, info.Source = m.Resolve()

	if m.profileDir != "" {
		if fi, err := os.Stat(m.profileDir); err == nil && fi.IsDir() {
			info.HasProfile = true
		}
	}

	for _, name := range []string{VerifiedStateFile, StateFile, LegacyCookieFile} {
		path := m.StatePath(name)
		fi := FileInfo{Name: name, Path: path}
		if age, err := browser.FileAge(path); err == nil {
			fi.Exists = true
			fi.Age = age
			fi.Stale = age > m.staleness
		}
		info.Files = append(info.Files, fi)
	}
	return info
}

// Cleanup removes stale session files, plus the legacy cookie file when
// a converted state exists. With all set, every session file goes.
// Returns the removed paths.
func (m *Manager) Cleanup(all bool) ([]string, error) {
	var removed []string
	hasState := false
	if _, err := os.Stat(m.StatePath(StateFile)); err == nil {
		hasState = true
	}

	for _, f := range m.Info().Files {
		if !f.Exists {
			continue
		}
		drop := all || f.Stale || (f.Name == LegacyCookieFile && hasState)
		if !drop {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Path, err)
		}
		removed = append(removed, f.Path)
		logging.Session("removed session file %s", f.Path)
	}

	if len(removed) > 0 {
		m.Invalidate()
	}
	return removed, nil
}

// recoveryConfigs returns browser configurations to try, in order, when
// the primary session fails validation. Each variant changes the part
// most likely to be the problem: headless detection, profile state, or
// both.
func (m *Manager) recoveryConfigs(base browser.Config) []browser.Config {
	headful := base
	headful.Headless = false

	noProfile := base
	noProfile.ProfileDir = ""

	headfulNoProfile := headful
	headfulNoProfile.ProfileDir = ""

	return []browser.Config{headful, noProfile, headfulNoProfile}
}

// Recover tries alternate browser configurations until one validates,
// up to the configured attempt count. On success it returns the live
// browser manager; the caller owns its shutdown.
func (m *Manager) Recover(ctx context.Context, client llm.Client, base browser.Config) (*browser.Manager, error) {
	configs := m.recoveryConfigs(base)
	attempts := m.attempts
	if attempts > len(configs) {
		attempts = len(configs)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg := configs[i]
		logging.Session("recovery attempt %d/%d: headless=%v profile=%q", i+1, attempts, cfg.Headless, cfg.ProfileDir)

		mgr := browser.NewManager(cfg)
		if err := mgr.Start(ctx); err != nil {
			lastErr = err
			continue
		}

		if _, err := m.Apply(ctx, mgr); err != nil {
			lastErr = err
			mgr.Shutdown()
			continue
		}

		m.Invalidate()
		valid, err := m.Validate(ctx, mgr, client)
		if err == nil && valid {
			logging.Session("recovery succeeded on attempt %d", i+1)
			return mgr, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = pipeerr.NewSessionExpired("recovered browser failed validation", nil)
		}
		mgr.Shutdown()
	}

	return nil, pipeerr.NewSessionExpired(fmt.Sprintf("session recovery exhausted after %d attempts", attempts), lastErr)
}
