package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"prospectpipe/internal/apollo"
	"prospectpipe/internal/browser"
	"prospectpipe/internal/logging"
	"prospectpipe/internal/pipeerr"
)

// captureCheckInterval is how often the interactive capture polls the
// page for a logged-in state while the user works through the login.
const captureCheckInterval = 3 * time.Second

// CaptureInteractive opens the Apollo login page in the given browser
// and waits for the user to log in by hand. Once the page reaches an
// authenticated state the storage state is captured and saved as
// verified. The context deadline bounds the wait.
func (m *Manager) CaptureInteractive(ctx context.Context, mgr *browser.Manager) error {
	if err := mgr.Navigate(ctx, apollo.BaseURL+"/#/login"); err != nil {
		return err
	}
	logging.Session("waiting for manual login at %s", apollo.BaseURL)

	ticker := time.NewTicker(captureCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return pipeerr.NewSessionExpired("manual login wait timed out", ctx.Err())
		case <-ticker.C:
		}

		url, err := mgr.CurrentURL(ctx)
		if err != nil {
			continue
		}
		if !apollo.IsAuthenticated(url) {
			logging.SessionDebug("still waiting for login: state=%s", apollo.DetectState(url))
			continue
		}

		// Give Apollo a moment to settle its post-login storage writes.
		_ = mgr.WaitStable(ctx, 2*time.Second)
		if err := m.Save(ctx, mgr, true); err != nil {
			return err
		}
		m.Invalidate()
		logging.Session("manual login captured: state=%s", apollo.DetectState(url))
		return nil
	}
}

// WaitForStateFile watches the session directory until a storage-state
// file is written by an external tool (a Playwright export, typically),
// then promotes it to verified. The context deadline bounds the wait.
func (m *Manager) WaitForStateFile(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	// The file may already be there.
	if path := m.StatePath(StateFile); fileExists(path) {
		return path, m.MarkVerified()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.dir); err != nil {
		return "", fmt.Errorf("watch %s: %w", m.dir, err)
	}
	logging.Session("watching %s for %s", m.dir, StateFile)

	for {
		select {
		case <-ctx.Done():
			return "", pipeerr.NewSessionExpired("state file wait timed out", ctx.Err())
		case err := <-watcher.Errors:
			return "", fmt.Errorf("watch error: %w", err)
		case event := <-watcher.Events:
			if filepath.Base(event.Name) != StateFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			// Writers land the file in chunks; wait for a parseable state.
			if _, err := browser.ReadStorageState(event.Name); err != nil {
				logging.SessionDebug("state file not complete yet: %v", err)
				continue
			}
			logging.Session("state file landed: %s", event.Name)
			m.Invalidate()
			return event.Name, m.MarkVerified()
		}
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}
