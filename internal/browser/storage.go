package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"prospectpipe/internal/logging"
	"prospectpipe/internal/pipeerr"
)

// StorageState is the Playwright storage_state.json layout: cookies plus
// per-origin localStorage. Sessions captured by external login tooling use
// this format, so reading and writing it keeps them interchangeable.
type StorageState struct {
	Cookies []StateCookie `json:"cookies"`
	Origins []StateOrigin `json:"origins"`
}

// StateCookie is one cookie in a storage state file.
type StateCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StateOrigin holds the localStorage entries of one origin.
type StateOrigin struct {
	Origin       string       `json:"origin"`
	LocalStorage []StateEntry `json:"localStorage"`
}

// StateEntry is a single key/value pair.
type StateEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ReadStorageState parses a storage state file.
func ReadStorageState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse storage state %s: %w", path, err)
	}
	return &state, nil
}

// WriteStorageState writes a storage state file.
func WriteStorageState(path string, state *StorageState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadLegacyCookies parses the old cookie-array session format and lifts
// it into a storage state with no origins.
func ReadLegacyCookies(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []StateCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		// Some variants wrap the array in an object
		var wrapper struct {
			Cookies []StateCookie `json:"cookies"`
		}
		if err2 := json.Unmarshal(data, &wrapper); err2 != nil || wrapper.Cookies == nil {
			return nil, fmt.Errorf("parse legacy cookies %s: %w", path, err)
		}
		cookies = wrapper.Cookies
	}
	return &StorageState{Cookies: cookies}, nil
}

// CaptureStorageState snapshots the live browser's cookies and the active
// page's localStorage into a storage state.
func (m *Manager) CaptureStorageState(ctx context.Context) (*StorageState, error) {
	page, err := m.Page(ctx)
	if err != nil {
		return nil, err
	}

	cookiesRes, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, pipeerr.NewBrowser("get cookies", err)
	}

	state := &StorageState{}
	for _, c := range cookiesRes.Cookies {
		state.Cookies = append(state.Cookies, StateCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSiteToState(c.SameSite),
		})
	}

	origin, local := snapshotLocalStorage(page.Context(ctx))
	if origin != "" && len(local) > 0 {
		state.Origins = append(state.Origins, StateOrigin{Origin: origin, LocalStorage: local})
	}

	logging.BrowserDebug("captured storage state: %d cookies, %d origins", len(state.Cookies), len(state.Origins))
	return state, nil
}

// ApplyStorageState injects cookies into the browser and restores each
// origin's localStorage. Entries for the active page's origin are written
// immediately; the rest are staged to run when a document on the matching
// origin first loads, so applying while the page is still on about:blank
// loses nothing.
func (m *Manager) ApplyStorageState(ctx context.Context, state *StorageState) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}

	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSiteFromState(c.SameSite),
		})
	}
	if len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			return pipeerr.NewBrowser("set cookies", err)
		}
	}

	currentOrigin, _ := m.Eval(ctx, "() => window.location.origin")
	staged := 0
	for _, origin := range state.Origins {
		if strings.EqualFold(origin.Origin, currentOrigin) {
			restoreLocalStorage(page.Context(ctx), origin.LocalStorage)
			continue
		}
		src, serr := localStorageRestoreScript(origin)
		if serr != nil {
			continue
		}
		if _, serr := (proto.PageAddScriptToEvaluateOnNewDocument{Source: src}).Call(page); serr != nil {
			logging.BrowserWarn("stage localStorage for %s: %v", origin.Origin, serr)
			continue
		}
		staged++
	}

	logging.Browser("applied storage state: %d cookies, %d origins staged", len(params), staged)
	return nil
}

// localStorageRestoreScript builds the script that installs an origin's
// localStorage entries the first time a document on that origin loads.
func localStorageRestoreScript(origin StateOrigin) (string, error) {
	items, err := json.Marshal(origin.LocalStorage)
	if err != nil {
		return "", err
	}
	target, err := json.Marshal(origin.Origin)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	try {
		if (window.location.origin !== %s) return;
		if (window.__storageStateRestored) return;
		window.__storageStateRestored = true;
		%s.forEach(({ name, value }) => localStorage.setItem(name, value));
	} catch (e) {}
})();`, target, items), nil
}

func snapshotLocalStorage(page *rod.Page) (string, []StateEntry) {
	res, err := page.Eval(`() => {
		try {
			const out = {};
			for (const key of Object.keys(localStorage)) {
				out[key] = localStorage.getItem(key);
			}
			return JSON.stringify({ origin: window.location.origin, items: out });
		} catch (e) {
			return "{}";
		}
	}`)
	if err != nil || res == nil {
		return "", nil
	}

	var snap struct {
		Origin string            `json:"origin"`
		Items  map[string]string `json:"items"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &snap); err != nil {
		return "", nil
	}

	entries := make([]StateEntry, 0, len(snap.Items))
	for k, v := range snap.Items {
		entries = append(entries, StateEntry{Name: k, Value: v})
	}
	return snap.Origin, entries
}

func restoreLocalStorage(page *rod.Page, entries []StateEntry) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_, _ = page.Eval(`(items) => {
		try {
			JSON.parse(items).forEach(({ name, value }) => localStorage.setItem(name, value));
		} catch (e) {}
	}`, string(payload))
}

func sameSiteToState(s proto.NetworkCookieSameSite) string {
	switch s {
	case proto.NetworkCookieSameSiteStrict:
		return "Strict"
	case proto.NetworkCookieSameSiteLax:
		return "Lax"
	case proto.NetworkCookieSameSiteNone:
		return "None"
	}
	return ""
}

func sameSiteFromState(s string) proto.NetworkCookieSameSite {
	switch strings.ToLower(s) {
	case "strict":
		return proto.NetworkCookieSameSiteStrict
	case "lax":
		return proto.NetworkCookieSameSiteLax
	case "none":
		return proto.NetworkCookieSameSiteNone
	}
	return ""
}

// FileAge returns how long ago a session file was modified.
func FileAge(path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return time.Since(info.ModTime()), nil
}
