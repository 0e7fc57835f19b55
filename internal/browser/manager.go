// Package browser owns the Chrome instance that drives Apollo. It wraps
// go-rod with anti-detection launch flags, a persistent profile, and
// Playwright-compatible storage-state persistence so sessions captured by
// other tooling keep working.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"prospectpipe/internal/logging"
	"prospectpipe/internal/pipeerr"
)

// Config holds browser configuration.
type Config struct {
	Headless     bool
	ProfileDir   string // persistent user data dir, empty = throwaway
	WindowWidth  int
	WindowHeight int
	UserAgent    string
	NavTimeout   time.Duration
	SlowMotion   time.Duration
	DebuggerURL  string // attach to a running Chrome instead of launching
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:     false,
		WindowWidth:  1920,
		WindowHeight: 1080,
		NavTimeout:   60 * time.Second,
		SlowMotion:   100 * time.Millisecond,
	}
}

// GetWindowWidth returns the window width.
func (c Config) GetWindowWidth() int {
	if c.WindowWidth == 0 {
		return 1920
	}
	return c.WindowWidth
}

// GetWindowHeight returns the window height.
func (c Config) GetWindowHeight() int {
	if c.WindowHeight == 0 {
		return 1080
	}
	return c.WindowHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavTimeout == 0 {
		return 60 * time.Second
	}
	return c.NavTimeout
}

// stealthArgs are the Chrome switches that keep automated sessions from
// tripping Apollo's bot detection. The blink feature flag is the important
// one; the rest remove first-run chrome that breaks scripted flows.
var stealthArgs = map[string]string{
	"disable-blink-features":       "AutomationControlled",
	"no-first-run":                 "",
	"no-default-browser-check":     "",
	"disable-infobars":             "",
	"disable-dev-shm-usage":        "",
	"disable-background-networking": "",
	"disable-session-crashed-bubble": "",
}

// stealthScript hides the webdriver flag before any page script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
`

// Manager owns one Chrome instance and its active page.
type Manager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	launch     *launcher.Launcher
	page       *rod.Page
	controlURL string
}

// NewManager creates a manager. The browser is not launched until Start.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.page = nil
		m.controlURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Leakless(true)
		for name, val := range stealthArgs {
			if val == "" {
				l = l.Set(flags.Flag(name))
			} else {
				l = l.Set(flags.Flag(name), val)
			}
		}
		l = l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", m.cfg.GetWindowWidth(), m.cfg.GetWindowHeight()))
		if m.cfg.UserAgent != "" {
			l = l.Set(flags.Flag("user-agent"), m.cfg.UserAgent)
		}
		if m.cfg.ProfileDir != "" {
			l = l.UserDataDir(m.cfg.ProfileDir)
		}

		url, err := l.Launch()
		if err != nil {
			// Retry without the stealth switches; a bare Chrome beats none
			fallback := launcher.New().Headless(m.cfg.Headless)
			if m.cfg.ProfileDir != "" {
				fallback = fallback.UserDataDir(m.cfg.ProfileDir)
			}
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return pipeerr.NewBrowser("launch chrome", fmt.Errorf("%w (fallback: %v)", err, altErr))
			}
			logging.BrowserWarn("stealth launch failed, using bare launcher: %v", err)
			controlURL = alt
			m.launch = fallback
		} else {
			controlURL = url
			m.launch = l
		}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if m.cfg.SlowMotion > 0 {
		browser = browser.SlowMotion(m.cfg.SlowMotion)
	}
	if err := browser.Connect(); err != nil {
		return pipeerr.NewBrowser("connect to chrome", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("browser connected: %s (headless=%v profile=%q)", controlURL, m.cfg.Headless, m.cfg.ProfileDir)
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the page and the browser.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		_ = m.page.Close()
		m.page = nil
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launch != nil {
		// Cleanup removes the user data dir; never do that to a
		// persistent profile.
		if m.cfg.ProfileDir == "" {
			m.launch.Cleanup()
		}
		m.launch = nil
	}
	m.controlURL = ""
	logging.Browser("browser shutdown complete")
	return err
}

// Page returns the active page, creating it on first use.
func (m *Manager) Page(ctx context.Context) (*rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		return m.page, nil
	}
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := m.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, pipeerr.NewBrowser("create page", err)
	}

	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		logging.BrowserWarn("failed to install stealth script: %v", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetWindowWidth(),
		Height:            m.cfg.GetWindowHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	m.page = page
	return page, nil
}

// Navigate navigates the active page and waits for the load event.
func (m *Manager) Navigate(ctx context.Context, url string) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}

	timer := logging.StartTimer(logging.CategoryBrowser, "navigate "+url)
	defer timer.Stop()

	p := page.Context(ctx).Timeout(m.cfg.NavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return pipeerr.NewBrowser("navigate", err).WithContext("url", url)
	}
	if err := p.WaitLoad(); err != nil {
		return pipeerr.NewBrowser("wait load", err).WithContext("url", url)
	}
	return nil
}

// CurrentURL returns the active page URL. Apollo is hash-routed, so this
// comes from window.location rather than CDP target info, which can lag.
func (m *Manager) CurrentURL(ctx context.Context) (string, error) {
	page, err := m.Page(ctx)
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Eval("() => window.location.href")
	if err != nil {
		return "", pipeerr.NewBrowser("read location", err)
	}
	return res.Value.Str(), nil
}

// Title returns the active page title.
func (m *Manager) Title(ctx context.Context) (string, error) {
	page, err := m.Page(ctx)
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", pipeerr.NewBrowser("page info", err)
	}
	return info.Title, nil
}

// HTML returns the serialized DOM of the active page.
func (m *Manager) HTML(ctx context.Context) (string, error) {
	page, err := m.Page(ctx)
	if err != nil {
		return "", err
	}
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", pipeerr.NewBrowser("read html", err)
	}
	return html, nil
}

// Click clicks the first element matching the selector.
func (m *Manager) Click(ctx context.Context, selector string) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Element(selector)
	if err != nil {
		return pipeerr.NewBrowser("element not found", err).WithContext("selector", selector)
	}
	if err := el.ScrollIntoView(); err != nil {
		logging.BrowserDebug("scroll into view failed for %s: %v", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// ClickText clicks the first element whose visible text matches.
func (m *Manager) ClickText(ctx context.Context, text string) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).ElementR("*", "/"+regexpQuote(text)+"/i")
	if err != nil {
		return pipeerr.NewBrowser("text not found", err).WithContext("text", text)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Type focuses the element matching the selector and types text into it.
func (m *Manager) Type(ctx context.Context, selector, text string) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Element(selector)
	if err != nil {
		return pipeerr.NewBrowser("element not found", err).WithContext("selector", selector)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(text)
}

// PressEnter sends an Enter keypress to the active page.
func (m *Manager) PressEnter(ctx context.Context) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}
	return page.Context(ctx).Keyboard.Press(input.Enter)
}

// WaitStable waits for the page to stop mutating. Apollo re-renders its
// results table a few times after filters change.
func (m *Manager) WaitStable(ctx context.Context, d time.Duration) error {
	page, err := m.Page(ctx)
	if err != nil {
		return err
	}
	return page.Context(ctx).WaitDOMStable(d, 0)
}

// Screenshot captures the viewport as PNG.
func (m *Manager) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := m.Page(ctx)
	if err != nil {
		return nil, err
	}
	return page.Context(ctx).Screenshot(false, nil)
}

// Eval evaluates JS on the active page and returns the string result.
func (m *Manager) Eval(ctx context.Context, js string) (string, error) {
	page, err := m.Page(ctx)
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Eval(js)
	if err != nil {
		return "", pipeerr.NewBrowser("eval", err)
	}
	return res.Value.Str(), nil
}

func regexpQuote(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
		`^`, `\^`, `$`, `\$`, `|`, `\|`, `/`, `\/`,
	)
	return replacer.Replace(s)
}
