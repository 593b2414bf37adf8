package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"bidwatch/internal/application/orchestrators"
	"bidwatch/internal/domain/watcher"
)

// maxExpandClicks bounds "more comments" clicks per pass.
const maxExpandClicks = 10

// Options configures the browser.
type Options struct {
	Headless          bool
	CookiesPath       string // JSON array of cookies exported from a logged-in browser
	UserAgent         string
	NavigationTimeout time.Duration
	Selectors         Selectors
}

// Launcher owns one browser process shared by every watcher. Each watcher
// gets its own isolated browser context.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

// NewLauncher starts Playwright and a Chromium instance.
// PRE: Playwright browsers are installed
// POST: caller must Close the launcher
func NewLauncher(opts Options) (*Launcher, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 45 * time.Second
	}
	if len(opts.Selectors.Strategies) == 0 {
		opts.Selectors = DefaultSelectors()
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &Launcher{pw: pw, browser: browser, opts: opts}, nil
}

// NewSession opens an isolated context loaded with the configured cookies.
// It matches orchestrators.SessionFactory.
func (l *Launcher) NewSession(_ context.Context) (orchestrators.PageSession, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if l.opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(l.opts.UserAgent)
	}
	bctx, err := l.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	s := &Session{bctx: bctx, opts: l.opts}
	if err := s.loadCookies(); err != nil {
		bctx.Close()
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultNavigationTimeout(float64(l.opts.NavigationTimeout.Milliseconds()))
	s.page = page
	return s, nil
}

// Close shuts down the browser and the Playwright driver.
func (l *Launcher) Close() error {
	return errors.Join(l.browser.Close(), l.pw.Stop())
}

// Session drives one watcher's page.
type Session struct {
	bctx playwright.BrowserContext
	page playwright.Page
	opts Options
}

// Open navigates to the post and extracts the first render.
func (s *Session) Open(_ context.Context, postURL string) (orchestrators.Render, error) {
	if _, err := s.page.Goto(postURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return orchestrators.Render{}, fmt.Errorf("navigate: %w", err)
	}
	return s.render()
}

// Refresh reloads the post and extracts a new render.
func (s *Session) Refresh(_ context.Context) (orchestrators.Render, error) {
	if _, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return orchestrators.Render{}, fmt.Errorf("reload: %w", err)
	}
	return s.render()
}

// RecoverLogin replaces the context's cookies with the current cookie file,
// so updated cookies are picked up without restarting the watcher.
func (s *Session) RecoverLogin(_ context.Context) error {
	if err := s.bctx.ClearCookies(); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return s.loadCookies()
}

// Close releases the browser context.
func (s *Session) Close() error {
	return s.bctx.Close()
}

func (s *Session) loadCookies() error {
	if s.opts.CookiesPath == "" {
		return nil
	}
	cookies, err := LoadCookies(s.opts.CookiesPath)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return fmt.Errorf("%w: cookie file %s is empty", watcher.ErrSessionInvalid, s.opts.CookiesPath)
	}
	if err := s.bctx.AddCookies(cookies); err != nil {
		return fmt.Errorf("add cookies: %w", err)
	}
	return nil
}

func (s *Session) render() (orchestrators.Render, error) {
	if strings.Contains(s.page.URL(), "/login") {
		return orchestrators.Render{}, watcher.ErrSessionInvalid
	}
	s.expand()
	html, err := s.page.Content()
	if err != nil {
		return orchestrators.Render{}, fmt.Errorf("read content: %w", err)
	}
	return ExtractRender(html, s.opts.Selectors)
}

// expand clicks "more comments" controls so older comments are rendered.
func (s *Session) expand() {
	for _, q := range s.opts.Selectors.Expanders {
		loc := s.page.Locator(q)
		n, err := loc.Count()
		if err != nil || n == 0 {
			continue
		}
		for i := 0; i < n && i < maxExpandClicks; i++ {
			if err := loc.Nth(i).Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err != nil {
				slog.Debug("browser_expand_failed", "selector", q, "error", err)
				break
			}
		}
	}
}

// exportedCookie is the cookie shape written by common browser cookie exporters.
type exportedCookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  *float64 `json:"expires,omitempty"`
	Expiry   *float64 `json:"expirationDate,omitempty"`
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
}

// LoadCookies reads a JSON cookie export into Playwright cookies.
// Cookies without a name or domain are skipped.
func LoadCookies(path string) ([]playwright.OptionalCookie, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	var exported []exportedCookie
	if err := json.Unmarshal(raw, &exported); err != nil {
		return nil, fmt.Errorf("decode cookies %s: %w", path, err)
	}

	out := make([]playwright.OptionalCookie, 0, len(exported))
	for _, c := range exported {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		cookiePath := c.Path
		if cookiePath == "" {
			cookiePath = "/"
		}
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(cookiePath),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		switch {
		case c.Expires != nil:
			oc.Expires = c.Expires
		case c.Expiry != nil:
			oc.Expires = c.Expiry
		}
		out = append(out, oc)
	}
	return out, nil
}
