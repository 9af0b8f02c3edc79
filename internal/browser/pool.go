package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/semaphore"

	"github.com/maltedev/crosslist/internal/proxy"
)

// userAgents is the rotation set for context fingerprints. All entries are
// current mainstream desktop browsers.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
}

var viewports = []playwright.Size{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
}

// initScript masks the most common automation fingerprints before any page
// script runs.
const initScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = {runtime: {}};
`

var extraHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate, br",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
}

// Session is a single navigable browser page. Implementations hold the
// underlying page and context until released back to the pool.
type Session interface {
	// Navigate loads the URL and returns the final HTTP status code.
	Navigate(ctx context.Context, url string) (int, error)
	// Content returns the current full HTML of the page.
	Content() (string, error)
	// Close releases the page and its browser context.
	Close() error
}

// Config controls the shared browser and the concurrency gate.
type Config struct {
	Capacity          int
	Headless          bool
	NavigationTimeout time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 3
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.MinDelay <= 0 {
		c.MinDelay = 2 * time.Second
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay + 3*time.Second
	}
	return c
}

// Pool owns a single Chromium process and hands out isolated browser
// contexts, at most Capacity concurrently. Acquire blocks until a slot is
// free or the context is cancelled.
type Pool struct {
	cfg     Config
	pw      *playwright.Playwright
	browser playwright.Browser
	sem     *semaphore.Weighted
	logger  *slog.Logger

	randFloat func() float64
	randIndex func(n int) int
}

func NewPool(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger := slog.Default().With("component", "browser_pool")
	logger.Info("browser launched", "headless", cfg.Headless, "capacity", cfg.Capacity)

	return &Pool{
		cfg:       cfg,
		pw:        pw,
		browser:   browser,
		sem:       semaphore.NewWeighted(int64(cfg.Capacity)),
		logger:    logger,
		randFloat: rand.Float64,
		randIndex: rand.Intn,
	}, nil
}

// Acquire blocks for a free slot, then creates a fresh context with a
// randomized fingerprint. Traffic is routed through prx unless it is nil or
// the direct sentinel. The caller must pass the returned session to Release.
func (p *Pool) Acquire(ctx context.Context, prx *proxy.Proxy) (Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire browser slot: %w", err)
	}

	sess, err := p.newSession(prx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return sess, nil
}

// Release closes the session and frees its slot. Safe to call with a nil
// session.
func (p *Pool) Release(sess Session) {
	if sess != nil {
		if err := sess.Close(); err != nil {
			p.logger.Warn("error closing session", "error", err)
		}
	}
	p.sem.Release(1)
}

// HumanDelay sleeps a random duration within the configured bounds, to pace
// requests like a human browsing. Returns early if ctx is cancelled.
func (p *Pool) HumanDelay(ctx context.Context) error {
	spread := p.cfg.MaxDelay - p.cfg.MinDelay
	delay := p.cfg.MinDelay + time.Duration(p.randFloat()*float64(spread))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (p *Pool) Close() error {
	var errs []error

	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

func (p *Pool) newSession(prx *proxy.Proxy) (Session, error) {
	userAgent := userAgents[p.randIndex(len(userAgents))]
	viewport := viewports[p.randIndex(len(viewports))]

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &userAgent,
		Viewport:          &viewport,
		Locale:            playwright.String("en-US"),
		TimezoneId:        playwright.String("America/New_York"),
		JavaScriptEnabled: playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(false),
		ExtraHttpHeaders:  extraHeaders,
	}
	if prx != nil && !prx.IsDirect() {
		contextOpts.Proxy = &playwright.Proxy{Server: prx.Address}
	}

	browserCtx, err := p.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := browserCtx.AddInitScript(playwright.Script{Content: playwright.String(initScript)}); err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("failed to add init script: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(p.cfg.NavigationTimeout.Milliseconds()))

	p.logger.Debug("session created",
		"user_agent", userAgent,
		"viewport", fmt.Sprintf("%dx%d", viewport.Width, viewport.Height),
		"proxy", prx != nil && !prx.IsDirect())

	return &pageSession{
		page:    page,
		context: browserCtx,
		timeout: p.cfg.NavigationTimeout,
	}, nil
}

type pageSession struct {
	page    playwright.Page
	context playwright.BrowserContext
	timeout time.Duration
}

func (s *pageSession) Navigate(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return 0, fmt.Errorf("navigation failed: %w", err)
	}
	if resp == nil {
		// Same-document navigations return no response. Treat as loaded.
		return 200, nil
	}
	return resp.Status(), nil
}

func (s *pageSession) Content() (string, error) {
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

func (s *pageSession) Close() error {
	var errs []error

	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := s.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
