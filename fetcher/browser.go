package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// BrowserOptions configure the headless browser.
type BrowserOptions struct {
	Headless       bool
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// DefaultBrowserOptions returns settings for a French desktop visitor.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:       true,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "fr-FR,fr;q=0.9,en;q=0.8",
		Timeout:        30 * time.Second,
		ViewportWidth:  1440,
		ViewportHeight: 900,
	}
}

// BrowserFetcher renders pages in headless Chromium. Pages opened under a
// session ID stay alive until CloseSession so later calls can click or
// scroll without navigating again.
type BrowserFetcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]playwright.Page
}

// NewBrowserFetcher starts playwright and launches Chromium.
func NewBrowserFetcher(opts BrowserOptions) (*BrowserFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		JavaScriptEnabled: playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.AcceptLanguage != "" {
		contextOpts.ExtraHttpHeaders = map[string]string{"Accept-Language": opts.AcceptLanguage}
	}

	browserContext, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	return &BrowserFetcher{
		pw:       pw,
		browser:  browser,
		context:  browserContext,
		timeout:  opts.Timeout,
		logger:   slog.Default().With("component", "browser"),
		sessions: make(map[string]playwright.Page),
	}, nil
}

// Fetch renders url, runs opts.Scripts, waits opts.Wait and returns the
// page content. With PageOnly set it reuses the session page as-is.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string, opts FetchOptions) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := b.page(opts)
	if err != nil {
		return nil, err
	}
	if opts.SessionID == "" {
		defer page.Close()
	}

	if !opts.PageOnly {
		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
		})
		if err != nil {
			if errors.Is(err, playwright.ErrTimeout) {
				return nil, fmt.Errorf("navigate %s: %w", url, Timeout(err))
			}
			return nil, fmt.Errorf("navigate %s: %w", url, Render(err))
		}
		if resp != nil && resp.Status() >= 400 {
			return nil, fmt.Errorf("navigate %s: %w", url, Classify(nil, resp.Status()))
		}
	}

	for _, script := range opts.Scripts {
		if _, err := page.Evaluate(script); err != nil {
			b.logger.Debug("script failed", slog.String("url", url), slog.Any("error", err))
		}
	}

	if err := Sleep(ctx, opts.Wait); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, Render(err))
	}
	pageURL := page.URL()
	if pageURL == "" {
		pageURL = url
	}
	markdown, err := ToMarkdown(html, pageURL)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", url, Render(err))
	}
	return &Page{URL: pageURL, HTML: html, Markdown: markdown}, nil
}

// page returns the session page for opts, opening one when needed.
func (b *BrowserFetcher) page(opts FetchOptions) (playwright.Page, error) {
	if opts.SessionID != "" {
		b.mu.Lock()
		page, ok := b.sessions[opts.SessionID]
		b.mu.Unlock()
		if ok {
			return page, nil
		}
		if opts.PageOnly {
			return nil, Render(fmt.Errorf("session %q has no open page", opts.SessionID))
		}
	} else if opts.PageOnly {
		return nil, Render(errors.New("page-only fetch requires a session"))
	}

	page, err := b.context.NewPage()
	if err != nil {
		return nil, Render(fmt.Errorf("new page: %w", err))
	}
	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))

	if opts.SessionID != "" {
		b.mu.Lock()
		b.sessions[opts.SessionID] = page
		b.mu.Unlock()
	}
	return page, nil
}

// CloseSession closes the page held by sessionID. Unknown IDs are ignored.
func (b *BrowserFetcher) CloseSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	page, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	return nil
}

// Close shuts down every session, the browser and playwright.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	for id, page := range b.sessions {
		page.Close()
		delete(b.sessions, id)
	}
	b.mu.Unlock()

	var errs []error
	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
