// Package fetcher renders listing and detail pages and hands back their
// content as markdown for extraction.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DismissCookiesJS clicks the usual consent buttons so banners do not hide
// product grids. It runs before every extraction.
const DismissCookiesJS = `(() => {
    const btns = document.querySelectorAll(
        'button[id*="accept"], button[id*="cookie"], button[class*="accept"], '
        + 'button[class*="cookie"], a[id*="accept"], [data-action="accept"]'
    );
    for (const btn of btns) btn.click();
    const ot = document.getElementById('onetrust-accept-btn-handler');
    if (ot) ot.click();
    const didomi = document.getElementById('didomi-notice-agree-button');
    if (didomi) didomi.click();
})()`

// ScrollBottomJS scrolls to the end of the document to trigger lazy loading.
const ScrollBottomJS = `window.scrollTo(0, document.body.scrollHeight);`

// ClickJS returns a script clicking the first element matching selector.
func ClickJS(selector string) string {
	return fmt.Sprintf("document.querySelector(%q)?.click();", selector)
}

// FetchOptions tune a single fetch.
type FetchOptions struct {
	// Scripts run in order after the page settles and before content is read.
	Scripts []string
	// Wait is how long to let the page settle before reading it.
	Wait time.Duration
	// PageOnly acts on the session's current page instead of navigating.
	PageOnly bool
	// SessionID keeps the page open across calls until CloseSession.
	SessionID string
}

// Page is the rendered content of one fetch.
type Page struct {
	URL      string
	HTML     string
	Markdown string
}

// Fetcher renders a URL and returns its content.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*Page, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// WithCookieDismissal prepends DismissCookiesJS to scripts.
func WithCookieDismissal(scripts ...string) []string {
	out := make([]string, 0, len(scripts)+1)
	out = append(out, DismissCookiesJS)
	for _, s := range scripts {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
