package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTTPOptions configure the static fetcher.
type HTTPOptions struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// HTTPFetcher fetches pages without executing JavaScript. It suits targets
// that server-render their product grids. A session-tagged navigation is a
// plain GET; in-page actions on a session are not supported.
type HTTPFetcher struct {
	collector      *colly.Collector
	acceptLanguage string
}

// NewHTTPFetcher builds a colly-backed static fetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	collectorOpts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(collectorOpts...)
	collector.SetRequestTimeout(opts.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &HTTPFetcher{collector: collector, acceptLanguage: opts.AcceptLanguage}
}

// WithTransport replaces the underlying HTTP transport.
func (f *HTTPFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch downloads url and converts it to markdown. Scripts and waits are
// ignored; PageOnly yields ErrSessionUnsupported.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts FetchOptions) (*Page, error) {
	if opts.PageOnly {
		return nil, ErrSessionUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := f.collector.Clone()

	var (
		page       *Page
		statusCode int
		fetchErr   error
	)
	c.OnResponse(func(r *colly.Response) {
		page = &Page{URL: r.Request.URL.String(), HTML: string(r.Body)}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	hdr := http.Header{}
	if f.acceptLanguage != "" {
		hdr.Set("Accept-Language", f.acceptLanguage)
	}

	start := time.Now()
	err := c.Request(http.MethodGet, url, nil, colly.NewContext(), hdr)
	if fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil || page == nil {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("empty response")
		}
		return nil, fmt.Errorf("fetch %s: %w", url, Classify(fetchErr, statusCode))
	}

	markdown, err := ToMarkdown(page.HTML, page.URL)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", url, err)
	}
	page.Markdown = markdown

	slog.Debug("page fetched",
		slog.String("url", url),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("bytes", len(page.HTML)),
	)
	return page, nil
}

// CloseSession is a no-op for the static fetcher.
func (f *HTTPFetcher) CloseSession(context.Context, string) error {
	return nil
}
