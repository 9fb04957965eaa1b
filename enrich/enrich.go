// Package enrich backfills candidate images from their detail pages.
package enrich

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-ring-crawler/extractor"
	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/parser"
)

// Options tunes the enricher.
type Options struct {
	Parallelism int
	MaxImages   int
	Wait        time.Duration
}

// DefaultOptions matches the crawl defaults: five detail pages at a time,
// three images per record, a three second settle wait.
func DefaultOptions() Options {
	return Options{
		Parallelism: 5,
		MaxImages:   models.MaxImagesPerRecord,
		Wait:        3 * time.Second,
	}
}

// Report counts the work done by one Enrich call.
type Report struct {
	Attempted int
	Failed    int
	CacheHits int
	Added     int
}

// Enricher visits detail pages of candidates that are short of images.
type Enricher struct {
	fetcher fetcher.Fetcher
	cache   Cache
	opts    Options
}

// New builds an enricher. cache may be nil.
func New(f fetcher.Fetcher, cache Cache, opts Options) *Enricher {
	def := DefaultOptions()
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = def.MaxImages
	}
	return &Enricher{fetcher: f, cache: cache, opts: opts}
}

// NeedsImages reports whether c is eligible for a detail-page visit.
func NeedsImages(c models.RawCandidate, maxImages int) bool {
	return len(c.ImageURLs) < maxImages && parser.IsAbsoluteURL(c.ProductURL)
}

// Enrich returns a copy of candidates with images appended from detail
// pages. A failed page leaves its candidate untouched.
func (e *Enricher) Enrich(ctx context.Context, candidates []models.RawCandidate) ([]models.RawCandidate, Report) {
	out := slices.Clone(candidates)
	var attempted, failed, hits, added atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	for i := range out {
		if !NeedsImages(out[i], e.opts.MaxImages) {
			continue
		}
		attempted.Add(1)
		g.Go(func() error {
			images, cached, err := e.detailImages(gctx, out[i].ProductURL)
			if err != nil {
				failed.Add(1)
				slog.Warn("detail page enrichment failed",
					slog.String("url", out[i].ProductURL),
					slog.String("error_type", fetcher.ErrorLabel(err)),
					slog.Any("error", err),
				)
				return nil
			}
			if cached {
				hits.Add(1)
			}
			merged := appendNew(out[i].ImageURLs, images, e.opts.MaxImages)
			added.Add(int64(len(merged) - len(out[i].ImageURLs)))
			out[i].ImageURLs = merged
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Attempted: int(attempted.Load()),
		Failed:    int(failed.Load()),
		CacheHits: int(hits.Load()),
		Added:     int(added.Load()),
	}
	if report.Attempted > 0 {
		slog.Debug("enrichment finished",
			slog.Int("attempted", report.Attempted),
			slog.Int("failed", report.Failed),
			slog.Int("images_added", report.Added),
		)
	}
	return out, report
}

func (e *Enricher) detailImages(ctx context.Context, pageURL string) ([]string, bool, error) {
	if e.cache != nil {
		if images, ok := e.cache.Get(ctx, pageURL); ok {
			return images, true, nil
		}
	}
	page, err := e.fetcher.Fetch(ctx, pageURL, fetcher.FetchOptions{
		Scripts: fetcher.WithCookieDismissal(),
		Wait:    e.opts.Wait,
	})
	if err != nil {
		return nil, false, err
	}
	images := extractor.DetailImages(page.Markdown, e.opts.MaxImages)
	if e.cache != nil {
		e.cache.Set(ctx, pageURL, images)
	}
	return images, false, nil
}

// appendNew adds unseen urls to existing without exceeding max.
func appendNew(existing, urls []string, max int) []string {
	out := slices.Clone(existing)
	if out == nil {
		out = []string{}
	}
	for _, u := range urls {
		if len(out) >= max {
			break
		}
		if !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}
