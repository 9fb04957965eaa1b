// Package scraper drives fetches for one target according to its pagination
// style and turns the accumulated candidates into records.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-ring-crawler/downloader"
	"github.com/aluiziolira/go-ring-crawler/enrich"
	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/pipeline"
)

// Enricher backfills candidate images from detail pages.
type Enricher interface {
	Enrich(ctx context.Context, candidates []models.RawCandidate) ([]models.RawCandidate, enrich.Report)
}

// ImageStore persists record images and sets their local paths.
type ImageStore interface {
	Download(ctx context.Context, slug string, records []models.CanonicalRecord) (downloader.Report, error)
}

// Options tunes a Controller. Enricher, Images and Metrics are optional.
type Options struct {
	PageWait    time.Duration
	ActionWait  time.Duration
	MaxImages   int
	Instruction string
	Enricher    Enricher
	Images      ImageStore
	Metrics     *Metrics
}

// DefaultOptions waits 5s after navigations and 3s after in-page actions.
func DefaultOptions() Options {
	return Options{
		PageWait:   5 * time.Second,
		ActionWait: 3 * time.Second,
		MaxImages:  models.MaxImagesPerRecord,
	}
}

// Controller runs targets one page step at a time.
type Controller struct {
	fetcher   fetcher.Fetcher
	extractor Extractor
	opts      Options
	sleep     func(context.Context, time.Duration) error
}

// NewController builds a controller over a fetcher and an extractor.
func NewController(f fetcher.Fetcher, ex Extractor, opts Options) *Controller {
	if opts.MaxImages <= 0 {
		opts.MaxImages = models.MaxImagesPerRecord
	}
	return &Controller{
		fetcher:   f,
		extractor: ex,
		opts:      opts,
		sleep:     fetcher.Sleep,
	}
}

// Metrics returns the collectors the controller reports to, possibly nil.
func (c *Controller) Metrics() *Metrics {
	return c.opts.Metrics
}

// Run crawls one target. Fetch and extraction failures degrade to fewer
// records; an error is returned only for a bad target or cancellation.
func (c *Controller) Run(ctx context.Context, target models.TargetConfig) (*models.CrawlResult, error) {
	result := &models.CrawlResult{Target: target.Slug, StartTime: time.Now()}
	slog.Info("crawling target",
		slog.String("target", target.Slug),
		slog.String("style", string(target.Pagination)),
		slog.Int("max_pages", target.MaxPages),
	)

	candidates, err := c.collect(ctx, target, result)
	if err != nil {
		return nil, err
	}
	if err := c.finish(ctx, target, candidates, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Controller) collect(ctx context.Context, target models.TargetConfig, result *models.CrawlResult) ([]models.RawCandidate, error) {
	switch target.Pagination {
	case models.PaginationURL:
		return c.collectURL(ctx, target, result)
	case models.PaginationLoadMore:
		if target.LoadMoreSelector == "" {
			return c.collectSession(ctx, target, result, "")
		}
		return c.collectSession(ctx, target, result, fetcher.ClickJS(target.LoadMoreSelector))
	case models.PaginationInfinite:
		return c.collectSession(ctx, target, result, fetcher.ScrollBottomJS)
	case models.PaginationNone, "":
		acc := newAccumulator()
		acc.add(c.step(ctx, target, target.ListingURL, c.navigate(), result))
		return acc.items, ctx.Err()
	}
	return nil, fmt.Errorf("target %s: unknown pagination style %q", target.Slug, target.Pagination)
}

// PageURL returns the listing URL for a 1-based page number.
func PageURL(listing string, page int) string {
	if page <= 1 {
		return listing
	}
	sep := "?"
	if strings.Contains(listing, "?") {
		sep = "&"
	}
	return listing + sep + "page=" + strconv.Itoa(page)
}

func (c *Controller) collectURL(ctx context.Context, target models.TargetConfig, result *models.CrawlResult) ([]models.RawCandidate, error) {
	acc := newAccumulator()
	for page := 1; page <= max(target.MaxPages, 1); page++ {
		if page > 1 {
			if err := c.sleep(ctx, target.Delay); err != nil {
				return nil, err
			}
		}
		found := c.step(ctx, target, PageURL(target.ListingURL, page), c.navigate(), result)
		if len(found) == 0 {
			slog.Info("no more results", slog.String("target", target.Slug), slog.Int("page", page))
			break
		}
		acc.add(found)
		if acc.full(target.MaxRecords) {
			break
		}
	}
	return acc.items, nil
}

// collectSession loads the listing under a session and repeats action on
// the same page until a round adds nothing. An empty action stops after
// the first page.
func (c *Controller) collectSession(ctx context.Context, target models.TargetConfig, result *models.CrawlResult, action string) ([]models.RawCandidate, error) {
	session := fmt.Sprintf("session_%s_%s", target.Slug, uuid.NewString())
	defer func() {
		if err := c.fetcher.CloseSession(context.WithoutCancel(ctx), session); err != nil {
			slog.Debug("close session failed", slog.String("session", session), slog.Any("error", err))
		}
	}()

	acc := newAccumulator()
	first := c.navigate()
	first.SessionID = session
	acc.add(c.step(ctx, target, target.ListingURL, first, result))

	if action == "" {
		return acc.items, ctx.Err()
	}
	for round := 2; round <= target.MaxPages; round++ {
		if acc.full(target.MaxRecords) {
			break
		}
		if err := c.sleep(ctx, target.Delay); err != nil {
			return nil, err
		}
		opts := fetcher.FetchOptions{
			Scripts:   fetcher.WithCookieDismissal(action),
			Wait:      c.opts.ActionWait,
			PageOnly:  true,
			SessionID: session,
		}
		if added := acc.add(c.step(ctx, target, target.ListingURL, opts, result)); added == 0 {
			slog.Info("no new results", slog.String("target", target.Slug), slog.Int("round", round))
			break
		}
	}
	return acc.items, nil
}

func (c *Controller) navigate() fetcher.FetchOptions {
	return fetcher.FetchOptions{
		Scripts: fetcher.WithCookieDismissal(),
		Wait:    c.opts.PageWait,
	}
}

// step performs one fetch and extraction. Failures yield no candidates.
func (c *Controller) step(ctx context.Context, target models.TargetConfig, url string, opts fetcher.FetchOptions, result *models.CrawlResult) []models.RawCandidate {
	m := c.opts.Metrics
	m.IncFetch(target.Pagination)
	start := time.Now()
	page, err := c.fetcher.Fetch(ctx, url, opts)
	m.ObserveDuration(time.Since(start))
	if errors.Is(err, fetcher.ErrSessionUnsupported) {
		slog.Info("engine cannot act on the page, keeping loaded results",
			slog.String("target", target.Slug),
			slog.String("style", string(target.Pagination)),
		)
		return nil
	}
	if err != nil {
		result.FetchFailures++
		m.IncError(fetcher.ErrorLabel(err))
		slog.Warn("fetch failed",
			slog.String("target", target.Slug),
			slog.String("url", url),
			slog.String("error_type", fetcher.ErrorLabel(err)),
			slog.Any("error", err),
		)
		return nil
	}
	result.Pages++

	ex, err := c.extractor.Extract(ctx, page.Markdown, c.opts.Instruction)
	result.Usage.AddUsage(ex.Usage)
	m.AddTokens(ex.Usage)
	if err != nil {
		m.IncError("extract")
		slog.Warn("extraction failed",
			slog.String("target", target.Slug),
			slog.String("url", url),
			slog.Any("error", err),
		)
	}
	m.AddCandidates(len(ex.Candidates))
	slog.Info("page extracted",
		slog.String("target", target.Slug),
		slog.String("url", url),
		slog.Int("candidates", len(ex.Candidates)),
	)
	return ex.Candidates
}

// finish selects, enriches, normalizes and stores images for candidates.
func (c *Controller) finish(ctx context.Context, target models.TargetConfig, candidates []models.RawCandidate, result *models.CrawlResult) error {
	p := pipeline.NewPipeline(c.opts.MaxImages)
	selected := p.Select(candidates, target.MaxRecords)
	result.Dropped = p.Dropped()
	c.opts.Metrics.AddDropped(result.Dropped)

	if target.CrawlDetailPages && c.opts.Enricher != nil && len(selected) > 0 {
		var report enrich.Report
		selected, report = c.opts.Enricher.Enrich(ctx, selected)
		result.EnrichAttempted += report.Attempted
		result.EnrichFailures += report.Failed
		c.opts.Metrics.AddEnrichments("ok", report.Attempted-report.Failed)
		c.opts.Metrics.AddEnrichments("failed", report.Failed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records := p.Normalize(selected, target.Name, target.Tier, target.ListingURL)
	if c.opts.Images != nil && len(records) > 0 {
		report, err := c.opts.Images.Download(ctx, target.Slug, records)
		result.ImagesDownloaded += report.Downloaded + report.Cached
		result.DownloadFailures += report.Failed
		c.opts.Metrics.AddImages("downloaded", report.Downloaded)
		c.opts.Metrics.AddImages("cached", report.Cached)
		c.opts.Metrics.AddImages("failed", report.Failed)
		if err != nil {
			slog.Warn("image download aborted", slog.String("target", target.Slug), slog.Any("error", err))
		}
	}

	result.Records = records
	result.Usage.Records = len(records)
	result.EndTime = time.Now()
	c.opts.Metrics.AddRecords(target.Tier, len(records))

	slog.Info("target finished",
		slog.String("target", target.Slug),
		slog.Int("records", len(records)),
		slog.Int("pages", result.Pages),
		slog.Int("fetch_failures", result.FetchFailures),
		slog.Int("dropped_invalid", result.Dropped.Invalid),
		slog.Int("dropped_duplicate", result.Dropped.Duplicate),
		slog.Int("dropped_over_cap", result.Dropped.OverCap),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return nil
}

// accumulator keeps candidates in arrival order, one per dedupe key.
type accumulator struct {
	seen  map[string]struct{}
	items []models.RawCandidate
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

// add appends unseen candidates and reports how many were new.
func (a *accumulator) add(cands []models.RawCandidate) int {
	added := 0
	for _, cand := range cands {
		key := pipeline.DedupeKey(cand.Name)
		if key == "" {
			continue
		}
		if _, ok := a.seen[key]; ok {
			continue
		}
		a.seen[key] = struct{}{}
		a.items = append(a.items, cand)
		added++
	}
	return added
}

func (a *accumulator) full(limit int) bool {
	return limit > 0 && len(a.items) >= limit
}
