package scraper

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-ring-crawler/downloader"
	"github.com/aluiziolira/go-ring-crawler/enrich"
	"github.com/aluiziolira/go-ring-crawler/extractor"
	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/pipeline"
)

type fetchCall struct {
	url  string
	opts fetcher.FetchOptions
}

// scriptedFetcher answers fetches from a handler and records every call.
type scriptedFetcher struct {
	mu      sync.Mutex
	handler func(n int, url string, opts fetcher.FetchOptions) (string, error)
	calls   []fetchCall
	closed  []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string, opts fetcher.FetchOptions) (*fetcher.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{url: url, opts: opts})
	n := len(f.calls)
	f.mu.Unlock()

	md, err := f.handler(n, url, opts)
	if err != nil {
		return nil, err
	}
	return &fetcher.Page{URL: url, Markdown: md}, nil
}

func (f *scriptedFetcher) CloseSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return errors.New("session already gone")
}

// lineExtractor treats each non-empty line as a candidate name and reports
// one call of fixed usage.
type lineExtractor struct {
	calls int
}

func (e *lineExtractor) Extract(_ context.Context, text, _ string) (models.Extraction, error) {
	e.calls++
	out := models.Extraction{Usage: models.TokenUsage{Calls: 1, PromptTokens: 100, CompletionTokens: 20}}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out.Candidates = append(out.Candidates, models.RawCandidate{Name: line, ImageURLs: []string{}, Sizes: []string{}})
		}
	}
	return out, nil
}

type sleepRecorder struct {
	durations []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	return ctx.Err()
}

func newTestController(f fetcher.Fetcher, ex Extractor, opts Options) (*Controller, *sleepRecorder) {
	c := NewController(f, ex, opts)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func urlTarget(maxPages, maxRecords int) models.TargetConfig {
	return models.TargetConfig{
		Slug:       "edenly",
		Name:       "Edenly",
		Tier:       models.TierMid,
		ListingURL: "https://www.edenly.com/bague-fiancaille/",
		Pagination: models.PaginationURL,
		MaxPages:   maxPages,
		MaxRecords: maxRecords,
		Delay:      1500 * time.Millisecond,
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		listing string
		page    int
		want    string
	}{
		{"https://shop.fr/bagues", 1, "https://shop.fr/bagues"},
		{"https://shop.fr/bagues", 2, "https://shop.fr/bagues?page=2"},
		{"https://shop.fr/bagues?sort=price", 3, "https://shop.fr/bagues?sort=price&page=3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageURL(tt.listing, tt.page))
	}
}

func TestURLPaginationStopsOnEmptyPage(t *testing.T) {
	f := &scriptedFetcher{handler: func(n int, url string, _ fetcher.FetchOptions) (string, error) {
		if n == 1 {
			return "Solitaire Aurore\nHalo Céleste", nil
		}
		return "", nil
	}}
	ex := &lineExtractor{}
	c, sleeps := newTestController(f, ex, DefaultOptions())

	result, err := c.Run(context.Background(), urlTarget(3, 30))
	require.NoError(t, err)

	require.Len(t, f.calls, 2)
	assert.Equal(t, "https://www.edenly.com/bague-fiancaille/", f.calls[0].url)
	assert.Equal(t, "https://www.edenly.com/bague-fiancaille/?page=2", f.calls[1].url)
	assert.Equal(t, fetcher.DismissCookiesJS, f.calls[0].opts.Scripts[0])
	assert.Equal(t, 5*time.Second, f.calls[0].opts.Wait)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, sleeps.durations)

	require.Len(t, result.Records, 2)
	assert.Equal(t, "Solitaire Aurore", result.Records[0].Name)
	assert.Equal(t, "Halo Céleste", result.Records[1].Name)
	assert.Equal(t, "Edenly", result.Records[0].Brand)
	assert.Equal(t, models.TierMid, result.Records[0].Tier)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.Usage.ExtractionCalls)
	assert.Equal(t, 240, result.Usage.TotalTokens)
	assert.Equal(t, 2, result.Usage.Records)
}

func TestURLPaginationStopsAtRecordCap(t *testing.T) {
	f := &scriptedFetcher{handler: func(n int, _ string, _ fetcher.FetchOptions) (string, error) {
		return "A\nB\nC", nil
	}}
	metrics := NewMetrics()
	opts := DefaultOptions()
	opts.Metrics = metrics
	c, sleeps := newTestController(f, &lineExtractor{}, opts)

	result, err := c.Run(context.Background(), urlTarget(3, 2))
	require.NoError(t, err)
	assert.Len(t, f.calls, 1)
	assert.Empty(t, sleeps.durations)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, models.DropCounts{OverCap: 1}, result.Dropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DroppedTotal.WithLabelValues("over_cap")))
}

func TestURLPaginationDedupesAcrossPages(t *testing.T) {
	pages := []string{"Rivage\nHalo", " halo \nTrilogie", "RIVAGE"}
	f := &scriptedFetcher{handler: func(n int, _ string, _ fetcher.FetchOptions) (string, error) {
		return pages[n-1], nil
	}}
	c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

	result, err := c.Run(context.Background(), urlTarget(3, 30))
	require.NoError(t, err)
	assert.Len(t, f.calls, 3)

	var got []string
	for _, r := range result.Records {
		got = append(got, r.Name)
	}
	assert.Equal(t, []string{"Rivage", "Halo", "Trilogie"}, got)
}

func TestURLPaginationFetchFailureStopsRun(t *testing.T) {
	f := &scriptedFetcher{handler: func(n int, _ string, _ fetcher.FetchOptions) (string, error) {
		if n == 2 {
			return "", fetcher.Timeout(context.DeadlineExceeded)
		}
		return "Eden", nil
	}}
	metrics := NewMetrics()
	opts := DefaultOptions()
	opts.Metrics = metrics
	c, _ := newTestController(f, &lineExtractor{}, opts)

	result, err := c.Run(context.Background(), urlTarget(3, 30))
	require.NoError(t, err)
	assert.Len(t, f.calls, 2)
	assert.Equal(t, 1, result.FetchFailures)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FetchesTotal.WithLabelValues("url")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsTotal.WithLabelValues("mid")))
}

func sessionTarget(style models.PaginationStyle, selector string) models.TargetConfig {
	return models.TargetConfig{
		Slug:             "boucheron",
		Name:             "Boucheron",
		Tier:             models.TierHigh,
		ListingURL:       "https://www.boucheron.com/fr/bagues-de-fiancailles",
		Pagination:       style,
		MaxPages:         5,
		MaxRecords:       30,
		Delay:            2 * time.Second,
		LoadMoreSelector: selector,
	}
}

func TestLoadMoreClicksInSessionUntilNothingNew(t *testing.T) {
	rounds := []string{
		"Quatre\nJack",
		"Quatre\nJack\nSerpent",
		"Quatre\nJack\nSerpent",
	}
	f := &scriptedFetcher{handler: func(n int, _ string, _ fetcher.FetchOptions) (string, error) {
		return rounds[n-1], nil
	}}
	c, sleeps := newTestController(f, &lineExtractor{}, DefaultOptions())

	result, err := c.Run(context.Background(), sessionTarget(models.PaginationLoadMore, "button.load-more"))
	require.NoError(t, err)

	require.Len(t, f.calls, 3)
	session := f.calls[0].opts.SessionID
	assert.True(t, strings.HasPrefix(session, "session_boucheron_"), session)
	assert.False(t, f.calls[0].opts.PageOnly)
	for _, call := range f.calls[1:] {
		assert.Equal(t, session, call.opts.SessionID)
		assert.True(t, call.opts.PageOnly)
		assert.Equal(t, 3*time.Second, call.opts.Wait)
		assert.Contains(t, call.opts.Scripts, fetcher.ClickJS("button.load-more"))
	}
	assert.Len(t, sleeps.durations, 2)
	assert.Equal(t, []string{session}, f.closed)
	assert.Len(t, result.Records, 3)
}

func TestLoadMoreWithoutSelectorFetchesOnce(t *testing.T) {
	f := &scriptedFetcher{handler: func(int, string, fetcher.FetchOptions) (string, error) {
		return "Quatre", nil
	}}
	c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

	result, err := c.Run(context.Background(), sessionTarget(models.PaginationLoadMore, ""))
	require.NoError(t, err)
	assert.Len(t, f.calls, 1)
	assert.Len(t, f.closed, 1)
	assert.Len(t, result.Records, 1)
}

func TestInfiniteScrollTearsDownSessionOnFailure(t *testing.T) {
	f := &scriptedFetcher{handler: func(n int, _ string, _ fetcher.FetchOptions) (string, error) {
		if n == 1 {
			return "Bague A\nBague B", nil
		}
		return "", fetcher.Render(errors.New("page crashed"))
	}}
	c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

	result, err := c.Run(context.Background(), sessionTarget(models.PaginationInfinite, ""))
	require.NoError(t, err)

	require.Len(t, f.calls, 2)
	assert.Contains(t, f.calls[1].opts.Scripts, fetcher.ScrollBottomJS)
	assert.Equal(t, []string{f.calls[0].opts.SessionID}, f.closed)
	assert.Equal(t, 1, result.FetchFailures)
	assert.Len(t, result.Records, 2)
}

func TestInfiniteScrollRespectsPageCap(t *testing.T) {
	f := &scriptedFetcher{handler: func(n int, _ string, _ fetcher.FetchOptions) (string, error) {
		var lines []string
		for i := 0; i < n; i++ {
			lines = append(lines, "Bague "+string(rune('A'+i)))
		}
		return strings.Join(lines, "\n"), nil
	}}
	c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

	target := sessionTarget(models.PaginationInfinite, "")
	target.MaxPages = 3
	result, err := c.Run(context.Background(), target)
	require.NoError(t, err)
	assert.Len(t, f.calls, 3)
	assert.Len(t, result.Records, 3)
}

func TestStaticEngineKeepsFirstPageForSessionStyles(t *testing.T) {
	for _, style := range []models.PaginationStyle{models.PaginationNone, models.PaginationLoadMore, models.PaginationInfinite} {
		t.Run(string(style), func(t *testing.T) {
			target := sessionTarget(style, "button.load-more")
			transport := httpmock.NewMockTransport()
			resp := httpmock.NewStringResponse(http.StatusOK, `<html><body><p>Quatre</p><p>Jack</p></body></html>`)
			resp.Header.Set("Content-Type", "text/html")
			transport.RegisterResponder("GET", target.ListingURL, httpmock.ResponderFromResponse(resp))

			f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: time.Second})
			f.WithTransport(transport)
			c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

			result, err := c.Run(context.Background(), target)
			require.NoError(t, err)
			assert.Equal(t, 1, transport.GetTotalCallCount())
			assert.Equal(t, 1, result.Pages)
			assert.Zero(t, result.FetchFailures)
			assert.Len(t, result.Records, 2)
		})
	}
}

func TestSinglePageFailureIsEmptyResult(t *testing.T) {
	f := &scriptedFetcher{handler: func(int, string, fetcher.FetchOptions) (string, error) {
		return "", fetcher.Classify(nil, 403)
	}}
	c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

	target := sessionTarget(models.PaginationNone, "")
	result, err := c.Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, 1, result.FetchFailures)
	assert.Empty(t, f.closed)
}

func TestUnknownPaginationStyle(t *testing.T) {
	c, _ := newTestController(&scriptedFetcher{}, &lineExtractor{}, DefaultOptions())
	_, err := c.Run(context.Background(), sessionTarget("carousel", ""))
	assert.Error(t, err)
}

func TestRunCancelledDuringDelay(t *testing.T) {
	f := &scriptedFetcher{handler: func(int, string, fetcher.FetchOptions) (string, error) {
		return "A", nil
	}}
	c := NewController(f, &lineExtractor{}, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, urlTarget(3, 30))
	assert.ErrorIs(t, err, context.Canceled)
}

type stubExtractor struct {
	out   models.Extraction
	err   error
	calls int
}

func (s *stubExtractor) Extract(context.Context, string, string) (models.Extraction, error) {
	s.calls++
	return s.out, s.err
}

func TestFallbackExtractor(t *testing.T) {
	ai := &stubExtractor{out: models.Extraction{
		Candidates: []models.RawCandidate{{Name: "From AI"}},
		Usage:      models.TokenUsage{Calls: 1, PromptTokens: 50},
	}}
	fb := FallbackExtractor{Primary: extractor.Structural{}, Fallback: ai}

	doc := "**[Solitaire Aurore](https://shop.fr/produit/aurore)**\n1 990 €"
	got, err := fb.Extract(context.Background(), doc, "")
	require.NoError(t, err)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "Solitaire Aurore", got.Candidates[0].Name)
	assert.Zero(t, ai.calls)

	got, err = fb.Extract(context.Background(), "nothing to see", "")
	require.NoError(t, err)
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, "From AI", got.Candidates[0].Name)
	assert.Equal(t, 1, got.Usage.Calls)

	structuralOnly := FallbackExtractor{Primary: extractor.Structural{}}
	got, err = structuralOnly.Extract(context.Background(), "nothing to see", "")
	require.NoError(t, err)
	assert.Empty(t, got.Candidates)
}

type fakeEnricher struct {
	got []models.RawCandidate
}

func (e *fakeEnricher) Enrich(_ context.Context, cands []models.RawCandidate) ([]models.RawCandidate, enrich.Report) {
	e.got = cands
	out := make([]models.RawCandidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].ImageURLs = []string{"https://cdn.shop.fr/" + strings.ToLower(out[i].Name) + ".jpg"}
	}
	return out, enrich.Report{Attempted: len(cands), Failed: 1}
}

type fakeImages struct {
	slug string
}

func (f *fakeImages) Download(_ context.Context, slug string, records []models.CanonicalRecord) (downloader.Report, error) {
	f.slug = slug
	for i := range records {
		for j := range records[i].Images {
			p := "/img/" + records[i].Images[j].URL
			records[i].Images[j].LocalPath = &p
		}
	}
	return downloader.Report{Downloaded: len(records)}, nil
}

func TestRunEnrichesAfterCapAndStoresImages(t *testing.T) {
	f := &scriptedFetcher{handler: func(int, string, fetcher.FetchOptions) (string, error) {
		return "A\nB\nC", nil
	}}
	enricher := &fakeEnricher{}
	images := &fakeImages{}
	opts := DefaultOptions()
	opts.Enricher = enricher
	opts.Images = images
	c, _ := newTestController(f, &lineExtractor{}, opts)

	target := sessionTarget(models.PaginationNone, "")
	target.MaxRecords = 2
	target.CrawlDetailPages = true
	result, err := c.Run(context.Background(), target)
	require.NoError(t, err)

	assert.Len(t, enricher.got, 2)
	assert.Equal(t, "boucheron", images.slug)
	require.Len(t, result.Records, 2)
	require.Len(t, result.Records[0].Images, 1)
	assert.NotNil(t, result.Records[0].Images[0].LocalPath)
	assert.Equal(t, 2, result.EnrichAttempted)
	assert.Equal(t, 1, result.EnrichFailures)
	assert.Equal(t, 2, result.ImagesDownloaded)
}

func TestRunSkipsEnrichmentWhenDisabled(t *testing.T) {
	f := &scriptedFetcher{handler: func(int, string, fetcher.FetchOptions) (string, error) {
		return "A", nil
	}}
	enricher := &fakeEnricher{}
	opts := DefaultOptions()
	opts.Enricher = enricher
	c, _ := newTestController(f, &lineExtractor{}, opts)

	_, err := c.Run(context.Background(), sessionTarget(models.PaginationNone, ""))
	require.NoError(t, err)
	assert.Nil(t, enricher.got)
}

func TestPromptHelpers(t *testing.T) {
	prompt := `Trouve les solitaires sur https://www.gemmyo.com/bagues?x=1 et "https://courbet.com/catalogue".`
	assert.Equal(t, []string{"https://www.gemmyo.com/bagues?x=1", "https://courbet.com/catalogue"}, PromptURLs(prompt))

	assert.Equal(t, "Gemmyo", BrandFromURL("https://www.gemmyo.com/bagues"))
	assert.Equal(t, "Courbet", BrandFromURL("https://courbet.com/catalogue"))
	assert.Equal(t, "Unknown", BrandFromURL("not a url"))
}

func TestAsk(t *testing.T) {
	f := &scriptedFetcher{handler: func(_ int, url string, _ fetcher.FetchOptions) (string, error) {
		if strings.Contains(url, "courbet") {
			return "Eden\nSolitaire Aurore", nil
		}
		return "Solitaire Aurore\nHalo", nil
	}}
	c, _ := newTestController(f, &lineExtractor{}, DefaultOptions())

	result, err := c.Ask(context.Background(), "compare https://www.gemmyo.com/bagues and https://www.courbet.com/bagues", "find rings")
	require.NoError(t, err)

	assert.Len(t, f.calls, 2)
	assert.Equal(t, "gemmyo", result.Target)
	require.Len(t, result.Records, 3)
	for _, r := range result.Records {
		assert.Equal(t, "Gemmyo", r.Brand)
		assert.Equal(t, models.TierMid, r.Tier)
	}

	_, err = c.Ask(context.Background(), "no links here", "")
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestRunTier(t *testing.T) {
	f := &scriptedFetcher{handler: func(_ int, url string, _ fetcher.FetchOptions) (string, error) {
		if strings.Contains(url, "broken") {
			return "", &fetcher.Error{Kind: fetcher.KindConnection, Err: errors.New("refused")}
		}
		return "Bague 1\nBague 2\nBague 3", nil
	}}
	c, sleeps := newTestController(f, &lineExtractor{}, DefaultOptions())

	dir := t.TempDir()
	targets := []models.TargetConfig{
		{Slug: "maty", Name: "Maty", Tier: models.TierLow, ListingURL: "https://www.maty.com/bagues", Pagination: models.PaginationNone, MaxPages: 1, MaxRecords: 30},
		{Slug: "broken", Name: "Broken", Tier: models.TierLow, ListingURL: "https://broken.test/", Pagination: models.PaginationNone, MaxPages: 1, MaxRecords: 30},
		{Slug: "cleor", Name: "Cleor", Tier: models.TierLow, ListingURL: "https://www.cleor.com/bagues", Pagination: "bogus", MaxPages: 1, MaxRecords: 30},
	}
	report, err := c.RunTier(context.Background(), TierRun{
		Tier:        models.TierLow,
		Targets:     targets,
		TargetDelay: 5 * time.Second,
		MaxRecords:  2,
		OutputDir:   dir,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Len(t, report.Results[0].Records, 2)
	assert.True(t, report.Results[1].Empty())
	assert.True(t, report.Results[2].Empty())
	assert.Len(t, report.Records, 2)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps.durations)
	assert.Equal(t, 1, report.Usage.ExtractionCalls)
	assert.InDelta(t, 120*0.006/1000, report.EstimatedCostUSD(), 1e-12)

	for _, name := range []string{"maty.json", "broken.json", "cleor.json", "all_low.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	combined, err := pipeline.ReadRecords(pipeline.TierFile(dir, models.TierLow))
	require.NoError(t, err)
	assert.Len(t, combined, 2)

	assert.Equal(t, 30, targets[0].MaxRecords, "registry values must not change")
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncFetch(models.PaginationURL)
	m.ObserveDuration(time.Second)
	m.AddCandidates(3)
	m.AddRecords(models.TierLow, 1)
	m.IncError("timeout")
	m.AddTokens(models.TokenUsage{PromptTokens: 1})
	m.AddEnrichments("ok", 1)
	m.AddImages("failed", 1)
}

func TestMetricsTokens(t *testing.T) {
	m := NewMetrics()
	m.AddTokens(models.TokenUsage{Calls: 1, PromptTokens: 100, CompletionTokens: 25})
	assert.Equal(t, 100.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("prompt")))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("completion")))
}
