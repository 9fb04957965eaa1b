package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry         *prometheus.Registry
	FetchesTotal     *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	CandidatesTotal  prometheus.Counter
	DroppedTotal     *prometheus.CounterVec
	RecordsTotal     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	TokensTotal      *prometheus.CounterVec
	EnrichmentsTotal *prometheus.CounterVec
	ImagesTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_fetches_total",
			Help: "Total page fetches issued, by pagination style.",
		},
		[]string{"style"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ringcrawler_fetch_duration_seconds",
			Help:    "Latency of page fetches including the settle wait.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40},
		},
	)
	candidates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ringcrawler_candidates_extracted_total",
			Help: "Total candidate records returned by extractors.",
		},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_candidates_dropped_total",
			Help: "Candidates removed before normalization, by reason.",
		},
		[]string{"reason"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_records_total",
			Help: "Total normalized records produced, by tier.",
		},
		[]string{"tier"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_errors_total",
			Help: "Total number of crawl errors by type.",
		},
		[]string{"error_type"},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_extraction_tokens_total",
			Help: "Tokens consumed by AI extraction, by kind.",
		},
		[]string{"kind"},
	)
	enrichments := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_enrichments_total",
			Help: "Detail page enrichment attempts by outcome.",
		},
		[]string{"outcome"},
	)
	images := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringcrawler_images_total",
			Help: "Image downloads by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(fetches, fetchDuration, candidates, dropped, records, errorsTotal, tokens, enrichments, images)

	return &Metrics{
		Registry:         registry,
		FetchesTotal:     fetches,
		FetchDuration:    fetchDuration,
		CandidatesTotal:  candidates,
		DroppedTotal:     dropped,
		RecordsTotal:     records,
		ErrorsTotal:      errorsTotal,
		TokensTotal:      tokens,
		EnrichmentsTotal: enrichments,
		ImagesTotal:      images,
	}
}

// IncFetch increments the fetch counter for a pagination style.
func (m *Metrics) IncFetch(style models.PaginationStyle) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(string(style)).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddCandidates adds n extracted candidates.
func (m *Metrics) AddCandidates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.Add(float64(n))
}

// AddRecords adds n normalized records for tier.
func (m *Metrics) AddRecords(tier models.Tier, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(string(tier)).Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddTokens records extraction token usage.
func (m *Metrics) AddTokens(u models.TokenUsage) {
	if m == nil {
		return
	}
	if u.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	}
	if u.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	}
}

// AddDropped records candidates removed before normalization.
func (m *Metrics) AddDropped(d models.DropCounts) {
	if m == nil {
		return
	}
	for reason, n := range map[string]int{"invalid": d.Invalid, "duplicate": d.Duplicate, "over_cap": d.OverCap} {
		if n > 0 {
			m.DroppedTotal.WithLabelValues(reason).Add(float64(n))
		}
	}
}

// AddEnrichments adds n enrichment outcomes.
func (m *Metrics) AddEnrichments(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EnrichmentsTotal.WithLabelValues(outcome).Add(float64(n))
}

// AddImages adds n image download outcomes.
func (m *Metrics) AddImages(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImagesTotal.WithLabelValues(outcome).Add(float64(n))
}
