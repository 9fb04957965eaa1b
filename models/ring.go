// Package models defines data structures for the crawler.
package models

import "time"

// MaxImagesPerRecord caps the images kept on a normalized record.
const MaxImagesPerRecord = 3

// MetalType is the closed metal vocabulary.
type MetalType string

const (
	MetalYellowGold MetalType = "YELLOW_GOLD"
	MetalWhiteGold  MetalType = "WHITE_GOLD"
	MetalRoseGold   MetalType = "ROSE_GOLD"
	MetalPlatinum   MetalType = "PLATINUM"
	MetalSilver     MetalType = "SILVER"
)

// StoneType is the closed stone vocabulary.
type StoneType string

const (
	StoneDiamond    StoneType = "DIAMOND"
	StoneSapphire   StoneType = "SAPPHIRE"
	StoneEmerald    StoneType = "EMERALD"
	StoneRuby       StoneType = "RUBY"
	StoneMoissanite StoneType = "MOISSANITE"
	StoneMorganite  StoneType = "MORGANITE"
	StoneNone       StoneType = "NONE"
)

// RingStyle is the closed setting-style vocabulary.
type RingStyle string

const (
	StyleSolitaire  RingStyle = "SOLITAIRE"
	StyleHalo       RingStyle = "HALO"
	StyleVintage    RingStyle = "VINTAGE"
	StylePave       RingStyle = "PAVE"
	StyleThreeStone RingStyle = "THREE_STONE"
	StyleCluster    RingStyle = "CLUSTER"
	StyleEternity   RingStyle = "ETERNITY"
	StyleTension    RingStyle = "TENSION"
	StyleCathedral  RingStyle = "CATHEDRAL"
	StyleBezel      RingStyle = "BEZEL"
)

// Tier groups targets for reporting.
type Tier string

const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// PaginationStyle is how a target reveals further results.
type PaginationStyle string

const (
	PaginationURL      PaginationStyle = "url"
	PaginationLoadMore PaginationStyle = "load_more"
	PaginationInfinite PaginationStyle = "infinite"
	PaginationNone     PaginationStyle = "none"
)

// RawCandidate is an unvalidated product record straight out of an extractor.
// Empty strings mean the field was not found.
type RawCandidate struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Price         string   `json:"price,omitempty"`
	Metal         string   `json:"metal,omitempty"`
	Stone         string   `json:"stone,omitempty"`
	Carat         string   `json:"carat,omitempty"`
	Style         string   `json:"style,omitempty"`
	Collection    string   `json:"collection,omitempty"`
	Rating        string   `json:"rating,omitempty"`
	ReviewCount   string   `json:"review_count,omitempty"`
	Certification string   `json:"certification,omitempty"`
	ImageURLs     []string `json:"image_urls"`
	ProductURL    string   `json:"product_url,omitempty"`
	Sizes         []string `json:"sizes"`
}

// Image is one photo of a record. Position defines display order.
type Image struct {
	URL       string  `json:"url"`
	LocalPath *string `json:"local_path"`
	CDNURL    *string `json:"cdn_url"`
	Position  int     `json:"position"`
}

// CanonicalRecord is the normalized, typed ring record.
type CanonicalRecord struct {
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	MetalType      MetalType `json:"metal_type"`
	StoneType      StoneType `json:"stone_type"`
	CaratWeight    float64   `json:"carat_weight"`
	Style          RingStyle `json:"style"`
	Rating         float64   `json:"rating"`
	ReviewCount    int       `json:"review_count"`
	Images         []Image   `json:"images"`
	PriceEUR       *float64  `json:"price_eur"`
	Brand          string    `json:"brand"`
	Collection     *string   `json:"collection"`
	Certification  *string   `json:"certification"`
	SizesAvailable []string  `json:"sizes_available"`
	SourceURL      string    `json:"source_url"`
	Tier           Tier      `json:"tier"`
}

// TargetConfig describes one storefront. Values are shared read-only; use
// WithMaxRecords for a per-run override.
type TargetConfig struct {
	Slug             string
	Name             string
	Tier             Tier
	BaseURL          string
	ListingURL       string
	Pagination       PaginationStyle
	MaxPages         int
	MaxRecords       int
	Delay            time.Duration
	LoadMoreSelector string
	CrawlDetailPages bool
}

// WithMaxRecords returns a copy of t with its record cap replaced.
func (t TargetConfig) WithMaxRecords(n int) TargetConfig {
	if n > 0 {
		t.MaxRecords = n
	}
	return t
}

// TokenUsage is the usage metadata reported by one or more extraction calls.
type TokenUsage struct {
	Calls            int `json:"calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Calls += other.Calls
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Extraction is what an extractor returns for one document.
type Extraction struct {
	Candidates []RawCandidate
	Usage      TokenUsage
}

// UsageStats tracks extraction cost for one target run.
type UsageStats struct {
	ExtractionCalls  int `json:"extraction_calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Records          int `json:"records"`
}

// AddUsage folds per-call usage metadata into the run totals.
func (s *UsageStats) AddUsage(u TokenUsage) {
	s.ExtractionCalls += u.Calls
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
}

// CrawlResult holds the outcome of one target run.
type CrawlResult struct {
	Target           string
	Records          []CanonicalRecord
	Usage            UsageStats
	Pages            int
	FetchFailures    int
	Dropped          DropCounts
	EnrichAttempted  int
	EnrichFailures   int
	ImagesDownloaded int
	DownloadFailures int
	StartTime        time.Time
	EndTime          time.Time
}

// DropCounts counts candidates removed before normalization.
type DropCounts struct {
	Invalid   int
	Duplicate int
	OverCap   int
}

// Total is the number of dropped candidates.
func (d DropCounts) Total() int {
	return d.Invalid + d.Duplicate + d.OverCap
}

// Empty reports whether the run finished without producing records.
func (r *CrawlResult) Empty() bool {
	return r == nil || len(r.Records) == 0
}
