package pipeline

import (
	"strings"
	"sync"

	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/parser"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.CanonicalRecord) error
	Close() error
	Validate() error
}

// Pipeline validates, de-duplicates, caps and normalizes the candidates of
// one target run. Order is preserved at every step.
type Pipeline struct {
	maxImages int
	metrics   *metrics
}

// NewPipeline builds a pipeline keeping at most maxImages images per record.
func NewPipeline(maxImages int) *Pipeline {
	if maxImages <= 0 {
		maxImages = models.MaxImagesPerRecord
	}
	return &Pipeline{
		maxImages: maxImages,
		metrics:   &metrics{},
	}
}

// DedupeKey is the identity used to collapse repeated candidates.
func DedupeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Dedupe keeps the first candidate for each DedupeKey. Applying it to its
// own output returns the same list.
func Dedupe(candidates []models.RawCandidate) []models.RawCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]models.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := DedupeKey(c.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Select drops invalid and duplicate candidates, then truncates to limit.
// A non-positive limit keeps everything.
func (p *Pipeline) Select(candidates []models.RawCandidate, limit int) []models.RawCandidate {
	valid := make([]models.RawCandidate, 0, len(candidates))
	for i := range candidates {
		if err := parser.ValidateCandidate(&candidates[i]); err != nil {
			p.metrics.drop(func(d *models.DropCounts) { d.Invalid++ })
			continue
		}
		valid = append(valid, candidates[i])
	}

	unique := Dedupe(valid)
	if dropped := len(valid) - len(unique); dropped > 0 {
		p.metrics.drop(func(d *models.DropCounts) { d.Duplicate += dropped })
	}

	if limit > 0 && len(unique) > limit {
		over := len(unique) - limit
		p.metrics.drop(func(d *models.DropCounts) { d.OverCap += over })
		unique = unique[:limit]
	}
	return unique
}

// Normalize converts candidates into canonical records for brand and tier.
// sourceURL backfills records without a product URL.
func (p *Pipeline) Normalize(candidates []models.RawCandidate, brand string, tier models.Tier, sourceURL string) []models.CanonicalRecord {
	out := make([]models.CanonicalRecord, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, parser.Normalize(c, brand, tier, sourceURL, p.maxImages))
		p.metrics.incrementProcessed()
	}
	return out
}

// Dropped returns the candidates Select removed so far, by reason.
func (p *Pipeline) Dropped() models.DropCounts {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()
	return p.metrics.dropped
}

// Processed returns how many records Normalize produced so far.
func (p *Pipeline) Processed() int {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()
	return p.metrics.processed
}

type metrics struct {
	mu        sync.Mutex
	processed int
	dropped   models.DropCounts
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) drop(update func(*models.DropCounts)) {
	m.mu.Lock()
	update(&m.dropped)
	m.mu.Unlock()
}
