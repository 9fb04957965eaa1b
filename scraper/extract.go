package scraper

import (
	"context"
	"log/slog"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// Extractor turns page text into candidates. instruction may be empty.
type Extractor interface {
	Extract(ctx context.Context, text, instruction string) (models.Extraction, error)
}

// FallbackExtractor runs Primary first and consults Fallback only when
// Primary found nothing. A nil Fallback disables the second step.
type FallbackExtractor struct {
	Primary  Extractor
	Fallback Extractor
}

// Extract returns Primary's candidates, or Fallback's with both usages summed.
func (f FallbackExtractor) Extract(ctx context.Context, text, instruction string) (models.Extraction, error) {
	out, err := f.Primary.Extract(ctx, text, instruction)
	if err == nil && len(out.Candidates) > 0 {
		return out, nil
	}
	if f.Fallback == nil {
		return out, err
	}
	if err != nil {
		slog.Debug("primary extractor failed, falling back", slog.Any("error", err))
	}

	fb, fbErr := f.Fallback.Extract(ctx, text, instruction)
	fb.Usage.Add(out.Usage)
	return fb, fbErr
}
