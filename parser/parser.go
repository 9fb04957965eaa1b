package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// ValidateCandidate ensures an extractor captured the required fields.
func ValidateCandidate(c *models.RawCandidate) error {
	if c == nil {
		return fmt.Errorf("candidate is nil")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("candidate missing name")
	}
	return nil
}

// Normalize converts a raw candidate into a canonical record. brand, tier and
// sourceURL fill in when the candidate lacks a name or product URL.
func Normalize(raw models.RawCandidate, brand string, tier models.Tier, sourceURL string, maxImages int) models.CanonicalRecord {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = brand + " Ring"
	}
	source := strings.TrimSpace(raw.ProductURL)
	if source == "" {
		source = sourceURL
	}
	sizes := make([]string, 0, len(raw.Sizes))
	for _, size := range raw.Sizes {
		if size = strings.TrimSpace(size); size != "" {
			sizes = append(sizes, size)
		}
	}

	return models.CanonicalRecord{
		Name:           name,
		Description:    optional(raw.Description),
		MetalType:      NormalizeMetal(raw.Metal),
		StoneType:      NormalizeStone(raw.Stone),
		CaratWeight:    ParseCarat(raw.Carat),
		Style:          NormalizeStyle(raw.Style),
		Rating:         ParseRating(raw.Rating),
		ReviewCount:    ParseReviewCount(raw.ReviewCount),
		Images:         FilterImages(raw.ImageURLs, maxImages),
		PriceEUR:       ParsePrice(raw.Price),
		Brand:          brand,
		Collection:     optional(raw.Collection),
		Certification:  optional(raw.Certification),
		SizesAvailable: sizes,
		SourceURL:      source,
		Tier:           tier,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
