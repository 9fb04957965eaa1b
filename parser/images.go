package parser

import (
	"regexp"
	"strings"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// decorativeImageRe matches UI chrome, banners, social badges and editorial
// photography. It is the one blocklist shared by the structural extractor,
// the detail-page enricher and the normalizer.
var decorativeImageRe = regexp.MustCompile(`(?i)` +
	`swatch|picto|icon|logo|flag|payment|sprite|pixel|spacer|` +
	`dropdown|banner|slider|hero|lifestyle|editorial|model|portrait|` +
	`artisanat|engagements?-def|pierres?-def|collections?[-_](?:dropdown|banner)|` +
	`newsletter|social|instagram|facebook|twitter|youtube|pinterest|` +
	`badge|label|tag|overlay|placeholder|loading|lazy|` +
	`wysiwyg|cms[-_]|block[-_]|widget|footer|header|nav[-_]|menu|` +
	`/theme/images/|/build/.*?/images/|gems\.jpg|house\.jpg|shops\.jpg|` +
	`contentmanager/content/|offres[-_]specials|push-mobile|push-desktop|` +
	`promo[-_]banner|promotional[-_]`)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".avif"}

// IsProductImage reports whether url looks like a product photo rather than
// a decorative asset.
func IsProductImage(url string) bool {
	return !decorativeImageRe.MatchString(url)
}

// IsImageURL reports whether the path of url ends in a known image extension.
func IsImageURL(url string) bool {
	low := strings.ToLower(url)
	if idx := strings.IndexAny(low, "?#"); idx >= 0 {
		low = low[:idx]
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(low, ext) {
			return true
		}
	}
	return false
}

// IsAbsoluteURL reports whether url carries an http(s) scheme.
func IsAbsoluteURL(url string) bool {
	low := strings.ToLower(url)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

// FilterImages keeps absolute, non-decorative URLs, drops repeats, truncates
// to max and assigns positions 0..k-1.
func FilterImages(urls []string, max int) []models.Image {
	if max <= 0 {
		max = models.MaxImagesPerRecord
	}
	images := make([]models.Image, 0, max)
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		url := strings.TrimSpace(raw)
		if url == "" || !IsAbsoluteURL(url) || !IsProductImage(url) {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		images = append(images, models.Image{URL: url, Position: len(images)})
		if len(images) >= max {
			break
		}
	}
	return images
}
