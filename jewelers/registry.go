// Package jewelers is the static registry of crawl targets.
package jewelers

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aluiziolira/go-ring-crawler/models"
)

var (
	// ErrUnknownTarget is returned for a slug missing from the registry.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrInvalidTier is returned for a tier name other than low, mid, high or all.
	ErrInvalidTier = errors.New("invalid tier")
)

const (
	defaultMaxPages    = 5
	urlStyleMaxPages   = 3
	defaultMaxRecords  = 30
	loadMoreSelector   = "button.load-more, .show-more"
	loadMoreButtonOnly = "button.load-more, .show-more button"
)

var registry = []models.TargetConfig{
	// High tier
	target("cartier", "Cartier", models.TierHigh, "https://www.cartier.com/fr-fr/bijoux/bagues/bagues-de-fiancailles/", models.PaginationInfinite, 3*time.Second, ""),
	target("van-cleef-arpels", "Van Cleef & Arpels", models.TierHigh, "https://www.vancleefarpels.com/fr/fr/collections/engagement/engagement-rings.html", models.PaginationNone, 3*time.Second, ""),
	target("boucheron", "Boucheron", models.TierHigh, "https://www.boucheron.com/fr/bagues-de-fiancailles", models.PaginationLoadMore, 2500*time.Millisecond, "button.load-more, button[data-action='load-more'], .show-more button"),
	target("chaumet", "Chaumet", models.TierHigh, "https://www.chaumet.com/fr_fr/mariage/bagues-de-fiancailles", models.PaginationLoadMore, 2500*time.Millisecond, loadMoreButtonOnly),
	target("messika", "Messika", models.TierHigh, "https://www.messika.com/fr/joaillerie/categories/bague-diamant", models.PaginationLoadMore, 2500*time.Millisecond, "button.load-more, .load-more-btn"),
	target("mauboussin", "Mauboussin", models.TierHigh, "https://www.mauboussin.fr/fr/mariage/categories/solitaires.html", models.PaginationURL, 2*time.Second, ""),
	target("fred", "Fred", models.TierHigh, "https://www.fred.com/fr/categories/categories/bagues/", models.PaginationNone, 3*time.Second, ""),
	target("piaget", "Piaget", models.TierHigh, "https://www.piaget.com/fr-fr/joaillerie/bagues-de-fiancailles", models.PaginationLoadMore, 3*time.Second, loadMoreSelector),
	target("bulgari", "Bulgari", models.TierHigh, "https://www.bulgari.com/fr-fr/fiancailles-et-mariage", models.PaginationLoadMore, 3*time.Second, loadMoreButtonOnly),
	target("chopard", "Chopard", models.TierHigh, "https://www.chopard.com/fr-fr/joaillerie/bagues.html", models.PaginationLoadMore, 3*time.Second, loadMoreSelector),

	// Mid tier
	target("gemmyo", "Gemmyo", models.TierMid, "https://www.gemmyo.com/mariage/bagues-de-fiancailles.html", models.PaginationInfinite, 2*time.Second, ""),
	target("courbet", "Courbet", models.TierMid, "https://www.courbet.com/catalogue/bagues-de-fiancailles", models.PaginationNone, 2*time.Second, ""),
	target("edenly", "Edenly", models.TierMid, "https://www.edenly.com/bague-fiancaille/", models.PaginationURL, 1500*time.Millisecond, ""),
	target("or-du-monde", "Or du Monde", models.TierMid, "https://www.ordumonde.com/collections/bagues-de-fiancailles", models.PaginationNone, 2*time.Second, ""),
	target("didier-guerin", "Didier Guerin", models.TierMid, "https://www.didierguerin.com/bagues-de-fiancailles/", models.PaginationURL, 2*time.Second, ""),
	target("celinni", "Celinni", models.TierMid, "https://www.celinni.com/bague-de-fiancailles.html", models.PaginationURL, 2*time.Second, ""),
	target("myel", "Myel", models.TierMid, "https://www.myeldesign.com/fr/collections/engagement-rings", models.PaginationNone, 2*time.Second, ""),
	target("innocent-stone", "Innocent Stone", models.TierMid, "https://www.innocent-stone.fr/collections/bagues-de-fiancailles", models.PaginationNone, 2*time.Second, ""),
	target("djula", "Djula", models.TierMid, "https://www.djula.fr/collections/bagues-de-fiancailles", models.PaginationNone, 2*time.Second, ""),
	target("poiray", "Poiray", models.TierMid, "https://www.poiray.com/fr/bijoux/bagues", models.PaginationNone, 2500*time.Millisecond, ""),

	// Low tier
	target("histoire-dor", "Histoire d'Or", models.TierLow, "https://www.histoiredor.com/bagues/bagues-de-fiancailles", models.PaginationLoadMore, 1500*time.Millisecond, loadMoreSelector),
	target("julien-dorcel", "Julien d'Orcel", models.TierLow, "https://www.julien-dorcel.com/bagues-fiancailles.html", models.PaginationURL, 1500*time.Millisecond, ""),
	target("maty", "Maty", models.TierLow, "https://www.maty.com/bagues-fiancailles-V00028.html", models.PaginationURL, 1500*time.Millisecond, ""),
	target("cleor", "Cleor", models.TierLow, "https://www.cleor.com/bagues/bagues-de-fiancailles", models.PaginationLoadMore, 1500*time.Millisecond, loadMoreSelector),
	target("bijourama", "Bijourama", models.TierLow, "https://www.bijourama.com/bagues-fiancailles.html", models.PaginationURL, 1500*time.Millisecond, ""),
	target("diamant-unique", "Diamant Unique", models.TierLow, "https://www.diamant-unique.com/17-bague-de-fiancailles", models.PaginationURL, 1500*time.Millisecond, ""),
	target("adamence", "Adamence", models.TierLow, "https://www.adamence.com/bague-fiancailles.htm", models.PaginationURL, 1500*time.Millisecond, ""),
	target("juwelo", "Juwelo", models.TierLow, "https://www.juwelo.fr/bagues/bagues-de-fiancailles/", models.PaginationURL, 1500*time.Millisecond, ""),
	target("bijouterie-online", "Bijouterie Online", models.TierLow, "https://www.bijouterie-online.com/bagues-fiancailles.html", models.PaginationURL, 1500*time.Millisecond, ""),
	target("le-manege-a-bijoux", "Le Manege a Bijoux", models.TierLow, "https://www.lemanegeabijoux.com/bagues/fiancailles", models.PaginationLoadMore, 1500*time.Millisecond, loadMoreSelector),
}

func target(slug, name string, tier models.Tier, listing string, style models.PaginationStyle, delay time.Duration, selector string) models.TargetConfig {
	u, err := url.Parse(listing)
	if err != nil || u.Host == "" {
		panic(fmt.Sprintf("jewelers: bad listing url for %s: %q", slug, listing))
	}
	maxPages := defaultMaxPages
	if style == models.PaginationURL {
		maxPages = urlStyleMaxPages
	}
	return models.TargetConfig{
		Slug:             slug,
		Name:             name,
		Tier:             tier,
		BaseURL:          u.Scheme + "://" + u.Host,
		ListingURL:       listing,
		Pagination:       style,
		MaxPages:         maxPages,
		MaxRecords:       defaultMaxRecords,
		Delay:            delay,
		LoadMoreSelector: selector,
		CrawlDetailPages: true,
	}
}

// All returns every target in registry order.
func All() []models.TargetConfig {
	return slices.Clone(registry)
}

// BySlug looks up one target.
func BySlug(slug string) (models.TargetConfig, error) {
	key := strings.ToLower(strings.TrimSpace(slug))
	for _, t := range registry {
		if t.Slug == key {
			return t, nil
		}
	}
	return models.TargetConfig{}, fmt.Errorf("%w: %q", ErrUnknownTarget, slug)
}

// ByTier returns the targets of one tier in registry order.
func ByTier(tier models.Tier) []models.TargetConfig {
	var out []models.TargetConfig
	for _, t := range registry {
		if t.Tier == tier {
			out = append(out, t)
		}
	}
	return out
}

// ParseTier parses "low", "mid" or "high". "all" yields every tier, high first.
func ParseTier(name string) ([]models.Tier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(models.TierLow):
		return []models.Tier{models.TierLow}, nil
	case string(models.TierMid):
		return []models.Tier{models.TierMid}, nil
	case string(models.TierHigh):
		return []models.Tier{models.TierHigh}, nil
	case "all":
		return []models.Tier{models.TierHigh, models.TierMid, models.TierLow}, nil
	}
	return nil, fmt.Errorf("%w: %q (want low, mid, high or all)", ErrInvalidTier, name)
}

// Slugs lists every registered slug.
func Slugs() []string {
	out := make([]string, 0, len(registry))
	for _, t := range registry {
		out = append(out, t.Slug)
	}
	return out
}
