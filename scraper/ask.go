package scraper

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// ErrNoURLs is returned by Ask when the prompt names no page to visit.
var ErrNoURLs = errors.New("prompt contains no http(s) url")

var promptURLRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// PromptURLs lists the http(s) URLs of a free-form prompt in order.
func PromptURLs(prompt string) []string {
	return promptURLRe.FindAllString(prompt, -1)
}

// BrandFromURL derives a display brand from a URL host: "www." is dropped
// and the first label is title-cased.
func BrandFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "Unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return "Unknown"
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + label[size:]
}

// Ask fetches every URL found in prompt as a single page, extracts with
// instruction and merges the candidates into one mid-tier result branded
// after the first URL. The controller's own instruction is ignored.
func (c *Controller) Ask(ctx context.Context, prompt, instruction string) (*models.CrawlResult, error) {
	urls := PromptURLs(prompt)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	brand := BrandFromURL(urls[0])
	target := models.TargetConfig{
		Slug:             strings.ToLower(brand),
		Name:             brand,
		Tier:             models.TierMid,
		ListingURL:       urls[0],
		Pagination:       models.PaginationNone,
		MaxPages:         1,
		CrawlDetailPages: true,
	}

	run := *c
	run.opts.Instruction = instruction

	result := &models.CrawlResult{Target: target.Slug, StartTime: time.Now()}
	acc := newAccumulator()
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc.add(run.step(ctx, target, u, run.navigate(), result))
	}
	if err := run.finish(ctx, target, acc.items, result); err != nil {
		return nil, err
	}
	return result, nil
}
