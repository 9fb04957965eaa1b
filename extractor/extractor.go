// Package extractor recovers product records from rendered page markdown
// using line-scanning heuristics. It never touches the network.
package extractor

import (
	"context"
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/parser"
)

const (
	lookaheadLines      = 10
	maxCandidateImages  = 10
	minNameLen          = 3
	maxPlainNameLen     = 80
	maxNameLen          = 100
	defaultDetailImages = models.MaxImagesPerRecord
)

var (
	// "1 995 €", "3,450€", "À partir de 2 330 €"
	priceRe = regexp.MustCompile(`(?i)(?:(?:à|a)\s+partir\s+de\s+|from\s+)?\d[\d\s\x{00a0}\x{202f}.,]*\s*(?:€|eur\b)`)

	// ![alt](url)
	imageRe = regexp.MustCompile(`!\[([^\]]*)\]\((https?://[^)\s]+)\)`)

	// ...](url): closing half of a link or an image reference.
	linkTargetRe = regexp.MustCompile(`\]\((https?://[^)\s]+)\)`)

	// **[ Name ](url)**
	boldLinkRe = regexp.MustCompile(`\*\*\[\s*(.+?)\s*\]\((https?://[^)\s]+)\)\s*\*\*`)

	junkNameRe = regexp.MustCompile(`(?i)^(background|layer|voir tous?|toutes? les|accueil|paramètre|` +
		`compte|contactez|livraison|copyright|newsletter|inscription|` +
		`nous contacter|mon compte|panier|aide|faq|cgv|mentions|` +
		`les styles|les pierres|les diamants|solitaires? (entourés?|épaulés?|pavés?)|` +
		`solitaires?$|nouvelles? créations?|disponibles? immédiatement|` +
		`alliances?$|horlogerie|nos boutiques|service client|` +
		`suivez-nous|nouveauté|nos collections|découvrir|` +
		`grandes collections|bijoux mixtes|montres|` +
		`créer votre|personnaliser|filtrer|trier|résultats?|` +
		`en savoir plus|voir le produit|ajouter|retour|` +
		`shop all|view all|sign in|my account|sort by|load more)`)
)

var navSignals = []string{
	"voir tout", "toutes les", "accueil", "panier", "mon compte",
	"connexion", "paramètre", "nous contacter", "livraison",
	"mentions légales", "cgv", "plan du site", "newsletter",
	"cookie", "copyright", "©", "suivez-nous", "réseaux",
	"inscription", "aide", "faq", "politique",
}

var metalKeywords = []string{
	"or blanc", "or jaune", "or rose", "platine", "platinum",
	"white gold", "yellow gold", "rose gold", "argent", "silver",
	"or 750", "or gris",
}

var stoneKeywords = []string{
	"diamant", "diamond", "saphir", "sapphire", "rubis", "ruby",
	"emeraude", "émeraude", "emerald", "moissanite", "morganite",
}

var nonProductPaths = []string{
	"/categories/", "/category/", "#open-search", "#store.",
	"customer/account", "/account", "checkout/cart", "/cart/", "/panier", "/checkout",
	"/login", "/wishlist", "/static/", "/pub/media/wysiwyg/",
	"javascript:", "#top", "/page/", "?page=", "&page=", "?p=", "&p=",
}

var assetSuffixes = []string{".css", ".js", ".svg", ".ico", ".pdf", ".xml", ".json"}

// Structural adapts Extract to the extractor interface used by the crawler.
// It reports no token usage.
type Structural struct{}

// Extract scans text and ignores instruction.
func (Structural) Extract(ctx context.Context, text, _ string) (models.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return models.Extraction{}, err
	}
	return models.Extraction{Candidates: Extract(text)}, nil
}

// Extract returns every candidate found in doc, in document order.
func Extract(doc string) []models.RawCandidate {
	return slices.Collect(Scan(doc))
}

// Scan lazily yields candidates from doc. A candidate is produced for each
// product anchor that has a usable name within its lookahead window.
func Scan(doc string) iter.Seq[models.RawCandidate] {
	return func(yield func(models.RawCandidate) bool) {
		lines := strings.Split(doc, "\n")
		for i := 0; i < len(lines); {
			line := strings.TrimSpace(lines[i])
			if line == "" || isNavLine(line) {
				i++
				continue
			}
			anchor := productLink(line)
			if anchor == "" {
				i++
				continue
			}

			candidate, next := readBlock(lines, i, anchor)
			if candidate == nil {
				i++
				continue
			}
			if !yield(*candidate) {
				return
			}
			i = next
		}
	}
}

type block struct {
	url    string
	name   string
	price  string
	metal  string
	stone  string
	images []string
}

func (b *block) addImages(line string) {
	for _, m := range imageRe.FindAllStringSubmatch(line, -1) {
		if len(b.images) >= maxCandidateImages {
			return
		}
		url := m[2]
		if !parser.IsImageURL(url) || !parser.IsProductImage(url) {
			continue
		}
		if !slices.Contains(b.images, url) {
			b.images = append(b.images, url)
		}
	}
}

func (b *block) addAttributes(line string) {
	if b.price == "" {
		if m := priceRe.FindString(line); m != "" {
			b.price = strings.TrimSpace(m)
		}
	}
	if b.metal == "" {
		b.metal = matchKeyword(line, metalKeywords)
	}
	if b.stone == "" {
		b.stone = matchKeyword(line, stoneKeywords)
	}
}

// readBlock collects the fields of the product anchored at lines[start] and
// returns the index where scanning should resume.
func readBlock(lines []string, start int, anchor string) (*models.RawCandidate, int) {
	b := &block{url: anchor}
	first := strings.TrimSpace(lines[start])
	b.addImages(first)
	b.addAttributes(first)
	if m := boldLinkRe.FindStringSubmatch(first); m != nil {
		b.name = strings.TrimSpace(m[1])
	}

	end := min(start+lookaheadLines+1, len(lines))
	next := end
	for j := start + 1; j < end; j++ {
		ahead := strings.TrimSpace(lines[j])
		if ahead == "" {
			continue
		}
		if link := productLink(ahead); link != "" && link != b.url {
			next = j
			break
		}
		if isNavLine(ahead) {
			continue
		}

		b.addImages(ahead)

		if b.name == "" {
			if m := boldLinkRe.FindStringSubmatch(ahead); m != nil {
				b.name = strings.TrimSpace(m[1])
				b.addAttributes(ahead)
				continue
			}
		}

		b.addAttributes(ahead)

		if b.name == "" && isPlainNameLine(ahead) {
			b.name = ahead
		}
	}

	if b.name == "" || !isValidName(b.name) {
		return nil, start + 1
	}
	return &models.RawCandidate{
		Name:       b.name,
		Price:      b.price,
		Metal:      b.metal,
		Stone:      b.stone,
		ImageURLs:  b.images,
		ProductURL: b.url,
		Sizes:      []string{},
	}, next
}

// productLink returns the first link target on line that passes the product
// URL filter. Targets of image references are ignored.
func productLink(line string) string {
	images := imageRe.FindAllStringIndex(line, -1)
	for _, m := range linkTargetRe.FindAllStringSubmatchIndex(line, -1) {
		if insideAny(m[0], images) {
			continue
		}
		url := line[m[2]:m[3]]
		if IsProductURL(url) {
			return url
		}
	}
	return ""
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// IsProductURL reports whether url looks like a product detail page rather
// than an asset, category, cart, account or pagination link.
func IsProductURL(url string) bool {
	low := strings.ToLower(url)
	if parser.IsImageURL(low) {
		return false
	}
	path := low
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(path, suffix) {
			return false
		}
	}
	for _, p := range nonProductPaths {
		if strings.Contains(low, p) {
			return false
		}
	}
	if strings.Contains(low, "/collections/") && !strings.Contains(low, "/products/") {
		return false
	}
	return true
}

func isNavLine(line string) bool {
	low := strings.ToLower(line)
	for _, s := range navSignals {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}

func isPlainNameLine(line string) bool {
	n := utf8.RuneCountInString(line)
	if n < minNameLen || n >= maxPlainNameLen {
		return false
	}
	if strings.Contains(line, "€") || strings.Contains(line, "![") || strings.Contains(line, "](") {
		return false
	}
	if strings.HasPrefix(line, "[") || strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "*") || strings.HasPrefix(line, "!") {
		return false
	}
	if priceRe.MatchString(line) {
		return false
	}
	return isValidName(line)
}

func isValidName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return false
	}
	if junkNameRe.MatchString(name) {
		return false
	}
	for _, prefix := range []string{"http", "#", "!", "[", "*"} {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return false
	}
	clean := strings.TrimSpace(strings.TrimLeft(name, "#"))
	if junkNameRe.MatchString(clean) {
		return false
	}
	low := strings.ToLower(clean)
	return !slices.Contains(navSignals, low)
}

func matchKeyword(text string, keywords []string) string {
	low := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(low, kw) {
			return titleCase(kw)
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// DetailImages harvests up to limit product image URLs from a detail page.
func DetailImages(doc string, limit int) []string {
	if limit <= 0 {
		limit = defaultDetailImages
	}
	var images []string
	for _, m := range imageRe.FindAllStringSubmatch(doc, -1) {
		url := m[2]
		if !parser.IsImageURL(url) || !parser.IsProductImage(url) || slices.Contains(images, url) {
			continue
		}
		images = append(images, url)
		if len(images) >= limit {
			break
		}
	}
	return images
}
