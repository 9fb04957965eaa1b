package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/go-ring-crawler/models"
)

const (
	defaultCarat  = 0.5
	maxRating     = 5.0
	defaultRating = 0.0
)

type phrase[T any] struct {
	key   string
	value T
}

// Tables are scanned in order; the first substring hit wins.
var metalPhrases = []phrase[models.MetalType]{
	{"or jaune", models.MetalYellowGold},
	{"yellow gold", models.MetalYellowGold},
	{"or blanc", models.MetalWhiteGold},
	{"white gold", models.MetalWhiteGold},
	{"or gris", models.MetalWhiteGold},
	{"or rose", models.MetalRoseGold},
	{"rose gold", models.MetalRoseGold},
	{"pink gold", models.MetalRoseGold},
	{"platine", models.MetalPlatinum},
	{"platinum", models.MetalPlatinum},
	{"argent", models.MetalSilver},
	{"silver", models.MetalSilver},
}

var stonePhrases = []phrase[models.StoneType]{
	{"diamant", models.StoneDiamond},
	{"diamond", models.StoneDiamond},
	{"saphir", models.StoneSapphire},
	{"sapphire", models.StoneSapphire},
	{"émeraude", models.StoneEmerald},
	{"emeraude", models.StoneEmerald},
	{"emerald", models.StoneEmerald},
	{"rubis", models.StoneRuby},
	{"ruby", models.StoneRuby},
	{"moissanite", models.StoneMoissanite},
	{"morganite", models.StoneMorganite},
}

var noStoneMarkers = []string{"sans", "none", "uni"}

var stylePhrases = []phrase[models.RingStyle]{
	{"solitaire", models.StyleSolitaire},
	{"halo", models.StyleHalo},
	{"vintage", models.StyleVintage},
	{"pavé", models.StylePave},
	{"pave", models.StylePave},
	{"trois pierres", models.StyleThreeStone},
	{"three stone", models.StyleThreeStone},
	{"three-stone", models.StyleThreeStone},
	{"trilogy", models.StyleThreeStone},
	{"cluster", models.StyleCluster},
	{"eternité", models.StyleEternity},
	{"eternite", models.StyleEternity},
	{"éternité", models.StyleEternity},
	{"eternity", models.StyleEternity},
	{"tension", models.StyleTension},
	{"cathédrale", models.StyleCathedral},
	{"cathedral", models.StyleCathedral},
	{"serti clos", models.StyleBezel},
	{"bezel", models.StyleBezel},
	{"clos", models.StyleBezel},
}

func lookup[T any](raw string, table []phrase[T], fallback T) (T, bool) {
	low := strings.ToLower(strings.TrimSpace(raw))
	if low == "" {
		return fallback, false
	}
	for _, p := range table {
		if strings.Contains(low, p.key) {
			return p.value, true
		}
	}
	return fallback, false
}

// NormalizeMetal maps free text to a metal, defaulting to platinum.
func NormalizeMetal(raw string) models.MetalType {
	metal, _ := lookup(raw, metalPhrases, models.MetalPlatinum)
	return metal
}

// NormalizeStone maps free text to a stone. Phrases meaning "no stone" map to
// StoneNone; anything else unknown defaults to diamond.
func NormalizeStone(raw string) models.StoneType {
	stone, ok := lookup(raw, stonePhrases, models.StoneDiamond)
	if ok {
		return stone
	}
	low := strings.ToLower(raw)
	for _, marker := range noStoneMarkers {
		if strings.Contains(low, marker) {
			return models.StoneNone
		}
	}
	return models.StoneDiamond
}

// NormalizeStyle maps free text to a ring style, defaulting to solitaire.
func NormalizeStyle(raw string) models.RingStyle {
	style, _ := lookup(raw, stylePhrases, models.StyleSolitaire)
	return style
}

var (
	pricePrefixRe   = regexp.MustCompile(`(?i)^(?:(?:à|a)\s+partir\s+de|dès|from)\s*:?\s*`)
	priceCurrencyRe = regexp.MustCompile(`(?i)€|eur\b`)
	priceAmountRe   = regexp.MustCompile(`^\d[\d.,']*$`)
	caratUnitRe     = regexp.MustCompile(`(\d+[.,]?\d*)\s*(?:ct|carat)`)
	decimalRe       = regexp.MustCompile(`\d+[.,]\d+`)
	ratingSlashRe   = regexp.MustCompile(`(\d+[.,]?\d*)\s*/\s*5`)
	numberRe        = regexp.MustCompile(`\d+[.,]?\d*`)
	integerRe       = regexp.MustCompile(`\d+`)
)

// ParsePrice turns a displayed price ("3 450 €", "À partir de 1 995 €",
// "3,450.00€") into euros. Only a currency marker and a leading "from" are
// stripped; whatever remains must be a single amount, otherwise it returns
// nil. An absent price is not the same as a zero price.
func ParsePrice(raw string) *float64 {
	cleaned := pricePrefixRe.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = priceCurrencyRe.ReplaceAllString(cleaned, "")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimRight(cleaned, ".,")
	if !priceAmountRe.MatchString(cleaned) {
		return nil
	}
	cleaned = strings.ReplaceAll(cleaned, "'", "")

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Count(cleaned, ",") > 1:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case lastComma >= 0:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case strings.Count(cleaned, ".") > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

// ParseCarat reads a carat weight, preferring a number followed by a unit.
func ParseCarat(raw string) float64 {
	if strings.TrimSpace(raw) == "" {
		return defaultCarat
	}
	if m := caratUnitRe.FindStringSubmatch(strings.ToLower(raw)); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v
		}
	}
	if m := decimalRe.FindString(raw); m != "" {
		if v, ok := parseDecimal(m); ok {
			return v
		}
	}
	return defaultCarat
}

// ParseRating reads "x/5" or a bare number, clamped to [0,5].
func ParseRating(raw string) float64 {
	if strings.TrimSpace(raw) == "" {
		return defaultRating
	}
	if m := ratingSlashRe.FindStringSubmatch(raw); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return clampRating(v)
		}
	}
	if m := numberRe.FindString(raw); m != "" {
		if v, ok := parseDecimal(m); ok {
			return clampRating(v)
		}
	}
	return defaultRating
}

// ParseReviewCount returns the first integer in raw, ignoring spaces used as
// thousands separators.
func ParseReviewCount(raw string) int {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	m := integerRe.FindString(compact)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseDecimal(s string) (float64, bool) {
	s = strings.TrimRight(strings.Replace(s, ",", ".", 1), ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func clampRating(v float64) float64 {
	return math.Max(0, math.Min(v, maxRating))
}
