package pipeline

import (
	"reflect"
	"testing"

	"github.com/aluiziolira/go-ring-crawler/models"
)

func candidates(names ...string) []models.RawCandidate {
	out := make([]models.RawCandidate, 0, len(names))
	for _, n := range names {
		out = append(out, models.RawCandidate{Name: n})
	}
	return out
}

func names(cands []models.RawCandidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Name)
	}
	return out
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := candidates("Solitaire Aurore", "  solitaire aurore ", "Halo Céleste", "SOLITAIRE AURORE", "Halo Céleste")
	in[0].Price = "1 990 €"

	got := Dedupe(in)
	want := []string{"Solitaire Aurore", "Halo Céleste"}
	if !reflect.DeepEqual(names(got), want) {
		t.Fatalf("names=%v, want %v", names(got), want)
	}
	if got[0].Price != "1 990 €" {
		t.Fatalf("first occurrence not kept: %+v", got[0])
	}
}

func TestDedupeIsIdempotent(t *testing.T) {
	tests := [][]models.RawCandidate{
		nil,
		candidates("A"),
		candidates("A", "a", "B", " b", "C"),
		candidates("Bague", "bague ", "BAGUE", "Bague Éclat"),
	}
	for _, in := range tests {
		once := Dedupe(in)
		twice := Dedupe(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("dedupe not idempotent: %v vs %v", names(once), names(twice))
		}
	}
}

func TestPipelineSelectValidationDedupAndCap(t *testing.T) {
	p := NewPipeline(0)
	in := candidates("Rivage", "", "rivage", "Halo", "   ", "Trilogie", "Pavé")

	got := p.Select(in, 3)
	want := []string{"Rivage", "Halo", "Trilogie"}
	if !reflect.DeepEqual(names(got), want) {
		t.Fatalf("names=%v, want %v", names(got), want)
	}

	wantDropped := models.DropCounts{Invalid: 2, Duplicate: 1, OverCap: 1}
	if dropped := p.Dropped(); dropped != wantDropped {
		t.Fatalf("dropped=%+v, want %+v", dropped, wantDropped)
	}
	if total := p.Dropped().Total(); total != len(in)-len(got) {
		t.Fatalf("dropped total=%d, want %d", total, len(in)-len(got))
	}
}

func TestPipelineSelectNoLimit(t *testing.T) {
	p := NewPipeline(3)
	got := p.Select(candidates("A", "B", "C", "D"), 0)
	if len(got) != 4 {
		t.Fatalf("len=%d, want 4", len(got))
	}
}

func TestPipelineNormalize(t *testing.T) {
	p := NewPipeline(2)
	in := []models.RawCandidate{
		{
			Name:  "Solitaire Aurore",
			Price: "À partir de 1 995 €",
			Metal: "Or Blanc",
			ImageURLs: []string{
				"https://cdn.shop.fr/a.jpg",
				"https://cdn.shop.fr/b.jpg",
				"https://cdn.shop.fr/c.jpg",
			},
			ProductURL: "https://shop.fr/p/aurore",
		},
		{Name: "Halo"},
	}

	got := p.Normalize(in, "Gemmyo", models.TierMid, "https://shop.fr/bagues")
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}

	first := got[0]
	if first.PriceEUR == nil || *first.PriceEUR != 1995 {
		t.Fatalf("price=%v, want 1995", first.PriceEUR)
	}
	if first.MetalType != models.MetalWhiteGold {
		t.Fatalf("metal=%s", first.MetalType)
	}
	if len(first.Images) != 2 || first.Images[1].Position != 1 {
		t.Fatalf("images=%+v", first.Images)
	}
	if first.SourceURL != "https://shop.fr/p/aurore" || first.Brand != "Gemmyo" || first.Tier != models.TierMid {
		t.Fatalf("unexpected record context: %+v", first)
	}
	if got[1].SourceURL != "https://shop.fr/bagues" {
		t.Fatalf("source fallback=%s", got[1].SourceURL)
	}
	if got[1].PriceEUR != nil {
		t.Fatalf("missing price should stay nil")
	}

	if processed := p.Processed(); processed != 2 {
		t.Fatalf("processed=%d, want 2", processed)
	}
}
