package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-ring-crawler/models"
)

func testRecord(name string, tier models.Tier, withImage bool, price *float64) models.CanonicalRecord {
	r := models.CanonicalRecord{
		Name:           name,
		MetalType:      models.MetalPlatinum,
		StoneType:      models.StoneDiamond,
		CaratWeight:    0.5,
		Style:          models.StyleSolitaire,
		Images:         []models.Image{},
		PriceEUR:       price,
		Brand:          "Courbet",
		SizesAvailable: []string{},
		SourceURL:      "https://www.courbet.com/p/" + strings.ToLower(name),
		Tier:           tier,
	}
	if withImage {
		r.Images = []models.Image{{URL: "https://cdn.courbet.com/" + name + ".jpg"}}
	}
	return r
}

func priceOf(v float64) *float64 { return &v }

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rings.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write([]models.CanonicalRecord{testRecord("Eden", models.TierMid, true, priceOf(1290))}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "name" || records[0][3] != "price_eur" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][3] != "1290.00" || records[1][8] != "1" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestJSONWriterWritesIndentedArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "courbet.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]models.CanonicalRecord{testRecord("Étoile & Or", models.TierMid, false, nil)}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Write([]models.CanonicalRecord{testRecord("Lune", models.TierMid, false, nil)}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Write(nil); err == nil {
		t.Fatalf("write after close should fail")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "[\n  {") {
		t.Fatalf("expected indented array, got %q", text[:min(20, len(text))])
	}
	if !strings.Contains(text, "Étoile & Or") {
		t.Fatalf("expected unescaped UTF-8 and ampersand in output")
	}

	var decoded []models.CanonicalRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Name != "Lune" {
		t.Fatalf("decoded=%+v", decoded)
	}
	if decoded[0].PriceEUR != nil {
		t.Fatalf("nil price should round-trip as null")
	}
}

func TestWriteRecordsEmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := WriteRecords(path, nil); err != nil {
		t.Fatalf("write records: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("got %q, want []", data)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "rings.csv")
	jsonPath := filepath.Join(dir, "rings.json")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]models.CanonicalRecord{testRecord("Eden", models.TierLow, true, nil)}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestMergeAndStats(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(name string, records ...models.CanonicalRecord) {
		t.Helper()
		if err := WriteRecords(filepath.Join(dir, name), records); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("b-courbet.json",
		testRecord("B1", models.TierMid, true, priceOf(900)),
		testRecord("B2", models.TierMid, false, nil),
	)
	mustWrite("a-cartier.json", testRecord("A1", models.TierHigh, true, nil))
	mustWrite("all_mid.json", testRecord("Ignored", models.TierMid, true, nil))
	mustWrite("c-empty.json")

	output := filepath.Join(dir, CombinedFile)
	n, err := Merge(dir, output)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if n != 3 {
		t.Fatalf("merged=%d, want 3", n)
	}
	merged, err := ReadRecords(output)
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	got := []string{merged[0].Name, merged[1].Name, merged[2].Name}
	want := []string{"A1", "B1", "B2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("merge order=%v, want %v", got, want)
		}
	}

	stats, err := Stats(dir)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("stats files=%d, want 3", len(stats))
	}
	if stats[0].File != "a-cartier.json" || stats[0].Tier != models.TierHigh || stats[0].WithImages != 1 {
		t.Fatalf("unexpected stats[0]: %+v", stats[0])
	}
	if stats[1].Records != 2 || stats[1].WithImages != 1 || stats[1].WithPrice != 1 {
		t.Fatalf("unexpected stats[1]: %+v", stats[1])
	}
	if stats[2].Records != 0 || stats[2].Tier != "" {
		t.Fatalf("unexpected stats[2]: %+v", stats[2])
	}
}

func TestPathHelpers(t *testing.T) {
	if got := TargetFile("out", "cartier"); got != filepath.Join("out", "cartier.json") {
		t.Fatalf("target file=%s", got)
	}
	if got := TierFile("out", models.TierHigh); got != filepath.Join("out", "all_high.json") {
		t.Fatalf("tier file=%s", got)
	}
}

func TestOpenWriterFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		files  []string
	}{
		{format: FormatJSON, files: []string{"rings.json"}},
		{format: FormatCSV, files: []string{"rings.csv"}},
		{format: "DUAL", files: []string{"rings.json", "rings.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			base := filepath.Join(dir, tt.format, "rings")
			writer, files, err := OpenWriter(tt.format, base)
			if err != nil {
				t.Fatalf("open %s: %v", tt.format, err)
			}
			if len(files) != len(tt.files) {
				t.Fatalf("files=%v, want %v", files, tt.files)
			}
			for i, f := range files {
				if filepath.Base(f) != tt.files[i] {
					t.Fatalf("files=%v, want %v", files, tt.files)
				}
			}
			if err := writer.Write([]models.CanonicalRecord{testRecord("Eden", models.TierMid, true, nil)}); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := writer.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if err := writer.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}

	if _, _, err := OpenWriter("xml", filepath.Join(dir, "rings")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestMultiWriterClosesAll(t *testing.T) {
	dir := t.TempDir()
	first, err := NewJSONWriter(filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := NewJSONWriter(filepath.Join(dir, "b.json"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first.Close()

	mw := MultiWriter{first, second}
	if err := mw.Write(nil); err == nil {
		t.Fatalf("expected write error from closed writer")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "b.json"))
	if err != nil || strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("second writer not closed: %q %v", data, err)
	}
}
