package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// csvColumns is the header of the CSV summary, one row per record.
var csvColumns = []string{
	"name", "brand", "tier", "price_eur", "metal_type", "stone_type",
	"carat_weight", "style", "images", "collection", "image_url", "source_url",
}

// CSVWriter writes a flat one-row-per-record summary for spreadsheets. Rows
// are flushed on every Write so a crashed run keeps what it wrote.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	cw := &CSVWriter{file: f, csv: csv.NewWriter(f)}
	if err := cw.writeRows([][]string{csvColumns}); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func csvRow(r models.CanonicalRecord) []string {
	price, collection, image := "", "", ""
	if r.PriceEUR != nil {
		price = strconv.FormatFloat(*r.PriceEUR, 'f', 2, 64)
	}
	if r.Collection != nil {
		collection = *r.Collection
	}
	if len(r.Images) > 0 {
		image = r.Images[0].URL
	}
	return []string{
		r.Name, r.Brand, string(r.Tier), price,
		string(r.MetalType), string(r.StoneType),
		strconv.FormatFloat(r.CaratWeight, 'f', -1, 64), string(r.Style),
		strconv.Itoa(len(r.Images)), collection, image, r.SourceURL,
	}
}

// Write appends one row per record.
func (cw *CSVWriter) Write(records []models.CanonicalRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, csvRow(r))
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.writeRows(rows)
}

func (cw *CSVWriter) writeRows(rows [][]string) error {
	if err := cw.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Close closes the file. Rows are already flushed.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.file.Close()
}

// Validate checks the file exists and holds at least the header.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter collects records and writes them as one indented JSON array
// when closed. Records keep their write order.
type JSONWriter struct {
	file    *os.File
	records []models.CanonicalRecord
	closed  bool
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	return &JSONWriter{
		file:    f,
		records: []models.CanonicalRecord{},
	}, nil
}

// Write buffers records for the array.
func (jw *JSONWriter) Write(records []models.CanonicalRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return fmt.Errorf("json writer is closed")
	}
	jw.records = append(jw.records, records...)
	return nil
}

// Close encodes the buffered array and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return nil
	}
	jw.closed = true

	buffer := bufio.NewWriter(jw.file)
	if err := encodeRecords(buffer, jw.records); err != nil {
		jw.file.Close()
		return err
	}
	if err := buffer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.file.Name())
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// WriteRecords writes records to filename as an indented JSON array,
// creating parent directories as needed.
func WriteRecords(filename string, records []models.CanonicalRecord) error {
	writer, err := NewJSONWriter(filename)
	if err != nil {
		return err
	}
	if err := writer.Write(records); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// TargetFile is the per-target output path.
func TargetFile(dir, slug string) string {
	return filepath.Join(dir, slug+".json")
}

// TierFile is the combined output path for one tier.
func TierFile(dir string, tier models.Tier) string {
	return filepath.Join(dir, "all_"+string(tier)+".json")
}

func encodeRecords(w *bufio.Writer, records []models.CanonicalRecord) error {
	if records == nil {
		records = []models.CanonicalRecord{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("encode json records: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
