package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// CombinedFile is the default merge output name.
const CombinedFile = "all_combined.json"

// FileStats summarises one saved target file.
type FileStats struct {
	File       string
	Tier       models.Tier
	Records    int
	WithImages int
	WithPrice  int
}

// targetFiles lists per-target JSON files in dir in filename order.
// Combined files (all_*) are skipped.
func targetFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), "all_") {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// ReadRecords loads a JSON array of records.
func ReadRecords(filename string) ([]models.CanonicalRecord, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	var records []models.CanonicalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return records, nil
}

// Merge concatenates every per-target file in dir, in filename order, into
// output. It returns the number of records written.
func Merge(dir, output string) (int, error) {
	files, err := targetFiles(dir)
	if err != nil {
		return 0, err
	}
	outAbs, _ := filepath.Abs(output)

	all := []models.CanonicalRecord{}
	for _, f := range files {
		if abs, _ := filepath.Abs(f); abs == outAbs {
			continue
		}
		records, err := ReadRecords(f)
		if err != nil {
			return 0, err
		}
		all = append(all, records...)
	}
	if err := WriteRecords(output, all); err != nil {
		return 0, err
	}
	return len(all), nil
}

// Stats reads every per-target file in dir. The tier comes from the first
// record of each file.
func Stats(dir string) ([]FileStats, error) {
	files, err := targetFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]FileStats, 0, len(files))
	for _, f := range files {
		records, err := ReadRecords(f)
		if err != nil {
			return nil, err
		}
		st := FileStats{File: filepath.Base(f), Records: len(records)}
		if len(records) > 0 {
			st.Tier = records[0].Tier
		}
		for _, r := range records {
			if len(r.Images) > 0 {
				st.WithImages++
			}
			if r.PriceEUR != nil {
				st.WithPrice++
			}
		}
		out = append(out, st)
	}
	return out, nil
}
