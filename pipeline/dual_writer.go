// Package pipeline turns extracted candidates into canonical records and
// writes them out.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// Export formats accepted by OpenWriter.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatDual = "dual"
)

// MultiWriter fans records out to several writers. Every writer is closed and
// validated even when an earlier one fails.
type MultiWriter []OutputWriter

// NewDualWriter writes the CSV summary and the JSON array side by side.
func NewDualWriter(csvFilename, jsonFilename string) (MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, err
	}
	return MultiWriter{csvWriter, jsonWriter}, nil
}

// OpenWriter opens the writer for format below base, a path without
// extension, and returns it with the files it will produce.
func OpenWriter(format, base string) (OutputWriter, []string, error) {
	jsonFile, csvFile := base+".json", base+".csv"
	switch strings.ToLower(format) {
	case FormatJSON:
		w, err := NewJSONWriter(jsonFile)
		if err != nil {
			return nil, nil, err
		}
		return w, []string{jsonFile}, nil
	case FormatCSV:
		w, err := NewCSVWriter(csvFile)
		if err != nil {
			return nil, nil, err
		}
		return w, []string{csvFile}, nil
	case FormatDual:
		w, err := NewDualWriter(csvFile, jsonFile)
		if err != nil {
			return nil, nil, err
		}
		return w, []string{jsonFile, csvFile}, nil
	}
	return nil, nil, fmt.Errorf("unsupported format: %s", format)
}

// Write passes records to each writer, stopping at the first error.
func (m MultiWriter) Write(records []models.CanonicalRecord) error {
	for _, w := range m {
		if err := w.Write(records); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

// Validate checks every writer and joins their errors.
func (m MultiWriter) Validate() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Validate())
	}
	return errors.Join(errs...)
}
