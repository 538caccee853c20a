// Package export serializes harvested articles to CSV, JSON and BibTeX and
// persists the payloads for callers that want files on disk.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

const (
	// DefaultPrefix is the file name prefix used when none is configured.
	DefaultPrefix = "pubmed_results"

	// FailedIDsFilename is the name of the failed identifier list.
	FailedIDsFilename = "failed_pmids.txt"

	timestampLayout = "2006-01-02T15-04-05"
)

// Format describes one supported export format.
type Format struct {
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	ContentType string `json:"content_type"`
}

var formats = []Format{
	{Name: "csv", Extension: "csv", ContentType: "text/csv; charset=utf-8"},
	{Name: "json", Extension: "json", ContentType: "application/json; charset=utf-8"},
	{Name: "bib", Extension: "bib", ContentType: "application/x-bibtex; charset=utf-8"},
}

// Formats lists the supported export formats in dispatch order.
func Formats() []Format {
	return append([]Format(nil), formats...)
}

// Lookup returns the format registered under name.
func Lookup(name string) (Format, bool) {
	for _, f := range formats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// Encode dispatches to the encoder for format. Unknown tokens return a
// *domain.ExportError.
func Encode(format string, articles []domain.Article) ([]byte, error) {
	switch format {
	case "csv":
		return []byte(EncodeCSV(articles)), nil
	case "json":
		s, err := EncodeJSON(articles)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case "bib":
		return []byte(EncodeBibTeX(articles)), nil
	default:
		return nil, &domain.ExportError{Format: format}
	}
}

// EncodeFailedIDs renders failed identifiers one per line.
func EncodeFailedIDs(ids []string) string {
	return strings.Join(ids, "\n")
}

// SanitizeFilename strips characters that are invalid in file names on
// common platforms: \ / : * ? " < > |
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, r) {
			return -1
		}
		return r
	}, name)
}

// Filename builds "<prefix>_<UTC timestamp>.<ext>" for the given format.
func Filename(prefix string, format Format, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return SanitizeFilename(fmt.Sprintf("%s_%s.%s", prefix, now.UTC().Format(timestampLayout), format.Extension))
}

// WriteAll encodes articles in every format and writes them to dir, plus
// FailedIDsFilename when failed is non-empty. It returns the written paths
// in format order.
func WriteAll(dir, prefix string, articles []domain.Article, failed []string, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	paths := make([]string, 0, len(formats)+1)
	for _, f := range formats {
		payload, err := Encode(f.Name, articles)
		if err != nil {
			return paths, err
		}

		path := filepath.Join(dir, Filename(prefix, f, now))
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return paths, fmt.Errorf("write %s export: %w", f.Name, err)
		}
		paths = append(paths, path)
	}

	if len(failed) > 0 {
		path := filepath.Join(dir, FailedIDsFilename)
		if err := os.WriteFile(path, []byte(EncodeFailedIDs(failed)), 0o644); err != nil {
			return paths, fmt.Errorf("write failed ids: %w", err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}
