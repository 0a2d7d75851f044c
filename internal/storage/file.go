package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/kitmanual/internal/catalog"
)

// --- JSON Exporter ---

// JSONExporter writes records as a JSON array to a file.
type JSONExporter struct {
	path   string
	recs   []catalog.Record
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONExporter creates a new JSON file exporter.
func NewJSONExporter(outputPath string, logger *slog.Logger) (*JSONExporter, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &JSONExporter{
		path:   outputPath,
		recs:   make([]catalog.Record, 0),
		logger: logger.With("component", "json_exporter"),
	}, nil
}

func (s *JSONExporter) Name() string { return "json" }

func (s *JSONExporter) Write(recs []catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, recs...)
	s.logger.Debug("records buffered", "count", len(recs), "total", len(s.recs))
	return nil
}

func (s *JSONExporter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.recs); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	s.logger.Info("JSON written", "path", s.path, "records", len(s.recs))
	return nil
}

// --- JSONL Exporter ---

// JSONLExporter writes records as newline-delimited JSON (one object per line).
type JSONLExporter struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLExporter creates a new JSONL file exporter (streaming writes).
func NewJSONLExporter(outputPath string, logger *slog.Logger) (*JSONLExporter, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &JSONLExporter{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_exporter"),
	}, nil
}

func (s *JSONLExporter) Name() string { return "jsonl" }

func (s *JSONLExporter) Write(recs []catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range recs {
		if err := s.enc.Encode(&recs[i]); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLExporter) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// --- CSV Exporter ---

var csvHeaders = []string{
	"id", "grade", "name_native", "name_foreign", "release_date", "release_date_text",
	"detail_url", "pdf_url", "image_url", "pdf_local_path", "public_url", "updated_at",
}

// CSVExporter writes records as CSV rows with a fixed header.
type CSVExporter struct {
	path        string
	file        *os.File
	writer      *csv.Writer
	wroteHeader bool
	mu          sync.Mutex
	count       int
	logger      *slog.Logger
}

// NewCSVExporter creates a new CSV file exporter.
func NewCSVExporter(outputPath string, logger *slog.Logger) (*CSVExporter, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &CSVExporter{
		path:   outputPath,
		file:   f,
		writer: csv.NewWriter(f),
		logger: logger.With("component", "csv_exporter"),
	}, nil
}

func (s *CSVExporter) Name() string { return "csv" }

func (s *CSVExporter) Write(recs []catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wroteHeader {
		if err := s.writer.Write(csvHeaders); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		s.wroteHeader = true
	}

	for i := range recs {
		if err := s.writer.Write(csvRow(&recs[i])); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVExporter) Close() error {
	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func csvRow(r *catalog.Record) []string {
	date := ""
	if r.ReleaseDate != nil {
		date = r.ReleaseDate.Format("2006-01-02")
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		deref(r.Grade),
		deref(r.NameNative),
		deref(r.NameForeign),
		date,
		r.ReleaseDateText,
		r.DetailURL,
		r.PDFURL,
		deref(r.ImageURL),
		deref(r.LocalPath),
		deref(r.PublicURL),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- Multi-Exporter Fan-Out ---

// MultiExporter writes records to multiple exporters.
type MultiExporter struct {
	backends []Exporter
	logger   *slog.Logger
}

// NewMultiExporter creates an exporter that fans out to multiple backends.
func NewMultiExporter(backends []Exporter, logger *slog.Logger) *MultiExporter {
	return &MultiExporter{
		backends: backends,
		logger:   logger.With("component", "multi_exporter"),
	}
}

func (s *MultiExporter) Name() string { return "multi" }

func (s *MultiExporter) Write(recs []catalog.Record) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Write(recs); err != nil {
			s.logger.Error("exporter write failed", "exporter", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiExporter) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewExporter creates a file exporter for a comma-separated list of formats
// (json, jsonl, csv) writing manuals.<ext> under outputDir.
func NewExporter(formats, outputDir string, logger *slog.Logger) (Exporter, error) {
	var backends []Exporter
	for _, format := range strings.Split(formats, ",") {
		format = strings.TrimSpace(format)
		var (
			exp Exporter
			err error
		)
		switch format {
		case "json":
			exp, err = NewJSONExporter(filepath.Join(outputDir, "manuals.json"), logger)
		case "jsonl":
			exp, err = NewJSONLExporter(filepath.Join(outputDir, "manuals.jsonl"), logger)
		case "csv":
			exp, err = NewCSVExporter(filepath.Join(outputDir, "manuals.csv"), logger)
		default:
			err = fmt.Errorf("unsupported export format: %s", format)
		}
		if err != nil {
			for _, b := range backends {
				_ = b.Close()
			}
			return nil, err
		}
		backends = append(backends, exp)
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiExporter(backends, logger), nil
}
