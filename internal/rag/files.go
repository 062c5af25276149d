package rag

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prvlabs/prva/internal/knowledge"
)

// FileOptions tags documents produced from files. ValveModel is optional.
type FileOptions struct {
	SourceType string // Defaults to knowledge.SourceTypeUpload
	ValveModel string
}

// DocumentFromFile reads a file into a Document ready for ingestion.
// The cleaned path is the document's source ID, so re-ingesting the
// same file replaces its chunks.
func DocumentFromFile(path string, opts FileOptions) (knowledge.Document, error) {
	cleaned := filepath.Clean(path)
	raw, err := os.ReadFile(cleaned)
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("reading %q: %w", cleaned, err)
	}
	return DocumentFromBytes(cleaned, raw, opts)
}

// DocumentFromBytes builds a Document from file content, keyed by name
// (a path for local files, a filename for uploads).
//
// .txt/.md/.rst are taken verbatim; .csv is rendered one "Record N"
// paragraph per row; .json is rendered one record per array element (or
// a single record for an object). Unknown extensions are attempted as
// plain text.
func DocumentFromBytes(name string, data []byte, opts FileOptions) (knowledge.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))

	var text string
	var err error
	switch ext {
	case ".csv":
		text, err = renderCSV(data)
	case ".json":
		text, err = renderJSON(data)
	default:
		// .txt, .md, .rst and anything else: raw content.
		text = string(data)
	}
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("rendering %q: %w", name, err)
	}

	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = knowledge.SourceTypeUpload
	}

	return knowledge.Document{
		SourceType: sourceType,
		SourceID:   name,
		ValveModel: opts.ValveModel,
		Timestamp:  time.Now().UTC(),
		RawText:    text,
		Metadata: map[string]string{
			"file_name": filepath.Base(name),
			"file_ext":  ext,
		},
	}, nil
}

// renderCSV turns each row into a labeled "Record N" paragraph so the
// chunker splits along record boundaries.
func renderCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parsing CSV: %w", err)
	}
	if len(rows) < 2 {
		return "", nil
	}

	header := rows[0]
	var b strings.Builder
	for i, row := range rows[1:] {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Record %d:\n", i+1)
		for j, value := range row {
			if j < len(header) {
				fmt.Fprintf(&b, "%s: %s\n", header[j], value)
			} else {
				fmt.Fprintf(&b, "%s\n", value)
			}
		}
	}
	return b.String(), nil
}

// renderJSON turns a JSON array into one record per element and an
// object into a single indented record.
func renderJSON(raw []byte) (string, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("parsing JSON: %w", err)
	}

	switch v := data.(type) {
	case []any:
		var b strings.Builder
		for i, item := range v {
			if i > 0 {
				b.WriteString("\n\n")
			}
			pretty, err := json.MarshalIndent(item, "", "  ")
			if err != nil {
				return "", fmt.Errorf("rendering JSON record %d: %w", i+1, err)
			}
			fmt.Fprintf(&b, "Record %d:\n%s", i+1, pretty)
		}
		return b.String(), nil
	default:
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("rendering JSON: %w", err)
		}
		return string(pretty), nil
	}
}

// IngestFiles reads and ingests each path, reporting per file. Read
// failures are reported as failed documents; the batch continues.
func (s *System) IngestFiles(ctx context.Context, paths []string, opts FileOptions) []DocumentReport {
	reports := make([]DocumentReport, 0, len(paths))
	docs := make([]knowledge.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := DocumentFromFile(path, opts)
		if err != nil {
			reports = append(reports, DocumentReport{
				SourceID: filepath.Clean(path),
				Status:   StatusFailed,
				Detail:   err.Error(),
			})
			continue
		}
		docs = append(docs, doc)
	}
	reports = append(reports, s.Ingest(ctx, docs)...)
	return reports
}
