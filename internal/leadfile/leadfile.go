// Package leadfile reads lead batches from JSON, YAML, CSV, and XLSX files.
//
// Every format yields one JSON object per lead so that malformed entries are
// counted by ingestion exactly as they would be over HTTP.
package leadfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Columns maps lowercased tabular header names to lead input fields. Other
// columns (such as id and createdAt in an export) are ignored.
var Columns = map[string]string{
	"email":        "email",
	"name":         "name",
	"businessname": "businessName",
	"phone":        "phone",
	"website":      "website",
	"niche":        "niche",
	"industry":     "industry",
	"state":        "state",
	"city":         "city",
	"zip":          "zip",
	"source":       "source",
	"sourceurl":    "sourceUrl",
	"sourcedetail": "sourceDetail",
}

// Read loads the batch at path, choosing the parser by file extension.
// Unknown extensions are parsed as JSON.
func Read(ctx context.Context, path string) ([]json.RawMessage, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "leadfile: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	case ".xlsx":
		return ReadXLSX(path)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "leadfile: read yaml")
		}
		return ParseYAML(data)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "leadfile: read json")
		}
		return ParseJSON(data)
	}
}

// ParseJSON accepts a bare array of leads or an object with a "leads" array.
func ParseJSON(data []byte) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}
	var wrapped struct {
		Leads []json.RawMessage `json:"leads"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, eris.Wrap(err, "leadfile: parse json")
	}
	return wrapped.Leads, nil
}

// ParseYAML accepts a YAML list of lead mappings.
func ParseYAML(data []byte) ([]json.RawMessage, error) {
	var items []map[string]any
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrap(err, "leadfile: parse yaml")
	}
	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, eris.Wrapf(err, "leadfile: yaml entry %d", i)
		}
		out = append(out, raw)
	}
	return out, nil
}

// rowsToEntries turns tabular rows into lead objects using header for
// column names. Blank cells are omitted.
func rowsToEntries(header []string, rows [][]string) ([]json.RawMessage, error) {
	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = Columns[strings.ToLower(strings.TrimSpace(h))]
	}

	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		entry := make(map[string]string, len(row))
		for i, cell := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			if v := strings.TrimSpace(cell); v != "" {
				entry[fields[i]] = v
			}
		}
		if len(entry) == 0 {
			continue
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, eris.Wrap(err, "leadfile: encode row")
		}
		out = append(out, raw)
	}
	return out, nil
}
