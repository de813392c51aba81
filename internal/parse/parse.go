// Package parse extracts candidate pools from list files.
//
// Three formats are supported, mirroring the desktop app's importers:
// CSV (name column, optional weight column), plain text (one candidate per
// line with an optional separated weight) and JSON (an array of objects or
// strings, or a name-to-weight map). Every parser produces parallel
// name/weight slices with weights defaulting to 1 and clamped to be
// non-negative, and names NFC-normalized so visually identical entries
// compare equal.
package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"
)

// ErrNoValidEntries indicates the input decoded but yielded zero usable
// candidates.
var ErrNoValidEntries = errors.New("no valid entries")

// Format names a supported list file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
)

// DetectFormat guesses the format from a file path's extension. Unknown
// extensions fall back to CSV, which also handles single-column files.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatTXT
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// Parse extracts names and weights from raw content in the given format.
func Parse(content []byte, format Format) ([]string, []float64, error) {
	switch format {
	case FormatTXT:
		return ParseTXT(content)
	case FormatJSON:
		return ParseJSON(content)
	default:
		return ParseCSV(content)
	}
}

// ParseCSV reads candidates from CSV content: column one is the name,
// column two (when present and numeric) the weight.
func ParseCSV(content []byte) ([]string, []float64, error) {
	r := csv.NewReader(strings.NewReader(string(content)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}

	var names []string
	var weights []float64
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		name := cleanName(row[0])
		if name == "" {
			continue
		}
		weight := 1.0
		if len(row) >= 2 {
			weight = parseWeight(row[1])
		}
		names = append(names, name)
		weights = append(weights, weight)
	}
	if len(names) == 0 {
		return nil, nil, ErrNoValidEntries
	}
	return names, weights, nil
}

// txtSeparators are tried in order when splitting a text line into name
// and weight.
var txtSeparators = []string{"\t", ",", " "}

// ParseTXT reads candidates from plain text, one per line. A line may
// carry a weight after the first tab, comma or space; anything that fails
// to parse as a number leaves the default weight 1.
func ParseTXT(content []byte) ([]string, []float64, error) {
	var names []string
	var weights []float64

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name := line
		weight := 1.0
		for _, sep := range txtSeparators {
			if before, after, found := strings.Cut(line, sep); found {
				name = before
				weight = parseWeight(after)
				break
			}
		}

		name = cleanName(name)
		if name == "" {
			continue
		}
		names = append(names, name)
		weights = append(weights, weight)
	}
	if len(names) == 0 {
		return nil, nil, ErrNoValidEntries
	}
	return names, weights, nil
}

// jsonEntry is one object-form candidate in a JSON list.
type jsonEntry struct {
	Name   string   `json:"name"`
	Weight *float64 `json:"weight"`
}

// ParseJSON reads candidates from JSON content. Accepted shapes:
//
//   - an array of objects with "name" and optional "weight"
//   - an array of plain strings (weight 1 each)
//   - an object mapping name to weight
func ParseJSON(content []byte) ([]string, []float64, error) {
	var names []string
	var weights []float64

	var list []json.RawMessage
	if err := json.Unmarshal(content, &list); err == nil {
		for _, raw := range list {
			var entry jsonEntry
			if err := json.Unmarshal(raw, &entry); err == nil && entry.Name != "" {
				name := cleanName(entry.Name)
				if name == "" {
					continue
				}
				weight := 1.0
				if entry.Weight != nil {
					weight = max(0, *entry.Weight)
				}
				names = append(names, name)
				weights = append(weights, weight)
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				if name := cleanName(s); name != "" {
					names = append(names, name)
					weights = append(weights, 1)
				}
			}
		}
	} else {
		var m map[string]float64
		if err := json.Unmarshal(content, &m); err != nil {
			return nil, nil, fmt.Errorf("decode json list: %w", err)
		}
		// Map iteration order is random; sort for a stable pool.
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			name := cleanName(k)
			if name == "" {
				continue
			}
			names = append(names, name)
			weights = append(weights, max(0, m[k]))
		}
	}

	if len(names) == 0 {
		return nil, nil, ErrNoValidEntries
	}
	return names, weights, nil
}

func cleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// parseWeight converts a weight field, defaulting to 1 on junk and
// clamping negatives to zero.
func parseWeight(s string) float64 {
	w, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 1
	}
	return max(0, w)
}
