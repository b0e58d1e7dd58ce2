package parsers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/username/tradeclean/src/models"
)

type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads a comma-separated export with a header row. A leading byte
// order mark is honored (UTF-8 or UTF-16) and removed. Rows shorter than the
// header are padded with empty values; longer rows are a structure error.
func (p *CSVParser) Parse(file io.Reader) (*models.Table, error) {
	data, err := io.ReadAll(transform.NewReader(file, unicode.BOMOverride(transform.Nop)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode input: %v", ErrSchema, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8 text", ErrSchema)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no columns to parse from file", ErrSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", ErrSchema, err)
	}

	table := &models.Table{Schema: make(models.Schema, len(header))}
	for i, name := range dedupeHeader(header) {
		table.Schema[i] = models.Column{Name: name, Kind: models.KindText}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read CSV record: %v", ErrSchema, err)
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%w: expected %d fields in line %d, saw %d", ErrSchema, len(header), line, len(record))
		}
		row := make([]models.Value, len(header))
		for i, field := range record {
			row[i] = models.TextValue(field)
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// dedupeHeader renames repeated column names to "Name.1", "Name.2", ...
// so every column stays addressable by name.
func dedupeHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	taken := make(map[string]bool, len(header))
	for _, h := range header {
		taken[h] = true
	}
	out := make([]string, len(header))
	for i, h := range header {
		n, dup := seen[h]
		seen[h] = n + 1
		if !dup {
			out[i] = h
			continue
		}
		name := h + "." + strconv.Itoa(n)
		for taken[name] {
			n++
			seen[h] = n + 1
			name = h + "." + strconv.Itoa(n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}
