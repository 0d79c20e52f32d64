// Package table reads the tabular formats returned by the archive (IPAC,
// VOTable, CSV and TSV) into a simple string-valued Table.
package table

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Format names a table serialization understood by the TAP service.
type Format string

const (
	FormatVOTable Format = "votable"
	FormatIPAC    Format = "ipac"
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatVOTable, FormatIPAC, FormatCSV, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported table format %q (want votable, ipac, csv or tsv)", value)
	}
}

// Ext returns the conventional file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatIPAC:
		return ".tbl"
	case FormatCSV:
		return ".csv"
	case FormatTSV:
		return ".tsv"
	default:
		return ".xml"
	}
}

// Table is an in-memory result table. All cells are kept as text.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the index of the first column matching any of names,
// compared case-insensitively, or -1.
func (t *Table) ColumnIndex(names ...string) int {
	if t == nil {
		return -1
	}
	for _, name := range names {
		for i, col := range t.Columns {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
	}
	return -1
}

// Value returns the cell at row, col or "" when out of range.
func (t *Table) Value(row, col int) string {
	if t == nil || row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Read parses r according to format.
func Read(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatIPAC:
		return readIPAC(r)
	case FormatVOTable:
		return readVOTable(r)
	case FormatCSV:
		return readDelimited(r, ',')
	case FormatTSV:
		return readDelimited(r, '\t')
	default:
		return nil, fmt.Errorf("unsupported table format %q", format)
	}
}

// ReadFile opens path and parses it according to format.
func ReadFile(path string, format Format) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer file.Close()

	t, err := Read(file, format)
	if err != nil {
		return nil, fmt.Errorf("read %s table %s: %w", format, path, err)
	}
	return t, nil
}
