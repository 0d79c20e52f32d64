package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

func readDelimited(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("table is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Columns: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		row := make([]string, len(header))
		copy(row, record)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
