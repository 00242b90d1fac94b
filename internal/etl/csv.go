package etl

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Header returns the union of the rows' columns in first-seen order.
func Header(rows []*Row) []string {
	seen := make(map[string]bool)
	var header []string
	for _, r := range rows {
		for _, c := range r.columns {
			if !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
	}
	return header
}

// WriteCSV writes rows under Header(rows). Null and missing cells are empty.
func WriteCSV(w io.Writer, rows []*Row) error {
	cw := csv.NewWriter(w)
	header := Header(rows)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for i, r := range rows {
		for j, c := range header {
			record[j] = r.String(c)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
