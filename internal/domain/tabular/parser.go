// Package tabular turns delimited price-list text into header-keyed rows.
package tabular

import (
	"strings"
)

const byteOrderMark = "\uFEFF"

// Row maps header names to trimmed cell values.
type Row map[string]string

// Has reports whether the header row declared column.
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Get returns the cell for column and whether the column exists.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// Parse splits content into rows keyed by the first non-blank line.
//
// Blank lines are ignored wherever they occur. Quoted fields may contain commas
// and doubled quotes but never span lines. Missing trailing cells become empty
// strings and cells beyond the header width are dropped. Content without any
// non-blank line yields no rows. A leading byte order mark is ignored.
func Parse(content string) []Row {
	lines := splitLines(strings.TrimPrefix(content, byteOrderMark))
	if len(lines) == 0 {
		return []Row{}
	}
	headers := splitFields(lines[0])
	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cells := splitFields(line)
		row := make(Row, len(headers))
		for i, header := range headers {
			if i < len(cells) {
				row[header] = cells[i]
				continue
			}
			row[header] = ""
		}
		rows = append(rows, row)
	}
	return rows
}

func splitLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func splitFields(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			current.WriteByte('"')
			i++
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}
