package store

import (
	"strings"
	"unicode"
)

// Column maps a domain field name to its column: "lastReminderSent" -> "last_reminder_sent".
func Column(field string) string {
	var b strings.Builder
	b.Grow(len(field) + 4)
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Field maps a column name back to its domain field: "last_reminder_sent" -> "lastReminderSent".
func Field(column string) string {
	var b strings.Builder
	b.Grow(len(column))
	upper := false
	for _, r := range column {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToColumns translates record keys to column names.
func ToColumns(r Record) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[Column(k)] = v
	}
	return out
}

// FromColumns translates a column-keyed row into a Record.
func FromColumns(row map[string]any) Record {
	out := make(Record, len(row))
	for k, v := range row {
		out[Field(k)] = v
	}
	return out
}
