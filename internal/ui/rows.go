package ui

import (
	"unicode/utf8"

	"github.com/subham/flightsearch/internal/field"
	"github.com/subham/flightsearch/internal/location"
)

// loadMoreThreshold is how close to the last option the cursor has to get
// before the next page is requested.
const loadMoreThreshold = 2

type rowKind int

const (
	rowHeader rowKind = iota
	rowOption
)

// row is one line of the dropdown: a group heading or an option.
type row struct {
	kind   rowKind
	text   string
	code   string
	option int // index into View.Options, -1 for headings
}

// dropdownRows flattens the options of v into display rows, starting a new
// heading whenever the group changes.
func dropdownRows(v field.View) []row {
	rows := make([]row, 0, len(v.Options)+4)
	prev := ""
	for i, r := range v.Options {
		key := location.GroupKey(r)
		if i == 0 || key != prev {
			label := v.GroupLabels[key]
			if label == "" {
				label = key
			}
			rows = append(rows, row{kind: rowHeader, text: label, option: -1})
			prev = key
		}
		rows = append(rows, row{
			kind:   rowOption,
			text:   location.GroupedName(r),
			code:   location.NormalizeCode(r.Code),
			option: i,
		})
	}
	return rows
}

// windowStart returns the first row to draw so that the row of the
// highlighted option, and its heading when possible, fit in limit rows.
func windowStart(rows []row, cursor, limit int) int {
	if limit <= 0 || len(rows) <= limit {
		return 0
	}
	at := 0
	for i, r := range rows {
		if r.option == cursor {
			at = i
			break
		}
	}
	start := at - limit + 1
	if start < 0 {
		start = 0
	}
	if at > 0 && rows[at-1].kind == rowHeader && start == at {
		start--
	}
	if start > len(rows)-limit {
		start = len(rows) - limit
	}
	return start
}

// nearBottom reports whether cursor is close enough to the end of n options
// to ask for more.
func nearBottom(cursor, n int) bool {
	return n > 0 && cursor >= n-loadMoreThreshold
}

// clampCursor keeps cursor inside [0, n).
func clampCursor(cursor, n int) int {
	if n <= 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}

func trimLastRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}
