package sheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var rangeRe = regexp.MustCompile(`(?i)^([a-z]+)(\d+):([a-z]+)(\d+)$`)

// Range is a rectangular cell address span like "A2:F5".
// The zero rows are reserved for the invalid range, see ParseRange.
type Range struct {
	StartColumn string
	StartRow    uint
	EndColumn   string
	EndRow      uint
}

// invalidRange is returned by ParseRange for anything it can't parse
var invalidRange = Range{StartColumn: "A", StartRow: 0, EndColumn: "A", EndRow: 0}

// ParseRange parses range expression like "A2:F5", case-insensitive.
// It never fails, unparsable input results in the invalid range A0:A0 and callers
// should check Valid explicitly.
func ParseRange(s string) Range {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return invalidRange
	}
	// overflowing row numbers become 0 and make the range invalid
	r1, err := strconv.ParseUint(m[2], 10, 0)
	if err != nil {
		r1 = 0
	}
	r2, err := strconv.ParseUint(m[4], 10, 0)
	if err != nil {
		r2 = 0
	}
	return Range{
		StartColumn: strings.ToUpper(m[1]),
		StartRow:    uint(r1),
		EndColumn:   strings.ToUpper(m[3]),
		EndRow:      uint(r2),
	}
}

// Valid reports whether both row numbers are set
func (r Range) Valid() bool {
	return r.StartRow != 0 && r.EndRow != 0
}

// String renders range back to A1 notation
func (r Range) String() string {
	return fmt.Sprintf("%s%d:%s%d", r.StartColumn, r.StartRow, r.EndColumn, r.EndRow)
}
