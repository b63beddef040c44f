package sheet

import (
	"log"
	"regexp"
	"strings"
)

var optionRe = regexp.MustCompile(`(?i)^(ID|SHEET|RANGE)\s+['"]([^'"]+)['"]$`)

// Options defines a table created from module arguments, like ID 'abc', SHEET 'Jan', RANGE 'A2:F5'
type Options struct {
	ID    string
	Sheet string
	Range Range
}

// ParseOptions collects options from module arguments. Unknown or malformed arguments are ignored.
// Returns ErrNoID, ErrNoSheet or ErrInvalidRange (checked in this order) if required option is missing.
func ParseOptions(args []string) (Options, error) {
	res := Options{Range: invalidRange}
	for _, arg := range args {
		key, val, err := parseOption(arg)
		if err != nil {
			log.Printf("[DEBUG] ignore module argument %q: %v", arg, err)
			continue
		}
		switch key {
		case "id":
			res.ID = val
		case "sheet":
			res.Sheet = val
		case "range":
			res.Range = ParseRange(val)
		}
	}

	if res.ID == "" {
		return Options{}, ErrNoID
	}
	if res.Sheet == "" {
		return Options{}, ErrNoSheet
	}
	if !res.Range.Valid() {
		return Options{}, ErrInvalidRange
	}
	return res, nil
}

// parseOption splits a single argument into lower-cased key and unquoted value
func parseOption(arg string) (key, val string, err error) {
	m := optionRe.FindStringSubmatch(strings.TrimSpace(arg))
	if m == nil {
		return "", "", ErrUnknownOption
	}
	return strings.ToLower(m[1]), m[2], nil
}
