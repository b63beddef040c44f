package sheet

import (
	"database/sql/driver"
	"strconv"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// Kind of inferred cell value
type Kind int

// enum of all supported kinds
const (
	Null Kind = iota
	Text
	Integer
	Float
)

// String returns kind name
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return "null"
	}
}

// Value is a typed cell value, inferred from formatted and effective values of the cell.
// Only the field matching Kind is set.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
}

// Infer converts raw cell data to a typed value. Rules, in order:
//   - no cell, or neither formatted nor effective value: Null
//   - effective string: Text, strings always win
//   - effective number: Text(formatted) if formatted is neither int nor float and has no "%",
//     this is how dates, times and durations look like; Integer if formatted is an integer;
//     Float(effective number) otherwise
//   - formatted value only: Text(formatted)
func Infer(c *sheets.CellData) Value {
	if c == nil || (c.FormattedValue == "" && c.EffectiveValue == nil) {
		return Value{Kind: Null}
	}

	formatted := c.FormattedValue
	if ev := c.EffectiveValue; ev != nil {
		if ev.StringValue != nil {
			return Value{Kind: Text, Str: *ev.StringValue}
		}

		if ev.NumberValue != nil {
			if formatted == "" {
				return Value{Kind: Float, Float: *ev.NumberValue}
			}
			intVal, intErr := strconv.ParseInt(formatted, 10, 64)
			_, floatErr := strconv.ParseFloat(formatted, 64)
			if intErr != nil && floatErr != nil && !strings.Contains(formatted, "%") {
				// can't be reconstructed from the raw number, keep what the sheet shows
				return Value{Kind: Text, Str: formatted}
			}
			if intErr == nil {
				return Value{Kind: Integer, Int: intVal}
			}
			return Value{Kind: Float, Float: *ev.NumberValue}
		}
	}

	if formatted == "" {
		return Value{Kind: Null}
	}
	return Value{Kind: Text, Str: formatted}
}

// Driver returns value as one of nil, string, int64 or float64
func (v Value) Driver() driver.Value {
	switch v.Kind {
	case Text:
		return v.Str
	case Integer:
		return v.Int
	case Float:
		return v.Float
	default:
		return nil
	}
}

// String renders value as text, empty for Null
func (v Value) String() string {
	switch v.Kind {
	case Text:
		return v.Str
	case Integer:
		return strconv.FormatInt(v.Int, 10)
	case Float:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return ""
	}
}
