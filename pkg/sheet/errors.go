package sheet

import (
	"errors"
	"fmt"
)

// configuration errors, raised before any network access
var (
	ErrNoID          = errors.New("no ID is provided")
	ErrNoSheet       = errors.New("no sheet name is provided")
	ErrInvalidRange  = errors.New("invalid range is provided")
	ErrUnknownOption = errors.New("unknown option is provided")
)

// ErrMalformedResponse returned when response has no sheet, data block or row data
var ErrMalformedResponse = errors.New("malformed response, expected a single sheet with row data")

// RemoteError is returned when spreadsheet source responds with non-success status
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response, status %d, no explanation from the source", e.Status)
	}
	return fmt.Sprintf("unexpected response, status %d: %s", e.Status, e.Body)
}

// ParseError is returned when response can't be decoded into rows
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("can't parse response: %v", e.Err) }

// Unwrap returns the decoding error
func (e *ParseError) Unwrap() error { return e.Err }
