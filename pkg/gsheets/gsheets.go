// Package gsheets implements read-only spreadsheet source backed by Google Sheets API v4.
// It fetches grid data (formatted and effective values) of a single range with a bearer token.
package gsheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/umputun/gsqlite/pkg/sheet"
)

// ErrInvalidSheetID returned for a URL without spreadsheet id in its path
var ErrInvalidSheetID = errors.New("invalid spreadsheet id")

var plainSheetName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Client fetches spreadsheet data. Endpoint overrides the default API base URL, used in tests.
type Client struct {
	Endpoint string
}

// Fetch gets grid data of the range on the named sheet. id is either a spreadsheet id
// or a spreadsheet URL like https://docs.google.com/spreadsheets/d/<id>/edit
func (c *Client) Fetch(ctx context.Context, id, sheetName string, rng sheet.Range, token string) (*sheets.Spreadsheet, error) {
	sheetID, err := SpreadsheetID(id)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))),
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("can't make sheets service: %w", err)
	}

	ranges := RangeParam(sheetName, rng)
	log.Printf("[DEBUG] fetch spreadsheet %s, ranges %s", sheetID, ranges)
	resp, err := srv.Spreadsheets.Get(sheetID).Ranges(ranges).IncludeGridData(true).Context(ctx).Do()
	if err != nil {
		return nil, convertError(err)
	}
	return resp, nil
}

// SpreadsheetID extracts spreadsheet id from URL, non-URL values returned as is
func SpreadsheetID(id string) (string, error) {
	if !strings.HasPrefix(id, "https://") {
		return id, nil
	}
	u, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("can't parse %q: %w", id, ErrInvalidSheetID)
	}
	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segments) < 3 || segments[2] == "" {
		return "", fmt.Errorf("no id in %q: %w", id, ErrInvalidSheetID)
	}
	return segments[2], nil
}

// RangeParam makes A1 notation of the range on the sheet, names other than
// letters, digits and underscores are quoted
func RangeParam(sheetName string, rng sheet.Range) string {
	if !plainSheetName.MatchString(sheetName) {
		sheetName = "'" + strings.ReplaceAll(sheetName, "'", "''") + "'"
	}
	return sheetName + "!" + rng.String()
}

// convertError maps api errors to remote and parse errors
func convertError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := strings.TrimSpace(gerr.Body)
		if body == "" {
			body = gerr.Message
		}
		return &sheet.RemoteError{Status: gerr.Code, Body: body}
	}

	var synErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &synErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &sheet.ParseError{Err: err}
	}
	return fmt.Errorf("can't fetch spreadsheet: %w", err)
}
