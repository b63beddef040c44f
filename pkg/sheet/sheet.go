// Package sheet implements a single range of a remote spreadsheet as a read-only table.
// It covers range and column addressing, cell value inference, the table itself and
// a forward-only reader over the fetched rows.
package sheet

import (
	"context"
	"fmt"
	"log"
	"sync"

	"google.golang.org/api/sheets/v4"
)

// Source fetches spreadsheet data for a range of the named sheet
type Source interface {
	Fetch(ctx context.Context, id, sheetName string, rng Range, token string) (*sheets.Spreadsheet, error)
}

// TokenProvider returns bearer token used to access the source
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Sheet is a fetched range of a spreadsheet. Rows are empty until Open succeeds
// and immutable after that.
type Sheet struct {
	mu   sync.Mutex
	id   string
	name string
	rng  Range
	rows []*sheets.RowData

	auth TokenProvider
	src  Source
}

// New makes a sheet for options, doesn't fetch anything
func New(opts Options, auth TokenProvider, src Source) *Sheet {
	return &Sheet{id: opts.ID, name: opts.Sheet, rng: opts.Range, auth: auth, src: src}
}

// Open gets a token and fetches rows of the range. Blocks till the source responds,
// including interactive authorization if token provider needs it.
func (s *Sheet) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("can't get access token: %w", err)
	}

	resp, err := s.src.Fetch(ctx, s.id, s.name, s.rng, token)
	if err != nil {
		return fmt.Errorf("can't fetch %s!%s from %s: %w", s.name, s.rng, s.id, err)
	}

	rows, err := extractRows(resp)
	if err != nil {
		return err
	}
	s.rows = rows
	log.Printf("[DEBUG] fetched %d rows from %s!%s", len(rows), s.name, s.rng)
	return nil
}

// extractRows gets row data of the first data block of the only sheet in response
func extractRows(resp *sheets.Spreadsheet) ([]*sheets.RowData, error) {
	if resp == nil || len(resp.Sheets) == 0 || resp.Sheets[0] == nil {
		return nil, fmt.Errorf("no sheet in response: %w", ErrMalformedResponse)
	}
	data := resp.Sheets[0].Data
	if len(data) == 0 || data[0] == nil {
		return nil, fmt.Errorf("no data block in response: %w", ErrMalformedResponse)
	}
	if len(data) > 1 {
		log.Printf("[WARN] response has %d data blocks, using the first one", len(data))
	}
	if data[0].RowData == nil {
		return nil, fmt.Errorf("no row data in response: %w", ErrMalformedResponse)
	}
	return data[0].RowData, nil
}

// Columns returns column names, based on the width of the first fetched row and the range start column.
// I.e. range starting at "C" with 3 cells in the first row gives C, D and E.
func (s *Sheet) Columns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rows) == 0 || s.rows[0] == nil {
		return []string{}
	}
	start := ColumnToNumber(s.rng.StartColumn)
	res := make([]string, 0, len(s.rows[0].Values))
	for i := range s.rows[0].Values {
		res = append(res, NumberToColumn(i+start))
	}
	return res
}

// Reader returns a reader over a snapshot of the current rows
func (s *Sheet) Reader() *Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*sheets.RowData, len(s.rows))
	copy(rows, s.rows)
	return NewReader(rows)
}

// Rows returns number of fetched rows
func (s *Sheet) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ID returns spreadsheet id or url as it was passed in options
func (s *Sheet) ID() string { return s.id }

// Name returns sheet name
func (s *Sheet) Name() string { return s.name }

// Range returns the requested range
func (s *Sheet) Range() Range { return s.rng }
