package sheet

import (
	"sync"

	"google.golang.org/api/sheets/v4"
)

// Reader is a forward-only cursor over a snapshot of sheet rows.
// Position starts at 0, position equal to the number of rows means end of data.
type Reader struct {
	mu   sync.Mutex
	rows []*sheets.RowData
	pos  int
}

// NewReader makes a reader over the given rows. Rows are not copied, use Sheet.Reader for a snapshot.
func NewReader(rows []*sheets.RowData) *Reader {
	return &Reader{rows: rows}
}

// HasValue reports whether the reader points to a row
func (r *Reader) HasValue() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos < len(r.rows)
}

// MoveNext advances to the next row. Moving past the end is allowed and keeps HasValue false.
func (r *Reader) MoveNext() {
	r.mu.Lock()
	r.pos++
	r.mu.Unlock()
}

// Rewind moves reader back to the first row
func (r *Reader) Rewind() {
	r.mu.Lock()
	r.pos = 0
	r.mu.Unlock()
}

// Value returns cell of the current row by 0-based column index.
// Returns nil if either row or column is out of range, nil is an empty cell.
func (r *Reader) Value(col int) *sheets.CellData {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.rows) || col < 0 {
		return nil
	}
	row := r.rows[r.pos]
	if row == nil || col >= len(row.Values) {
		return nil
	}
	return row.Values[col]
}

// Rowid returns current position, used as row identifier during the scan
func (r *Reader) Rowid() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.pos)
}
