// Package vtable implements sqlite virtual table module exposing a spreadsheet range as a read-only table.
// It maps sqlite lifecycle calls (create, connect, open, filter, next, eof, column, rowid, close,
// disconnect, destroy) onto sheet.Sheet and sheet.Reader.
//
// Usage:
//
//	CREATE VIRTUAL TABLE employees USING gsqlite(ID '<id or url>', SHEET 'Jan', RANGE 'A2:D50');
//	SELECT * FROM employees WHERE D LIKE 'E%';
//
// Columns are named by the spreadsheet column letters, starting from the first column of the range.
package vtable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // registers sqlite driver and installs vtab hook
	"modernc.org/sqlite/vtab"

	"github.com/umputun/gsqlite/pkg/sheet"
)

// DefaultName is the module name used in CREATE VIRTUAL TABLE ... USING <name>(...)
const DefaultName = "gsqlite"

var (
	// ErrNoColumns returned on create if the first fetched row has no cells
	ErrNoColumns = errors.New("no columns, range has no data")
	// ErrTableClosed returned by table methods after disconnect or destroy
	ErrTableClosed = errors.New("table is closed")
	// ErrCursorClosed returned by cursor methods after close
	ErrCursorClosed = errors.New("cursor is closed")
)

// Module is a virtual table module creating tables from spreadsheet ranges.
// Token provider and source are shared by all tables made by the module.
type Module struct {
	auth sheet.TokenProvider
	src  sheet.Source
}

// New makes a module with the given token provider and spreadsheet source
func New(auth sheet.TokenProvider, src sheet.Source) *Module {
	return &Module{auth: auth, src: src}
}

// Register registers module under the given name. Registration is process-wide and
// applies to connections opened after this call, name can be registered once.
func Register(db *sql.DB, name string, m *Module) error {
	if err := vtab.RegisterModule(db, name, m); err != nil {
		return fmt.Errorf("can't register module %q: %w", name, err)
	}
	log.Printf("[DEBUG] module %q registered", name)
	return nil
}

// Create makes a new table, fetching the range and declaring schema from the fetched data.
// args are module name, database name, table name and module arguments.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.makeTable(ctx, args)
}

// Connect is the same as Create, schema is always derived from a fresh fetch
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.makeTable(ctx, args)
}

func (m *Module) makeTable(vctx vtab.Context, args []string) (vtab.Table, error) {
	tblName := ""
	if len(args) > 2 {
		tblName = args[2]
	}
	var modArgs []string
	if len(args) > 3 {
		modArgs = args[3:]
	}

	opts, err := sheet.ParseOptions(modArgs)
	if err != nil {
		return nil, fmt.Errorf("can't create table %s: %w", tblName, err)
	}

	sh := sheet.New(opts, m.auth, m.src)
	if err = sh.Open(context.Background()); err != nil {
		return nil, fmt.Errorf("can't create table %s: %w", tblName, err)
	}

	cols := sh.Columns()
	if len(cols) == 0 {
		return nil, fmt.Errorf("can't create table %s from %s!%s: %w", tblName, opts.Sheet, opts.Range, ErrNoColumns)
	}
	if err = vctx.Declare(CreateStatement(cols)); err != nil {
		return nil, fmt.Errorf("can't declare table %s: %w", tblName, err)
	}

	log.Printf("[INFO] table %s created from %s!%s, %d columns, %d rows", tblName, opts.Sheet, opts.Range, len(cols), sh.Rows())
	return &Table{name: tblName, sheet: sh}, nil
}

// CreateStatement makes schema declaration for the given columns
func CreateStatement(columns []string) string {
	return fmt.Sprintf("CREATE TABLE sheet(%s)", strings.Join(columns, ", "))
}

// Table is a virtual table over a fetched sheet
type Table struct {
	mu    sync.Mutex
	name  string
	sheet *sheet.Sheet
}

// BestIndex doesn't push down anything, all constraints are evaluated by sqlite.
// It only reports the number of rows to the planner.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sheet == nil {
		return ErrTableClosed
	}
	rows := t.sheet.Rows()
	info.EstimatedRows = int64(rows)
	info.EstimatedCost = float64(rows) + 1
	return nil
}

// Open makes a cursor over a snapshot of the table rows
func (t *Table) Open() (vtab.Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sheet == nil {
		return nil, ErrTableClosed
	}
	return &Cursor{reader: t.sheet.Reader()}, nil
}

// Disconnect releases the table
func (t *Table) Disconnect() error {
	t.release("disconnected")
	return nil
}

// Destroy releases the table, nothing to remove remotely
func (t *Table) Destroy() error {
	t.release("destroyed")
	return nil
}

func (t *Table) release(what string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sheet == nil {
		return
	}
	t.sheet = nil
	log.Printf("[DEBUG] table %s %s", t.name, what)
}

// Cursor is a forward-only scan over table rows
type Cursor struct {
	mu     sync.Mutex
	reader *sheet.Reader
}

// Filter starts a scan from the first row. No constraints are handled, vals are ignored.
func (c *Cursor) Filter(_ int, _ string, _ []vtab.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return ErrCursorClosed
	}
	c.reader.Rewind()
	return nil
}

// Next advances to the next row
func (c *Cursor) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return ErrCursorClosed
	}
	c.reader.MoveNext()
	return nil
}

// Eof reports whether the cursor is past the last row, closed cursor is always at eof
func (c *Cursor) Eof() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader == nil || !c.reader.HasValue()
}

// Column returns inferred value of the cell in the current row, nil for empty or missing cells
func (c *Cursor) Column(col int) (vtab.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return nil, ErrCursorClosed
	}
	return sheet.Infer(c.reader.Value(col)).Driver(), nil
}

// Rowid returns 0-based position of the current row
func (c *Cursor) Rowid() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return 0, ErrCursorClosed
	}
	return c.reader.Rowid(), nil
}

// Close releases the cursor, second close is a no-op
func (c *Cursor) Close() error {
	c.mu.Lock()
	c.reader = nil
	c.mu.Unlock()
	return nil
}
