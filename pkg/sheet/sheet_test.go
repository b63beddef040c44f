package sheet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/sheets/v4"
)

type staticToken struct {
	token string
	err   error
	calls int
}

func (s *staticToken) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

type fakeSource struct {
	resp  *sheets.Spreadsheet
	err   error
	calls []string
}

func (f *fakeSource) Fetch(_ context.Context, id, sheetName string, rng Range, token string) (*sheets.Spreadsheet, error) {
	f.calls = append(f.calls, id+"|"+sheetName+"|"+rng.String()+"|"+token)
	return f.resp, f.err
}

func makeResponse(rows ...*sheets.RowData) *sheets.Spreadsheet {
	return &sheets.Spreadsheet{Sheets: []*sheets.Sheet{{Data: []*sheets.GridData{{RowData: rows}}}}}
}

func makeRow(vals ...string) *sheets.RowData {
	row := &sheets.RowData{}
	for _, v := range vals {
		row.Values = append(row.Values, strCell(v, v))
	}
	return row
}

func TestSheet_Open(t *testing.T) {
	src := &fakeSource{resp: makeResponse(makeRow("1", "2", "3"), makeRow("4", "5"))}
	auth := &staticToken{token: "tok"}
	s := New(Options{ID: "sheet123", Sheet: "Jan", Range: ParseRange("C2:E5")}, auth, src)

	assert.Equal(t, 0, s.Rows())
	assert.Empty(t, s.Columns())

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"sheet123|Jan|C2:E5|tok"}, src.calls)
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, 2, s.Rows())
	assert.Equal(t, []string{"C", "D", "E"}, s.Columns())
	assert.Equal(t, "sheet123", s.ID())
	assert.Equal(t, "Jan", s.Name())
	assert.Equal(t, "C2:E5", s.Range().String())
}

func TestSheet_ColumnsFromFirstRow(t *testing.T) {
	tbl := []struct {
		name  string
		start string
		rows  []*sheets.RowData
		exp   []string
	}{
		{"wider than range", "A1:B2", []*sheets.RowData{makeRow("1", "2", "3", "4")}, []string{"A", "B", "C", "D"}},
		{"crosses Z", "Y1:AB2", []*sheets.RowData{makeRow("1", "2", "3", "4")}, []string{"Y", "Z", "AA", "AB"}},
		{"first row decides", "A1:C3", []*sheets.RowData{makeRow("1"), makeRow("1", "2", "3")}, []string{"A"}},
		{"no rows", "A1:C3", []*sheets.RowData{}, []string{}},
		{"empty first row", "A1:C3", []*sheets.RowData{{}}, []string{}},
		{"nil first row", "A1:C3", []*sheets.RowData{nil}, []string{}},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{ID: "x", Sheet: "y", Range: ParseRange(tt.start)}, &staticToken{},
				&fakeSource{resp: makeResponse(tt.rows...)})
			require.NoError(t, s.Open(context.Background()))
			assert.Equal(t, tt.exp, s.Columns())
		})
	}
}

func TestSheet_OpenErrors(t *testing.T) {
	opts := Options{ID: "x", Sheet: "y", Range: ParseRange("A1:B2")}

	t.Run("token error", func(t *testing.T) {
		src := &fakeSource{resp: makeResponse()}
		s := New(opts, &staticToken{err: errors.New("no consent")}, src)
		err := s.Open(context.Background())
		require.ErrorContains(t, err, "no consent")
		assert.Empty(t, src.calls, "no fetch without token")
	})

	t.Run("remote error", func(t *testing.T) {
		s := New(opts, &staticToken{}, &fakeSource{err: &RemoteError{Status: 403, Body: "forbidden"}})
		err := s.Open(context.Background())
		var rerr *RemoteError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "forbidden", rerr.Body)
		assert.Equal(t, 0, s.Rows())
	})

	malformed := []struct {
		name string
		resp *sheets.Spreadsheet
	}{
		{"nil response", nil},
		{"no sheets", &sheets.Spreadsheet{}},
		{"nil sheet", &sheets.Spreadsheet{Sheets: []*sheets.Sheet{nil}}},
		{"no data", &sheets.Spreadsheet{Sheets: []*sheets.Sheet{{}}}},
		{"no row data", &sheets.Spreadsheet{Sheets: []*sheets.Sheet{{Data: []*sheets.GridData{{}}}}}},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			s := New(opts, &staticToken{}, &fakeSource{resp: tt.resp})
			err := s.Open(context.Background())
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestSheet_ReaderIsSnapshot(t *testing.T) {
	src := &fakeSource{resp: makeResponse(makeRow("a"), makeRow("b"))}
	s := New(Options{ID: "x", Sheet: "y", Range: ParseRange("A1:A2")}, &staticToken{}, src)
	require.NoError(t, s.Open(context.Background()))

	r := s.Reader()
	src.resp = makeResponse(makeRow("c"))
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, 1, s.Rows())

	assert.Equal(t, "a", Infer(r.Value(0)).Str)
	r.MoveNext()
	assert.Equal(t, "b", Infer(r.Value(0)).Str)
	r.MoveNext()
	assert.False(t, r.HasValue())
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "unexpected response, status 404: not found", (&RemoteError{Status: 404, Body: "not found"}).Error())
	assert.Contains(t, (&RemoteError{Status: 500}).Error(), "no explanation")
	perr := &ParseError{Err: errors.New("bad json")}
	assert.Equal(t, "can't parse response: bad json", perr.Error())
	assert.Equal(t, "bad json", errors.Unwrap(perr).Error())
}
