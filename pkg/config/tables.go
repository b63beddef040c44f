// Package config loads tables file, a list of spreadsheet ranges created as virtual tables on start.
// The file is yaml (.yml, .yaml or no extension) or toml (.toml), for example:
//
//	module: gsqlite
//	tables:
//	  - name: employees
//	    id: https://docs.google.com/spreadsheets/d/1gVGl.../edit
//	    sheet: Jan
//	    range: A2:D50
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/gsqlite/pkg/sheet"
	"github.com/umputun/gsqlite/pkg/vtable"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Tables is the tables file content
type Tables struct {
	Module string  `yaml:"module" toml:"module"`
	Tables []Table `yaml:"tables" toml:"tables"`
}

// Table defines a single virtual table
type Table struct {
	Name  string `yaml:"name" toml:"name"`
	ID    string `yaml:"id" toml:"id"`
	Sheet string `yaml:"sheet" toml:"sheet"`
	Range string `yaml:"range" toml:"range"`
}

// Load reads and validates tables file
func Load(fname string) (*Tables, error) {
	data, err := os.ReadFile(fname) //nolint:gosec // file name from cli
	if err != nil {
		return nil, fmt.Errorf("can't read tables file %s: %w", fname, err)
	}

	res := &Tables{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // strict mode, fail on unknown fields
		if err = dec.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml tables file %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err = dec.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml tables file %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown tables file format %s", fname)
	}

	if err = res.validate(); err != nil {
		return nil, fmt.Errorf("invalid tables file %s: %w", fname, err)
	}
	log.Printf("[DEBUG] loaded %d tables from %s", len(res.Tables), fname)
	return res, nil
}

// validate collects all problems, not just the first one
func (t *Tables) validate() error {
	errs := new(multierror.Error)
	if t.Module != "" && !identRe.MatchString(t.Module) {
		errs = multierror.Append(errs, fmt.Errorf("module name %q is not an identifier", t.Module))
	}

	names := map[string]bool{}
	for i, tbl := range t.Tables {
		prefix := fmt.Sprintf("table #%d", i+1)
		if tbl.Name != "" {
			prefix = fmt.Sprintf("table %q", tbl.Name)
		}

		switch {
		case tbl.Name == "":
			errs = multierror.Append(errs, fmt.Errorf("%s: name is required", prefix))
		case !identRe.MatchString(tbl.Name):
			errs = multierror.Append(errs, fmt.Errorf("%s: name is not an identifier", prefix))
		case names[strings.ToLower(tbl.Name)]:
			errs = multierror.Append(errs, fmt.Errorf("%s: duplicate name", prefix))
		}
		names[strings.ToLower(tbl.Name)] = true

		if tbl.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: id is required", prefix))
		}
		if tbl.Sheet == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: sheet is required", prefix))
		}
		if !sheet.ParseRange(tbl.Range).Valid() {
			errs = multierror.Append(errs, fmt.Errorf("%s: invalid range %q", prefix, tbl.Range))
		}
		for _, f := range []struct{ name, val string }{{"id", tbl.ID}, {"sheet", tbl.Sheet}, {"range", tbl.Range}} {
			if strings.ContainsAny(f.val, `'"`) {
				errs = multierror.Append(errs, fmt.Errorf("%s: %s can't contain quotes", prefix, f.name))
			}
		}
	}
	return errs.ErrorOrNil()
}

// ModuleName returns module from the file if set, otherwise the given default
func (t *Tables) ModuleName(def string) string {
	if t.Module != "" {
		return t.Module
	}
	if def != "" {
		return def
	}
	return vtable.DefaultName
}

// Statements makes CREATE VIRTUAL TABLE statements for all tables
func (t *Tables) Statements(module string) []string {
	res := make([]string, 0, len(t.Tables))
	for _, tbl := range t.Tables {
		res = append(res, tbl.Statement(module))
	}
	return res
}

// Statement makes CREATE VIRTUAL TABLE statement for the table
func (t Table) Statement(module string) string {
	return fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s(ID '%s', SHEET '%s', RANGE '%s')",
		t.Name, module, t.ID, t.Sheet, strings.TrimSpace(t.Range))
}

// Options returns parsed module options of the table
func (t Table) Options() sheet.Options {
	return sheet.Options{ID: t.ID, Sheet: t.Sheet, Range: sheet.ParseRange(t.Range)}
}
