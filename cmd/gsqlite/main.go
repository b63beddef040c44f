package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/stringutils"
	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/gsqlite/pkg/auth"
	"github.com/umputun/gsqlite/pkg/config"
	"github.com/umputun/gsqlite/pkg/gsheets"
	"github.com/umputun/gsqlite/pkg/secrets"
	"github.com/umputun/gsqlite/pkg/sheet"
	"github.com/umputun/gsqlite/pkg/vtable"
)

type options struct {
	PositionalArgs struct {
		Query string `positional-arg-name:"query" description:"sql query to run"`
	} `positional-args:"yes" positional-optional:"yes"`

	TablesFile string   `short:"f" long:"tables" env:"GSQLITE_TABLES" description:"tables file, yaml or toml"`
	Exec       []string `short:"e" long:"exec" description:"statements to execute before the query"`
	DB         string   `long:"db" env:"GSQLITE_DB" default:":memory:" description:"sqlite database"`
	Module     string   `long:"module" env:"GSQLITE_MODULE" default:"gsqlite" description:"virtual table module name"`
	Format     string   `long:"format" choice:"table" choice:"json" choice:"csv" default:"table" description:"output format"`
	MaxWidth   int      `long:"max-width" default:"40" description:"max cell width in table output, 0 to disable"`
	Check      bool     `long:"check" description:"fetch all tables from tables file and report their shape"`
	Concurrent int      `short:"c" long:"concurrent" default:"4" description:"concurrent fetches in check mode"`
	Token      string   `long:"token" env:"GSQLITE_TOKEN" description:"pre-issued access token, skips consent"`
	SheetsAPI  string   `long:"sheets-api" env:"GSQLITE_SHEETS_API" description:"sheets api base url"`

	Google          GoogleOpts      `group:"google" namespace:"google" env-namespace:"LIBGSQLITE_GOOGLE"`
	Cache           CacheOpts       `group:"cache" namespace:"cache" env-namespace:"GSQLITE_CACHE"`
	SecretsProvider SecretsProvider `group:"secrets" namespace:"secrets" env-namespace:"GSQLITE_SECRETS"`

	Version bool `long:"version" description:"show version"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

// GoogleOpts defines oauth client options
type GoogleOpts struct {
	ClientID     string `long:"client-id" env:"CLIENT_ID" description:"google oauth client id"`
	ClientSecret string `long:"client-secret" env:"CLIENT_SECRET" description:"google oauth client secret"`
	Port         int    `long:"port" env:"PORT" default:"8080" description:"local port for oauth redirect"`
}

// CacheOpts defines token cache options
type CacheOpts struct {
	Type string        `long:"type" env:"TYPE" choice:"none" choice:"file" choice:"db" default:"file" description:"token cache type"`
	File string        `long:"file" env:"FILE" description:"token cache file, temp dir by default"`
	Conn string        `long:"conn" env:"CONN" default:"gsqlite.db" description:"token cache database"`
	Key  string        `long:"key" env:"KEY" description:"encryption key of token cache database"`
	Name string        `long:"name" env:"NAME" default:"google_token" description:"token record name in cache database"`
	TTL  time.Duration `long:"ttl" env:"TTL" default:"59m" description:"token ttl"`
}

// SecretsProvider defines secrets provider options, for all supported providers
type SecretsProvider struct {
	Provider string `long:"provider" env:"PROVIDER" description:"secret provider type" choice:"none" choice:"env" choice:"db" choice:"vault" choice:"aws" choice:"ansible" default:"none"`

	Key       string `long:"key" env:"KEY" description:"secure key for db secrets provider"`
	Conn      string `long:"conn" env:"CONN" description:"connection string for db secrets provider" default:"gsqlite.db"`
	EnvPrefix string `long:"env-prefix" env:"ENV_PREFIX" description:"prefix of env secrets" default:"GSQLITE"`

	Vault struct {
		Token string `long:"token" env:"TOKEN" description:"vault token"`
		Path  string `long:"path"  env:"PATH" description:"vault path"`
		URL   string `long:"url" env:"URL" description:"vault url"`
	} `group:"vault" namespace:"vault" env-namespace:"VAULT"`

	Aws struct {
		Region     string `long:"region" env:"REGION" description:"aws region"`
		AccessKey  string `long:"access-key" env:"ACCESS_KEY" description:"aws access key"`
		SecretKey  string `long:"secret-key" env:"SECRET_KEY" description:"aws secret key"`
		SecretName string `long:"secret-name" env:"SECRET_NAME" description:"aws secret with json object of keys"`
	} `group:"aws" namespace:"aws" env-namespace:"AWS"`

	Ansible struct {
		File     string `long:"file" env:"FILE" description:"ansible vault file"`
		Password string `long:"password" env:"PASSWORD" description:"ansible vault password"`
	} `group:"ansible" namespace:"ansible" env-namespace:"ANSIBLE"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1)
		return
	}
	if opts.Version {
		fmt.Printf("gsqlite %s\n", revision)
		exitFunc(0)
		return
	}
	setupLog(opts.Dbg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "failed, %v\n", err)
		exitFunc(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	st := time.Now()
	tokens, err := makeTokenProvider(opts)
	if err != nil {
		return err
	}
	src := &gsheets.Client{Endpoint: opts.SheetsAPI}

	var tables *config.Tables
	moduleName := opts.Module
	if opts.TablesFile != "" {
		if tables, err = config.Load(opts.TablesFile); err != nil {
			return err
		}
		moduleName = tables.ModuleName(opts.Module)
	}

	if opts.Check {
		if tables == nil {
			return errors.New("check mode requires tables file")
		}
		return checkTables(ctx, tables, tokens, src, opts.Concurrent, out)
	}

	db, err := sql.Open("sqlite", opts.DB)
	if err != nil {
		return fmt.Errorf("can't open database %s: %w", opts.DB, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // virtual tables of in-memory database live in a single connection

	if err = vtable.Register(db, moduleName, vtable.New(tokens, src)); err != nil {
		return err
	}

	var stmts []string
	if tables != nil {
		stmts = append(stmts, tables.Statements(moduleName)...)
	}
	stmts = append(stmts, opts.Exec...)
	for _, stmt := range stmts {
		log.Printf("[DEBUG] exec %s", stmt)
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("can't execute %q: %w", stmt, err)
		}
	}

	if opts.PositionalArgs.Query == "" {
		log.Printf("[INFO] %d statements executed, no query", len(stmts))
		return nil
	}

	n, err := query(ctx, db, opts.PositionalArgs.Query, opts.Format, opts.MaxWidth, out)
	if err != nil {
		return err
	}
	log.Printf("[INFO] %d rows in %v", n, time.Since(st).Truncate(time.Millisecond))
	return nil
}

// makeTokenProvider makes provider from pre-issued token or oauth credentials.
// Credentials come from cli/env first, secrets provider fills the missing ones.
func makeTokenProvider(opts options) (sheet.TokenProvider, error) {
	if opts.Token != "" {
		lgr.Setup(lgr.Secret(opts.Token))
		return auth.StaticToken(opts.Token), nil
	}

	clientID, clientSecret := opts.Google.ClientID, opts.Google.ClientSecret
	if clientID == "" || clientSecret == "" {
		sp, err := makeSecretsProvider(opts.SecretsProvider)
		if err != nil {
			return nil, fmt.Errorf("can't make secrets provider: %w", err)
		}
		if clientID == "" {
			clientID, _ = sp.Get(secrets.KeyClientID)
		}
		if clientSecret == "" {
			clientSecret, _ = sp.Get(secrets.KeyClientSecret)
		}
	}
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("google client id and secret are required, set LIBGSQLITE_GOOGLE_CLIENT_ID and LIBGSQLITE_GOOGLE_CLIENT_SECRET")
	}
	lgr.Setup(lgr.Secret(clientSecret)) // mask secret in logs

	cache, err := makeTokenCache(opts.Cache)
	if err != nil {
		return nil, fmt.Errorf("can't make token cache: %w", err)
	}
	return &auth.TokenProvider{
		Config: auth.NewConfig(clientID, clientSecret),
		Port:   opts.Google.Port,
		Cache:  cache,
		TTL:    opts.Cache.TTL,
		Prompt: os.Stderr,
	}, nil
}

// makeTokenCache makes token cache. Without persistent cache tokens are kept in memory,
// so all tables of a single run share one consent.
func makeTokenCache(copts CacheOpts) (auth.Cache, error) {
	switch copts.Type {
	case "file":
		fname := copts.File
		if fname == "" {
			fname = auth.DefaultCachePath()
		}
		return auth.FileCache{Path: fname}, nil
	case "db":
		store, err := secrets.NewDBStore(copts.Conn, []byte(copts.Key))
		if err != nil {
			return nil, err
		}
		return auth.StoreCache{Store: store, Key: copts.Name}, nil
	}
	return auth.StoreCache{Store: secrets.NewMemoryProvider(nil), Key: copts.Name}, nil
}

// makeSecretsProvider creates secrets provider based on options
func makeSecretsProvider(sopts SecretsProvider) (secrets.Provider, error) {
	switch sopts.Provider {
	case "none":
		return &secrets.NoOpProvider{}, nil
	case "env":
		return &secrets.EnvProvider{Prefix: sopts.EnvPrefix}, nil
	case "db":
		return secrets.NewDBStore(sopts.Conn, []byte(sopts.Key))
	case "vault":
		return secrets.NewHashiVaultProvider(sopts.Vault.URL, sopts.Vault.Path, sopts.Vault.Token)
	case "aws":
		return secrets.NewAWSProvider(sopts.Aws.AccessKey, sopts.Aws.SecretKey, sopts.Aws.Region, sopts.Aws.SecretName)
	case "ansible":
		return secrets.NewAnsibleVaultProvider(sopts.Ansible.File, sopts.Ansible.Password)
	}
	log.Printf("[WARN] unknown secrets provider %q", sopts.Provider)
	return &secrets.NoOpProvider{}, nil
}

type checkResult struct {
	name    string
	columns []string
	rows    int
	err     error
}

// checkTables fetches all tables concurrently and prints their columns and row counts
func checkTables(ctx context.Context, tables *config.Tables, tokens sheet.TokenProvider, src sheet.Source,
	concurrent int, out io.Writer) error {
	if concurrent < 1 {
		concurrent = 1
	}
	results := make([]checkResult, len(tables.Tables))
	wg := syncs.NewErrSizedGroup(concurrent, syncs.Context(ctx), syncs.Preemptive)
	for i, tbl := range tables.Tables {
		results[i] = checkResult{name: tbl.Name, err: errors.New("not checked")}
		wg.Go(func() error {
			sh := sheet.New(tbl.Options(), tokens, src)
			err := sh.Open(ctx)
			results[i] = checkResult{name: tbl.Name, columns: sh.Columns(), rows: sh.Rows(), err: err}
			return err
		})
	}
	_ = wg.Wait() // errors reported per table below

	errs := new(multierror.Error)
	okMark, failMark := color.New(color.FgGreen).Sprint("ok"), color.New(color.FgHiRed).Sprint("failed")
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(out, "%s\t%s\t%v\n", r.name, failMark, r.err)
			errs = multierror.Append(errs, fmt.Errorf("table %s: %w", r.name, r.err))
			continue
		}
		fmt.Fprintf(out, "%s\t%s\tcolumns: %s, rows: %d\n", r.name, okMark, strings.Join(r.columns, ","), r.rows)
	}
	return errs.ErrorOrNil()
}

// query runs the query and writes result rows in the format, returns number of rows
func query(ctx context.Context, db *sql.DB, q, format string, maxWidth int, out io.Writer) (int, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("can't run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("can't get columns: %w", err)
	}

	var records [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return 0, fmt.Errorf("can't scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		records = append(records, vals)
	}
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("can't read rows: %w", err)
	}

	switch format {
	case "json":
		err = writeJSON(out, cols, records)
	case "csv":
		err = writeCSV(out, cols, records)
	default:
		err = writeTable(out, cols, records, maxWidth)
	}
	if err != nil {
		return 0, fmt.Errorf("can't write %s output: %w", format, err)
	}
	return len(records), nil
}

func writeTable(out io.Writer, cols []string, records [][]any, maxWidth int) error {
	cell := func(v any) string {
		s := "NULL"
		if v != nil {
			s = fmt.Sprintf("%v", v)
		}
		s = strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
		if maxWidth > 0 {
			s = stringutils.Truncate(s, maxWidth)
		}
		return s
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, rec := range records {
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = cell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, cols []string, records [][]any) error {
	res := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		obj := make(map[string]any, len(cols))
		for i, c := range cols {
			obj[c] = rec[i]
		}
		res = append(res, obj)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeCSV(out io.Writer, cols []string, records [][]any) error {
	w := csv.NewWriter(out)
	if err := w.Write(cols); err != nil {
		return err
	}
	for _, rec := range records {
		line := make([]string, len(rec))
		for i, v := range rec {
			if v != nil {
				line[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := w.Write(line); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError, lgr.Out(os.Stderr)}
	}

	if !term.IsTerminal(int(os.Stderr.Fd())) {
		color.NoColor = true // no escape sequences in redirected output
	}
	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
