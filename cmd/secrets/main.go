package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/gsqlite/pkg/secrets"
)

type options struct {
	Key  string `short:"k" long:"key" env:"GSQLITE_SECRETS_KEY" required:"true" description:"key to use for encryption/decryption"`
	Conn string `short:"c" long:"conn" env:"GSQLITE_SECRETS_CONN" default:"gsqlite.db" description:"secrets database, sqlite file, postgres or mysql"`
	Dbg  bool   `long:"dbg" description:"debug mode"`

	SetCmd struct {
		PositionalArgs struct {
			Key   string `positional-arg-name:"key" description:"secret key"`
			Value string `positional-arg-name:"value" description:"secret value, asked interactively if omitted"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"set" description:"store a secret"`

	GetCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" description:"secret key"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"get" description:"print a secret"`

	DeleteCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" description:"secret key"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"del" description:"delete a secret"`

	ListCmd struct {
		PositionalArgs struct {
			KeyPrefix string `positional-arg-name:"key-prefix" default:"*" description:"key prefix to list"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"list" description:"list secret keys"`

	ImportCmd struct {
		PositionalArgs struct {
			File string `positional-arg-name:"file" description:"oauth client json downloaded from google cloud console"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"import" description:"store client id and secret from google oauth client file"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	fmt.Printf("gsqlite secrets %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
		return
	}
	setupLog(opts.Dbg)

	if err := run(p, opts, os.Stdout); err != nil {
		log.Printf("[WARN] %v", err)
		exitFunc(1)
	}
}

func run(p *flags.Parser, opts options, out io.Writer) error {
	if p.Active == nil {
		return errors.New("no command")
	}

	store, err := secrets.NewDBStore(opts.Conn, []byte(opts.Key))
	if err != nil {
		return fmt.Errorf("can't create secrets store: %w", err)
	}
	defer store.Close()

	switch p.Active.Name {
	case "set":
		return setSecret(store, opts.SetCmd.PositionalArgs.Key, opts.SetCmd.PositionalArgs.Value)
	case "get":
		key := opts.GetCmd.PositionalArgs.Key
		log.Printf("[INFO] get command, key=%s", key)
		val, err := store.Get(key)
		if err != nil {
			return fmt.Errorf("can't get secret for key %q: %w", key, err)
		}
		fmt.Fprintln(out, val)
	case "del":
		key := opts.DeleteCmd.PositionalArgs.Key
		log.Printf("[INFO] del command, key=%s", key)
		if err := store.Delete(key); err != nil {
			return fmt.Errorf("can't delete secret for key %q: %w", key, err)
		}
		log.Printf("[INFO] key=%s deleted", key)
	case "list":
		log.Printf("[INFO] list command, key-prefix=%q", opts.ListCmd.PositionalArgs.KeyPrefix)
		keys, err := store.List(opts.ListCmd.PositionalArgs.KeyPrefix)
		if err != nil {
			return fmt.Errorf("can't list secrets: %w", err)
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
	case "import":
		return importClient(store, opts.ImportCmd.PositionalArgs.File)
	default:
		return fmt.Errorf("unknown command %q", p.Active.Name)
	}
	return nil
}

func setSecret(store *secrets.DBStore, key, value string) error {
	log.Printf("[INFO] set command, key=%s", key)
	if value == "" {
		value = askValue(key)
	}
	if value == "" {
		return fmt.Errorf("can't set empty secret for key %q", key)
	}
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("can't set secret for key %q: %w", key, err)
	}
	return nil
}

// importClient stores client credentials from google oauth client file. The file has either
// "installed" (desktop app) or "web" section with client_id and client_secret.
func importClient(store *secrets.DBStore, fname string) error {
	log.Printf("[INFO] import command, file=%s", fname)
	data, err := os.ReadFile(fname) //nolint:gosec // file name from cli
	if err != nil {
		return fmt.Errorf("can't read client file: %w", err)
	}

	type client struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	var cf struct {
		Installed *client `json:"installed"`
		Web       *client `json:"web"`
	}
	if err = json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("can't unmarshal client file: %w", err)
	}
	c := cf.Installed
	if c == nil {
		c = cf.Web
	}
	if c == nil || c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client file has no client_id and client_secret")
	}

	if err = store.Set(secrets.KeyClientID, c.ClientID); err != nil {
		return fmt.Errorf("can't store client id: %w", err)
	}
	if err = store.Set(secrets.KeyClientSecret, c.ClientSecret); err != nil {
		return fmt.Errorf("can't store client secret: %w", err)
	}
	log.Printf("[INFO] client %s imported", strings.SplitN(c.ClientID, ".", 2)[0])
	return nil
}

// askValue reads secret value from terminal without echo, empty if stdin is not a terminal
func askValue(key string) string {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits int
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprintf(os.Stderr, "value for %s: ", key)
	val, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Printf("[WARN] can't read value: %v", err)
		return ""
	}
	return string(val)
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
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
