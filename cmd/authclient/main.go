package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-auth-client/config"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("authclient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("base-url", "", "backend base URL, overrides AUTHCLIENT_BASE_URL")
	driver := fs.String("storage", "", "token storage: file|memory|redis|sqlite, overrides AUTHCLIENT_STORAGE")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		usage(stderr, fs)
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(stderr, fs)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitError
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *driver != "" {
		cfg.StorageDriver = *driver
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitError
	}

	a, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "failed to start: %v\n", err)
		return exitError
	}
	defer a.Close()

	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:], stdin)
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `Usage: authclient [flags] <command> [args]

Commands:
  login -identifier <id> [-secret <secret>]   sign in, secret is read from stdin when omitted
  logout                                      sign out and forget the stored token
  whoami                                      print the signed in user
  status                                      print the session state
  routes                                      list the navigation table
  visit <path|name>                           navigate and render a page

Flags:
`)
	fs.PrintDefaults()
}
