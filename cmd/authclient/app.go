package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/activitymap"
	"github.com/goliatone/go-auth-client/config"
	"github.com/goliatone/go-auth-client/navigation"
	"github.com/goliatone/go-auth-client/storage"
	"github.com/goliatone/go-auth-client/storage/bunstore"
	"github.com/goliatone/go-auth-client/storage/redisstore"
	"github.com/goliatone/go-print"
	"github.com/redis/go-redis/v9"
)

type app struct {
	cfg     *config.BaseConfig
	store   *authclient.Store
	router  *navigation.Router
	logger  authclient.Logger
	out     io.Writer
	errOut  io.Writer
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.BaseConfig, out, errOut io.Writer) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: authclient.NewLogger(errOut, cfg.Debug),
		out:    out,
		errOut: errOut,
	}

	st, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	a.store = authclient.NewStore(cfg, st).WithLogger(a.logger)

	if cfg.ActivityLog != "" {
		sink, err := a.openActivityLog()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store.WithActivitySink(sink)
	}

	if err := a.store.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.router, err = navigation.New(a.routes()...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.router.WithLogger(a.logger).BeforeEach(navigation.AuthGuard(a.store))

	return a, nil
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.StorageDriver {
	case config.StorageMemory:
		return storage.NewMemory(), nil
	case config.StorageFile:
		dir := a.cfg.StorageDir
		if dir == "" {
			var err error
			if dir, err = storage.DefaultDir(); err != nil {
				return nil, fmt.Errorf("storage dir: %w", err)
			}
		}
		return storage.NewFile(dir), nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		return redisstore.New(client, redisstore.WithPrefix(a.cfg.RedisPrefix)), nil
	case config.StorageSQLite:
		st, err := bunstore.Open(ctx, a.cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.StorageDriver)
	}
}

func (a *app) openActivityLog() (authclient.ActivitySink, error) {
	f, err := os.OpenFile(a.cfg.ActivityLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("activity log: %w", err)
	}
	a.closers = append(a.closers, f.Close)

	host, _ := os.Hostname()
	return activitymap.NewJSONSink(f, activitymap.WithClient(host)), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close error: %s", err)
		}
	}
	a.closers = nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string, stdin io.Reader) int {
	switch cmd {
	case "login":
		return a.login(ctx, args, stdin)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "status":
		return a.status()
	case "routes":
		return a.listRoutes()
	case "visit":
		return a.visit(ctx, args)
	default:
		fmt.Fprintf(a.errOut, "unknown command %q\n", cmd)
		return exitUsage
	}
}

func (a *app) login(ctx context.Context, args []string, stdin io.Reader) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	identifier := fs.String("identifier", "", "account identifier, usually an email")
	secret := fs.String("secret", "", "account secret, read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *secret == "" && stdin != nil {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintf(a.errOut, "read secret: %v\n", err)
			return exitError
		}
		*secret = strings.TrimRight(line, "\r\n")
	}

	ok := a.store.Login(ctx, authclient.Credentials{
		Identifier: *identifier,
		Secret:     *secret,
	})
	if !ok {
		fmt.Fprintln(a.errOut, "login failed")
		return exitError
	}

	return a.navigate(ctx, navigation.Named(navigation.RouteDashboard))
}

func (a *app) logout(ctx context.Context) int {
	a.store.Logout(ctx)
	fmt.Fprintln(a.out, "Logged out.")
	return exitOK
}

func (a *app) whoami(ctx context.Context) int {
	if a.store.Status() == authclient.StatusPending {
		a.store.Init(ctx)
	}
	if !a.store.IsAuthenticated() {
		fmt.Fprintln(a.errOut, "not logged in")
		return exitError
	}
	fmt.Fprintln(a.out, print.MaybePrettyJSON(a.store.User()))
	return exitOK
}

func (a *app) status() int {
	session := a.store.Session()
	fmt.Fprintf(a.out, "status:  %s\n", session.Status())
	fmt.Fprintf(a.out, "storage: %s\n", a.cfg.StorageDriver)

	if session.Token == "" {
		return exitOK
	}

	info, err := authclient.ParseTokenInfo(session.Token)
	if err != nil {
		fmt.Fprintln(a.out, "token:   opaque")
		return exitOK
	}
	fmt.Fprintf(a.out, "subject: %s\n", info.Subject)
	if !info.ExpiresAt.IsZero() {
		state := "valid"
		if info.Expired(time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(a.out, "expires: %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC1123), state)
	}
	return exitOK
}

func (a *app) listRoutes() int {
	for _, r := range a.router.Routes() {
		var flags []string
		if r.Meta.RequiresAuth {
			flags = append(flags, "requiresAuth")
		}
		if r.Meta.RequiresGuest {
			flags = append(flags, "requiresGuest")
		}
		fmt.Fprintf(a.out, "%-10s %-12s %s\n", r.Name, r.Path, strings.Join(flags, ","))
	}
	return exitOK
}

func (a *app) visit(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.errOut, "usage: authclient visit <path|name>")
		return exitUsage
	}
	return a.navigate(ctx, navigation.ParseLocation(args[0]))
}

func (a *app) navigate(ctx context.Context, loc navigation.Location) int {
	if _, err := a.router.Push(ctx, loc); err != nil {
		fmt.Fprintf(a.errOut, "navigation failed: %v\n", err)
		return exitError
	}
	return exitOK
}
