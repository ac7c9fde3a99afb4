package main

import (
	"context"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/retry"
	"github.com/filecoin-project/sqldir/lib/sqldir"
	"github.com/filecoin-project/sqldir/lib/sqlpool"
	"github.com/filecoin-project/sqldir/lib/sqltemplate"
	"github.com/filecoin-project/sqldir/node/config"
)

// connectAttempts bounds the startup ping loop.
const connectAttempts = 5

// loadConfig layers the config file, the environment and the global flags,
// later layers winning.
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.FromFile(cctx.String("config"), config.Default())
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}
	if err := config.FromEnv(cfg); err != nil {
		return nil, err
	}

	db := &cfg.DB
	for flag, dst := range map[string]*string{
		"db-driver":   &db.Driver,
		"db-port":     &db.Port,
		"db-user":     &db.Username,
		"db-password": &db.Password,
		"db-name":     &db.Database,
		"dir":         &cfg.Dir.Path,
	} {
		if cctx.IsSet(flag) {
			*dst = cctx.String(flag)
		}
	}
	if cctx.IsSet("db-host") {
		db.Hosts = cctx.StringSlice("db-host")
	}
	if cctx.IsSet("db-url") {
		if err := db.ApplyURL(cctx.String("db-url")); err != nil {
			return nil, err
		}
		if !db.IsPostgres() {
			db.Driver = "pgx"
		}
	}
	return cfg, nil
}

func bindvarFor(cfg *config.Config) (sqltemplate.Bindvar, error) {
	if cfg.Dir.Bindvar == "" && cfg.DB.Driver == "sqlite3" {
		return sqltemplate.Question, nil
	}
	return sqltemplate.ParseBindvar(cfg.Dir.Bindvar)
}

type pingPool interface {
	sqlpool.Pool
	Ping(ctx context.Context) error
}

// openPool builds the pool for the configured driver and waits until the
// store answers, retrying transient dial failures.
func openPool(ctx context.Context, db config.DB) (sqlpool.Pool, error) {
	var (
		pool pingPool
		err  error
	)
	switch db.Driver {
	case "pgx":
		pool, err = sqlpool.NewPgx(ctx, db.ConnString())
	case "postgres", "sqlite3":
		pool, err = sqlpool.OpenStd(db.Driver, db.ConnString())
	default:
		return nil, xerrors.Errorf("unknown db driver %q", db.Driver)
	}
	if err != nil {
		return nil, xerrors.Errorf("creating %s pool: %w", db.Driver, err)
	}

	_, err = retry.Retry(ctx, connectAttempts, retry.DefaultBackoff(), transient, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, xerrors.Errorf("connecting to %s: %w", strings.Join(db.Hosts, ","), err)
	}
	return pool, nil
}

// transient accepts dial level failures; authentication or unknown database
// errors will not go away by waiting.
func transient(err error) bool {
	return retry.ErrorIsIn(err, []error{&pgconn.ConnectError{}, &net.OpError{}})
}

// loadDir reads the configured directory. A nil pool is fine for commands
// that only resolve templates.
func loadDir(cfg *config.Config, pool sqlpool.Pool) (*sqldir.Dir, error) {
	bv, err := bindvarFor(cfg)
	if err != nil {
		return nil, err
	}
	name := cfg.DB.Database
	if cfg.DB.Driver == "sqlite3" {
		name = "sqlite"
	}
	return sqldir.New(pool, cfg.Dir.Path, sqldir.WithBindvar(bv), sqldir.WithName(name))
}

// withDir opens the pool and the directory for the duration of cb.
func withDir(cctx *cli.Context, cb func(ctx context.Context, d *sqldir.Dir) error) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	ctx := cctx.Context
	pool, err := openPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	d, err := loadDir(cfg, pool)
	if err != nil {
		return err
	}
	return cb(ctx, d)
}

func member(d lookuper, name string) (*sqldir.Query, error) {
	q, ok := d.Lookup(name)
	if !ok {
		return nil, xerrors.Errorf("no member named %q", name)
	}
	return q, nil
}
