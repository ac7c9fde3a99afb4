package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqldir"
)

var queryCmd = &cli.Command{
	Name:      "query",
	Usage:     "Run a member and print the result as JSON",
	ArgsUsage: "<member> [positional values...]",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "one",
			Usage: "print only the first row, or null",
		},
		&cli.BoolFlag{
			Name:  "full",
			Usage: "print rows together with the row count, command tag and fields",
		},
		&cli.StringFlag{
			Name:  "hash",
			Usage: "print rows keyed by the given column",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "run inside a transaction and roll it back",
		},
	}, argFlags...),
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return xerrors.Errorf("expected a member name")
		}
		shapes := 0
		for _, f := range []string{"one", "full", "hash"} {
			if cctx.IsSet(f) {
				shapes++
			}
		}
		if shapes > 1 {
			return xerrors.Errorf("--one, --full and --hash are mutually exclusive")
		}

		args, err := templateArgs(cctx)
		if err != nil {
			return err
		}

		return withDir(cctx, func(ctx context.Context, d *sqldir.Dir) error {
			name := cctx.Args().First()
			if _, err := member(d, name); err != nil {
				return err
			}

			var out any
			run := func(l lookuper) error {
				q, err := member(l, name)
				if err != nil {
					return err
				}
				out, err = shape(ctx, cctx, q, args)
				return err
			}

			if cctx.Bool("dry-run") {
				_, err := d.BeginTransaction(ctx, func(tx *sqldir.Tx) (bool, error) {
					return false, run(tx)
				})
				if err != nil {
					return err
				}
				log.Infow("rolled back dry run", "member", name)
			} else if err := run(d); err != nil {
				return err
			}

			enc := json.NewEncoder(cctx.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		})
	},
}

type lookuper interface {
	Lookup(string) (*sqldir.Query, bool)
}

func shape(ctx context.Context, cctx *cli.Context, q *sqldir.Query, args []any) (any, error) {
	switch {
	case cctx.Bool("one"):
		return q.One(ctx, args...)
	case cctx.Bool("full"):
		return q.FullResponse(ctx, args...)
	case cctx.IsSet("hash"):
		byKey, err := q.Hash(cctx.String("hash"))(ctx, args...)
		if err != nil {
			return nil, err
		}
		// JSON objects only take string keys
		out := make(map[string]sqldir.Row, len(byKey))
		for k, row := range byKey {
			out[fmt.Sprint(k)] = row
		}
		return out, nil
	default:
		return q.Query(ctx, args...)
	}
}
