package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var renderCmd = &cli.Command{
	Name:      "render",
	Usage:     "Resolve a member against arguments and print the statement, without touching the database",
	ArgsUsage: "<member> [positional values...]",
	Flags:     argFlags,
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return xerrors.Errorf("expected a member name")
		}

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		d, err := loadDir(cfg, nil)
		if err != nil {
			return err
		}
		q, err := member(d, cctx.Args().First())
		if err != nil {
			return err
		}
		args, err := templateArgs(cctx)
		if err != nil {
			return err
		}

		st, err := q.Resolve(args...)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cctx.App.Writer, st.String())
		return nil
	},
}
