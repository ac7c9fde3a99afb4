package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List the members of the query directory",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		d, err := loadDir(cfg, nil)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "MEMBER\tFILE\tBINDVAR\n")
		for _, name := range d.Names() {
			q, _ := d.Lookup(name)
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", color.GreenString(name), q.File(), q.Template().Bindvar())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cctx.App.Writer, "%d members in %s\n", len(d.Names()), cfg.Dir.Path)
		return nil
	},
}
