package main

import (
	"encoding/json"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqltemplate"
)

var argFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:    "arg",
		Aliases: []string{"a"},
		Usage:   "named argument key=value; values are read as JSON when they parse, as text otherwise",
	},
}

// templateArgs returns the arguments for Resolve: a single named map when
// --arg is given, otherwise the positional values after the member name.
func templateArgs(cctx *cli.Context) ([]any, error) {
	named := cctx.StringSlice("arg")
	positional := cctx.Args().Tail()

	if len(named) > 0 && len(positional) > 0 {
		return nil, xerrors.Errorf("use either --arg or positional values, not both")
	}

	if len(named) > 0 {
		args := sqltemplate.Args{}
		for _, kv := range named {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, xerrors.Errorf("malformed --arg %q, expected key=value", kv)
			}
			args[k] = argValue(v)
		}
		return []any{args}, nil
	}

	out := make([]any, len(positional))
	for i, v := range positional {
		out[i] = argValue(v)
	}
	return out, nil
}

func argValue(s string) any {
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}
