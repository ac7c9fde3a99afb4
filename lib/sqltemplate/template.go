// Package sqltemplate compiles .sql template files into statements with bound
// parameters.
//
// A template is rendered with text/template (plus the sprig function map)
// using the named arguments as data, then the placeholders
//
//	$PG{name}   bound parameter, shown when the statement is logged
//	!PG{name}   bound parameter, redacted when the statement is logged
//
// are replaced with driver bind variables.
//
// Every key the template body reads must be present in the arguments; a
// missing one fails resolution with ErrMissingArg before anything is sent.
// Optional values are tested with sprig's hasKey, e.g.
// {{ if hasKey . "limit" }} LIMIT {{ .limit }}{{ end }}.
package sqltemplate

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/xerrors"
)

var (
	// ErrTemplate matches every error returned by this package.
	ErrTemplate = xerrors.New("sql template")

	ErrSyntax     = xerrors.New("invalid template")
	ErrMissingArg = xerrors.New("missing named argument")
	ErrArgMode    = xerrors.New("named placeholders need a single map argument")
	ErrArgCount   = xerrors.New("argument count mismatch")
)

// Error describes a failure to compile or resolve a template.
type Error struct {
	Template string
	Reason   error
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sql template %s: %s", e.Template, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

func (e *Error) Is(target error) bool { return target == ErrTemplate }

// Redacted is what secret parameters are shown as in Statement.String.
const Redacted = "<REDACTED>"

// Bindvar is the placeholder style understood by the target driver.
type Bindvar int

const (
	// Dollar emits $1, $2, ... (postgres).
	Dollar Bindvar = iota
	// Question emits ? (sqlite, mysql).
	Question
)

// ParseBindvar maps a config string onto a Bindvar.
func ParseBindvar(s string) (Bindvar, error) {
	switch strings.ToLower(s) {
	case "", "dollar", "postgres":
		return Dollar, nil
	case "question", "sqlite":
		return Question, nil
	}
	return Dollar, xerrors.Errorf("unknown bindvar style %q", s)
}

func (b Bindvar) String() string {
	if b == Question {
		return "question"
	}
	return "dollar"
}

// Args is the named argument form accepted by Resolve.
type Args = map[string]any

var placeholderRe = regexp.MustCompile(`([$!])PG\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}`)

type Option func(*Template)

func WithBindvar(b Bindvar) Option {
	return func(t *Template) { t.bindvar = b }
}

// Template is an immutable compiled query template. It is safe for
// concurrent use.
type Template struct {
	name    string
	bindvar Bindvar
	tmpl    *template.Template
}

// Parse compiles text under the given name.
func Parse(name, text string, opts ...Option) (*Template, error) {
	t := &Template{name: name}
	for _, o := range opts {
		o(t)
	}

	tt, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &Error{Template: name, Reason: ErrSyntax, Err: err}
	}
	t.tmpl = tt
	return t, nil
}

// ParseFile reads and compiles p from fsys. The template is named after the
// file's base name.
func ParseFile(fsys fs.FS, p string, opts ...Option) (*Template, error) {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, err
	}
	return Parse(path.Base(p), string(b), opts...)
}

func (t *Template) Name() string { return t.name }

func (t *Template) Bindvar() Bindvar { return t.bindvar }

// Statement is a compiled query ready to be sent to a connection.
type Statement struct {
	SQL    string
	Params []any

	secret []bool
}

// Raw wraps a literal statement without parameters, e.g. transaction control.
func Raw(sql string) Statement {
	return Statement{SQL: sql}
}

// String renders the statement for logs, secret parameters redacted.
func (s Statement) String() string {
	if len(s.Params) == 0 {
		return s.SQL
	}
	shown := make([]string, len(s.Params))
	for i, p := range s.Params {
		if i < len(s.secret) && s.secret[i] {
			shown[i] = Redacted
			continue
		}
		shown[i] = fmt.Sprintf("%#v", p)
	}
	return s.SQL + " -- [" + strings.Join(shown, ", ") + "]"
}

// Resolve compiles the template with args. A single map argument selects
// named mode; anything else is passed through positionally.
func (t *Template) Resolve(args ...any) (Statement, error) {
	if named, ok := namedArgs(args); ok {
		return t.resolveNamed(named)
	}
	return t.resolvePositional(args)
}

func namedArgs(args []any) (map[string]any, bool) {
	if len(args) != 1 {
		return nil, false
	}
	m, ok := args[0].(map[string]any)
	return m, ok
}

var missingKeyRe = regexp.MustCompile(`map has no entry for key "([^"]*)"`)

func (t *Template) render(data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
			return "", &Error{Template: t.name, Reason: ErrMissingArg, Detail: m[1], Err: err}
		}
		return "", &Error{Template: t.name, Reason: ErrSyntax, Err: err}
	}
	return buf.String(), nil
}

func (t *Template) resolveNamed(args map[string]any) (Statement, error) {
	text, err := t.render(args)
	if err != nil {
		return Statement{}, err
	}

	var (
		st      Statement
		index   = map[string]int{}
		missing string
	)
	st.SQL = placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		secret, name := sub[1] == "!", sub[2]

		v, ok := lookup(args, name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}

		if t.bindvar == Dollar {
			if i, seen := index[name]; seen {
				st.secret[i-1] = st.secret[i-1] || secret
				return "$" + strconv.Itoa(i)
			}
		}
		st.Params = append(st.Params, v)
		st.secret = append(st.secret, secret)
		index[name] = len(st.Params)
		if t.bindvar == Question {
			return "?"
		}
		return "$" + strconv.Itoa(len(st.Params))
	})
	if missing != "" {
		return Statement{}, &Error{Template: t.name, Reason: ErrMissingArg, Detail: missing}
	}
	return st, nil
}

// lookup resolves dotted names through nested maps.
func lookup(args map[string]any, name string) (any, bool) {
	cur := any(args)
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func (t *Template) resolvePositional(args []any) (Statement, error) {
	text, err := t.render(map[string]any{})
	if errors.Is(err, ErrMissingArg) {
		// the body reads named values, positional arguments cannot supply them
		return Statement{}, &Error{Template: t.name, Reason: ErrArgMode, Err: err}
	}
	if err != nil {
		return Statement{}, err
	}
	if placeholderRe.MatchString(text) {
		return Statement{}, &Error{Template: t.name, Reason: ErrArgMode}
	}

	want := countBindvars(text, t.bindvar)
	if want != len(args) {
		return Statement{}, &Error{Template: t.name, Reason: ErrArgCount, Detail: fmt.Sprintf("expects %d, got %d", want, len(args))}
	}
	return Statement{SQL: text, Params: args, secret: make([]bool, len(args))}, nil
}

// countBindvars returns the number of parameters text expects: the highest
// $N for Dollar, the number of ? for Question. Quoted literals, quoted
// identifiers, -- line comments and /* */ block comments are skipped.
func countBindvars(text string, b Bindvar) int {
	n := 0
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\'' || c == '"':
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				return n
			}
			i += end + 1
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				return n
			}
			i += end
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return n
			}
			i += end + 3
		case b == Question && c == '?':
			n++
		case b == Dollar && c == '$':
			j := i + 1
			for j < len(text) && text[j] >= '0' && text[j] <= '9' {
				j++
			}
			if j > i+1 {
				v, _ := strconv.Atoi(text[i+1 : j])
				if v > n {
					n = v
				}
			}
			i = j - 1
		}
	}
	return n
}
