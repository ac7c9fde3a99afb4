package sqldir

import (
	"regexp"
	"sort"
	"strings"
)

var (
	snakeRe  = regexp.MustCompile(`_+[a-z]`)
	memberRe = regexp.MustCompile(`[_-]+[a-z]`)
)

func camel(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ToUpper(m[len(m)-1:])
	})
}

// CamelKey converts a lower_snake_case column name to camelCase. Names
// without an underscore followed by a lower case letter come back unchanged,
// so CamelKey(CamelKey(k)) == CamelKey(k).
func CamelKey(k string) string {
	return camel(snakeRe, k)
}

// MemberName derives a query name from a template file stem. Both '_' and
// '-' separate words: "create-account" and "create_account" give
// "createAccount".
func MemberName(stem string) string {
	return camel(memberRe, stem)
}

// CamelRow rewrites the keys of row to camelCase in place and returns it.
// When a converted key collides with one already present (a_b next to aB)
// the converted key's value wins.
func CamelRow(row Row) Row {
	var snake []string
	for k := range row {
		if CamelKey(k) != k {
			snake = append(snake, k)
		}
	}
	sort.Strings(snake)

	for _, k := range snake {
		row[CamelKey(k)] = row[k]
		delete(row, k)
	}
	return row
}
