package sqldir

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestCamelKey(t *testing.T) {
	tcs := map[string]string{
		"id":              "id",
		"first_name":      "firstName",
		"a__b":            "aB",
		"created_at_utc":  "createdAtUtc",
		"_leading":        "Leading",
		"trailing_":       "trailing_",
		"col_1":           "col_1",
		"already_Camel":   "already_Camel",
		"alreadyCamel":    "alreadyCamel",
		"":                "",
		"x_y_z":           "xYZ",
		"account_id_list": "accountIdList",
	}
	for in, want := range tcs {
		require.Equal(t, want, CamelKey(in), in)
	}
}

func TestCamelKeyIdempotent(t *testing.T) {
	f := func(s string) bool {
		once := CamelKey(s)
		return CamelKey(once) == once
	}
	require.NoError(t, quick.Check(f, nil))

	g := func(s string) bool {
		once := CamelKey("a_" + s + "__b_c")
		return CamelKey(once) == once
	}
	require.NoError(t, quick.Check(g, nil))
}

func TestMemberName(t *testing.T) {
	require.Equal(t, "getAccount", MemberName("get_account"))
	require.Equal(t, "createAccount", MemberName("create-account"))
	require.Equal(t, "listAllAccounts", MemberName("list--all_-accounts"))
	require.Equal(t, "v2Report", MemberName("v2_report"))
}

func TestCamelRow(t *testing.T) {
	row := Row{"id": 1, "first_name": "timo", "last_name": "mars", "email": "t@mars"}
	out := CamelRow(row)
	require.Equal(t, Row{"id": 1, "firstName": "timo", "lastName": "mars", "email": "t@mars"}, out)

	// in place
	require.Equal(t, out, row)

	// applying twice is the same as once
	require.Equal(t, Row{"id": 1, "firstName": "timo", "lastName": "mars", "email": "t@mars"}, CamelRow(out))

	require.Empty(t, CamelRow(Row{}))
}

func TestCamelRowCollision(t *testing.T) {
	row := CamelRow(Row{"aB": "camel", "a_b": "snake", "a__b": "double"})
	require.Equal(t, Row{"aB": "snake"}, row)
}
