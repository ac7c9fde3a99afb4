package sqldir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
}

func TestNewMembers(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"get_account.sql":    "SELECT * FROM account WHERE id = $PG{id}",
		"create-account.sql": "INSERT INTO account (first_name) VALUES ($PG{firstName})",
		"README.md":          "# queries",
		"notes.sql.bak":      "SELECT 1",
		"upper.SQL":          "SELECT 1",
		".sql":               "SELECT 1",
	})
	// a directory with a template-looking name is not a member
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.sql"), 0755))
	writeFiles(t, filepath.Join(dir, "nested.sql"), map[string]string{"inner.sql": "SELECT 1"})

	d, err := New(&testPool{}, dir)
	require.NoError(t, err)
	require.Equal(t, []string{"createAccount", "getAccount"}, d.Names())

	q, ok := d.Lookup("getAccount")
	require.True(t, ok)
	require.Equal(t, "getAccount", q.Name())
	require.Equal(t, "get_account.sql", q.File())

	_, ok = d.Lookup("README")
	require.False(t, ok)
	_, ok = d.Lookup("nested")
	require.False(t, ok)
	_, ok = d.Lookup("inner")
	require.False(t, ok)
}

func TestNewMissingDirectory(t *testing.T) {
	_, err := New(&testPool{}, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIO))
	require.Equal(t, KindIO, KindOf(err))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.sql")
	require.NoError(t, os.WriteFile(file, []byte("SELECT 1"), 0644))

	_, err := New(&testPool{}, file)
	require.True(t, errors.Is(err, ErrIO))
}

func TestNewFSErrors(t *testing.T) {
	_, err := NewFS(&testPool{}, fstest.MapFS{
		"get_account.sql": {Data: []byte("SELECT 1")},
		"get-account.sql": {Data: []byte("SELECT 2")},
	})
	require.True(t, errors.Is(err, ErrTemplate))
	require.Contains(t, err.Error(), "getAccount")

	_, err = NewFS(&testPool{}, fstest.MapFS{
		"broken.sql": {Data: []byte("SELECT {{ .x ")},
	})
	require.True(t, errors.Is(err, ErrTemplate))
}

func TestTxMembers(t *testing.T) {
	d := newTestDir(t, &testPool{})
	tx := d.Tx()

	require.Equal(t, d.Names(), tx.Names())
	q := member(t, tx, "getAccount")
	require.Equal(t, tx, q.r)

	// the directory's member is unaffected
	require.Equal(t, d, member(t, d, "getAccount").r)

	_, ok := tx.Lookup("nope")
	require.False(t, ok)
}
