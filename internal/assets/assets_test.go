package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.html"), []byte("<html/>"), 0o644))

	store := NewDir(dir)
	data, err := store.Load("login.html")
	require.NoError(t, err)
	assert.Equal(t, []byte("<html/>"), data)
}

func TestDirLoadMissing(t *testing.T) {
	store := NewDir(t.TempDir())
	_, err := store.Load("nope.pem")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDirLoadRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("ok"), 0o644))
	store := NewDir(dir)

	for _, name := range []string{"", "../etc/passwd", "sub/file.txt", ".hidden", ".."} {
		_, err := store.Load(name)
		assert.ErrorIs(t, err, ErrUnavailable, "name %q", name)
	}
}

func TestMem(t *testing.T) {
	store := Mem{"a.pem": []byte("data")}

	data, err := store.Load("a.pem")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	_, err = store.Load("b.pem")
	assert.ErrorIs(t, err, ErrUnavailable)
}
