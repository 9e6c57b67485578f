package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Default", "Local Storage"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Default", "Cookies"), []byte("sid=abc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Local State"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "SingletonCookie"), []byte("lock"), 0644))

	require.NoError(t, store.Save("session/1", src))
	assert.True(t, store.Has("session/1"))

	dest := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, store.Load("session/1", dest))

	cookies, err := os.ReadFile(filepath.Join(dest, "Default", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "sid=abc", string(cookies))
	assert.DirExists(t, filepath.Join(dest, "Default", "Local Storage"))
	assert.FileExists(t, filepath.Join(dest, "Local State"))
	assert.NoFileExists(t, filepath.Join(dest, "SingletonCookie"))
}

func TestLoadWithoutProfile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Load("missing", t.TempDir()), ErrNoProfile)
	assert.False(t, store.Has("missing"))
}

func TestSaveReplacesEarlierArchive(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("1"), 0644))
	require.NoError(t, store.Save("tok", src))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("2"), 0644))
	require.NoError(t, store.Save("tok", src))

	dest := t.TempDir()
	require.NoError(t, store.Load("tok", dest))
	got, err := os.ReadFile(filepath.Join(dest, "a"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
	assert.True(t, store.Has("tok"))
}

func TestSaveRequiresDirectory(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Save("tok", ""))
}
