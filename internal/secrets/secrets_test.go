package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "secrets")
	require.NoError(t, os.MkdirAll(dir, DirMode))
	return NewStore(dir)
}

func TestReadTrimsWhitespace(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path("db_password"), []byte("  hunter2hunter2hunter2\n"), FileMode))

	v, err := s.Read("db_password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2hunter2hunter2", v)
}

func TestReadMissingSecret(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("nope")
	assert.Error(t, err)
	assert.False(t, s.Exists("nope"))
}

func TestGenerateCreatesOwnerOnlyFiles(t *testing.T) {
	s := newTestStore(t)

	n, err := s.Generate([]string{"db_password", "cache_password"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, name := range []string{"db_password", "cache_password"} {
		assert.True(t, s.Exists(name))
		assert.NoError(t, s.CheckFileMode(name))
		assert.NoError(t, s.CheckStrength(name))
	}
}

func TestGenerateSkipsExistingUnlessForced(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path("db_password"), []byte("original-value-here\n"), FileMode))

	n, err := s.Generate([]string{"db_password"}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	v, err := s.Read("db_password")
	require.NoError(t, err)
	assert.Equal(t, "original-value-here", v)

	n, err = s.Generate([]string{"db_password"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v2, err := s.Read("db_password")
	require.NoError(t, err)
	assert.NotEqual(t, "original-value-here", v2)
}

func TestCheckFileModeRejectsLoosePermissions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path("leaky"), []byte("secret-value-here\n"), 0o644))

	assert.Error(t, s.CheckFileMode("leaky"))
}

func TestCheckDirMode(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.CheckDirMode())

	require.NoError(t, os.Chmod(s.Dir(), 0o755))
	assert.Error(t, s.CheckDirMode())
}

func TestCheckStrength(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path("weak"), []byte("short\n"), FileMode))
	assert.Error(t, s.CheckStrength("weak"))
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Generate([]string{"b_secret", "a_secret"}, false)
	require.NoError(t, err)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a_secret", "b_secret"}, names)
}
