package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackward/stackward/internal/secrets"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPlainValues(t *testing.T) {
	path := writeEnvFile(t, `
# comment line
APP_HOST=example.org
export APP_PORT=8443

TZ=Europe/Berlin
`)
	l := &Loader{}
	env, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example.org", env.Get("APP_HOST"))
	assert.Equal(t, "8443", env.Get("APP_PORT"))
	assert.Equal(t, "Europe/Berlin", env.Get("TZ"))
	assert.Equal(t, 3, env.Loaded)
	assert.Equal(t, 0, env.Errored)
}

func TestLoadQuoteProcessing(t *testing.T) {
	path := writeEnvFile(t, `DOUBLE="line1\nline2\t\"quoted\""
SINGLE='literal \n text'
EQUALS=a=b=c
`)
	l := &Loader{}
	env, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "line1\nline2\t\"quoted\"", env.Get("DOUBLE"))
	assert.Equal(t, `literal \n text`, env.Get("SINGLE"))
	assert.Equal(t, "a=b=c", env.Get("EQUALS"))
}

func TestLoadSecretIndirection(t *testing.T) {
	secretsDir := t.TempDir()
	store := secrets.NewStore(secretsDir)
	require.NoError(t, os.WriteFile(store.Path("db_password"), []byte("s3cret-value\n"), 0o600))

	path := writeEnvFile(t, "POSTGRES_PASSWORD=file://db_password\n")
	l := &Loader{Secrets: store}
	env, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret-value", env.Get("POSTGRES_PASSWORD"))
	assert.Equal(t, 1, env.Loaded)
}

func TestLoadSecretIndirectionAbsolutePath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(file, []byte("abc123\n"), 0o600))

	path := writeEnvFile(t, "API_TOKEN=file://"+file+"\n")
	l := &Loader{}
	env, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", env.Get("API_TOKEN"))
}

func TestLoadMissingSecretStrict(t *testing.T) {
	store := secrets.NewStore(t.TempDir())
	path := writeEnvFile(t, "POSTGRES_PASSWORD=file://absent\n")

	l := &Loader{Secrets: store, Strict: true}
	_, err := l.Load(path)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
}

func TestLoadMissingSecretLenient(t *testing.T) {
	store := secrets.NewStore(t.TempDir())
	path := writeEnvFile(t, "POSTGRES_PASSWORD=file://absent\nAPP_HOST=localhost\n")

	l := &Loader{Secrets: store}
	env, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Loaded)
	assert.Equal(t, 1, env.Errored)
	_, ok := env.Lookup("POSTGRES_PASSWORD")
	assert.False(t, ok)
}

func TestLoadRejectsCommandSubstitution(t *testing.T) {
	for _, payload := range []string{
		"EVIL=$(rm -rf /)",
		"EVIL=`id`",
		"EVIL=${PATH}",
	} {
		path := writeEnvFile(t, payload+"\nSAFE=ok\n")

		l := &Loader{}
		env, err := l.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 1, env.Errored, payload)
		assert.Equal(t, "ok", env.Get("SAFE"))

		strict := &Loader{Strict: true}
		_, err = strict.Load(path)
		var cerr *ConfigError
		assert.True(t, errors.As(err, &cerr), payload)
	}
}

func TestLoadInvalidKeySyntax(t *testing.T) {
	path := writeEnvFile(t, "9BAD=value\nGOOD_KEY=value\nnot a line\n")

	l := &Loader{}
	env, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Loaded)
	assert.Equal(t, 2, env.Errored)

	strict := &Loader{Strict: true}
	_, err = strict.Load(path)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 1, cerr.Line)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")

	l := &Loader{}
	env, err := l.Load(missing)
	require.NoError(t, err)
	assert.Empty(t, env.Keys())

	strict := &Loader{Strict: true}
	_, err = strict.Load(missing)
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}
