package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackward/stackward/internal/config"
)

func TestNewResolvesConfiguredTarget(t *testing.T) {
	target, err := New(config.RemoteSettings{})
	require.NoError(t, err)
	assert.Nil(t, target, "no remote configured means no target")

	target, err = New(config.RemoteSettings{Target: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", target.Name())

	target, err = New(config.RemoteSettings{Target: "sftp", Addr: "backup.example:22", User: "stack", KeyPath: "/etc/stack/id_ed25519"})
	require.NoError(t, err)
	assert.Equal(t, "sftp", target.Name())

	target, err = New(config.RemoteSettings{Target: "gcs", Bucket: "stack-backups"})
	require.NoError(t, err)
	assert.Equal(t, "gcs", target.Name())

	_, err = New(config.RemoteSettings{Target: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestTargetFactoriesRejectIncompleteSettings(t *testing.T) {
	_, err := NewSFTPTarget(config.RemoteSettings{Addr: "host:22"})
	assert.Error(t, err)
	_, err = NewGCSTarget(config.RemoteSettings{})
	assert.Error(t, err)
	_, err = NewLocalTarget(config.RemoteSettings{})
	assert.Error(t, err)
}

func TestLocalTargetMirrorsBundle(t *testing.T) {
	bundleDir := filepath.Join(t.TempDir(), "20260830_030000")
	require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "scratch"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "database.dump.gz"), []byte("payload"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "checksums"), []byte("abc  database.dump.gz\n"), 0o644))

	mirror := t.TempDir()
	target := &LocalTarget{Dir: mirror}
	require.NoError(t, target.Push(context.Background(), bundleDir))

	got, err := os.ReadFile(filepath.Join(mirror, "20260830_030000", "database.dump.gz"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	_, err = os.ReadFile(filepath.Join(mirror, "20260830_030000", "checksums"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(mirror, "20260830_030000", "scratch"))
	assert.True(t, os.IsNotExist(err), "subdirectories are not mirrored")
}
