package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackward/stackward/internal/config"
)

func TestResolveMode(t *testing.T) {
	cases := []struct {
		name       string
		mode       Mode
		required   bool
		age        bool
		recipients bool
		want       Mode
		wantErr    bool
	}{
		{"auto with tool and recipients", ModeAuto, false, true, true, ModeAge, false},
		{"auto without recipients", ModeAuto, false, true, false, ModeGzip, false},
		{"auto without tool", ModeAuto, false, false, true, ModeGzip, false},
		{"explicit age available", ModeAge, true, true, true, ModeAge, false},
		{"explicit age missing and required", ModeAge, true, false, true, "", true},
		{"explicit age missing not required", ModeAge, false, false, true, ModeGzip, false},
		{"gzip passthrough", ModeGzip, false, false, false, ModeGzip, false},
		{"none passthrough", ModeNone, true, false, false, ModeNone, false},
		{"unknown mode", Mode("rot13"), false, false, false, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveMode(tc.mode, tc.required, tc.age, tc.recipients)
			if tc.wantErr {
				var cfgErr *config.ConfigError
				require.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.dump")
	payload := []byte("stack backup payload\x00with binary bytes\x01\x02")
	require.NoError(t, os.WriteFile(path, payload, 0o640))

	packed, err := gzipFile(path)
	require.NoError(t, err)
	assert.Equal(t, path+".gz", packed)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "plaintext must be removed after compression")

	plain, err := GunzipFile(packed)
	require.NoError(t, err)
	restored, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	bundle := &Bundle{
		Dir:        dir,
		Timestamp:  "20260101_020000",
		Mode:       ModeNone,
		Subsystems: map[string]bool{"database": true},
	}
	path := filepath.Join(dir, "database.dump")
	require.NoError(t, os.WriteFile(path, []byte("dump contents"), 0o640))
	bundle.Artifacts = []Artifact{{Name: "database", Path: path}}

	require.NoError(t, writeManifest(bundle, map[string]string{"postgres": "16.2"}))
	require.NoError(t, Verify(dir))

	require.NoError(t, os.WriteFile(path, []byte("dump CONTENTS"), 0o640))
	err := Verify(dir)
	var intErr *IntegrityError
	require.ErrorAs(t, err, &intErr)
	assert.Equal(t, "database.dump", intErr.File)
}

func TestVerifyMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	sums := "0000000000000000000000000000000000000000000000000000000000000000  gone.dump\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, checksumFile), []byte(sums), 0o644))

	var intErr *IntegrityError
	require.ErrorAs(t, Verify(dir), &intErr)
	assert.Equal(t, "gone.dump", intErr.File)
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bundle := &Bundle{
		Dir:        dir,
		Timestamp:  "20260214_120000",
		Mode:       ModeGzip,
		Subsystems: map[string]bool{"database": true, "cache": false},
	}
	path := filepath.Join(dir, "database.dump.gz")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o640))
	bundle.Artifacts = []Artifact{{Name: "database", Path: path}}
	require.NoError(t, writeManifest(bundle, nil))

	meta, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, "20260214_120000", meta.Timestamp)
	assert.Equal(t, "gzip", meta.Mode)
	assert.False(t, meta.Subsystems["cache"])
	assert.Equal(t, int64(10), meta.TotalSize)
	assert.Equal(t, 1, meta.FileCount)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	old := now.AddDate(0, 0, -40).Format("20060102_150405")
	fresh := now.AddDate(0, 0, -2).Format("20060102_150405")
	for _, name := range []string{old, fresh, "not-a-bundle", "20990101"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o750))
	}

	removed, err := Prune(dir, 30, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, old))
	assert.True(t, os.IsNotExist(err))
	for _, name := range []string{fresh, "not-a-bundle", "20990101"} {
		_, err = os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "%s must survive the sweep", name)
	}
}

func TestPruneDisabledAndMissingDir(t *testing.T) {
	removed, err := Prune(t.TempDir(), 0, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = Prune(filepath.Join(t.TempDir(), "absent"), 30, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLatestBundleTime(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "20260101_020000"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "20260301_020000"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0o750))

	latest, err := LatestBundleTime(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 2, 0, 0, 0, time.Local), latest)

	_, err = LatestBundleTime(t.TempDir())
	assert.Error(t, err)
}

func testPipeline(t *testing.T, subs []Subsystem) (*Pipeline, string) {
	t.Helper()
	base := t.TempDir()
	settings := config.DefaultSettings(base)
	settings.Backup.Dir = filepath.Join(base, "backups")
	settings.Backup.Mode = "auto"
	p := &Pipeline{
		Settings:          settings,
		Subsystems:        subs,
		AgeAvailable:      func() bool { return false },
		RecipientsPresent: func(string) bool { return false },
		Now:               func() time.Time { return time.Date(2026, 8, 30, 3, 0, 0, 0, time.Local) },
	}
	return p, settings.Backup.Dir
}

func writeDumper(name string, payload []byte) Subsystem {
	return Subsystem{Name: name, Dump: func(_ context.Context, destDir string) (string, error) {
		path := filepath.Join(destDir, name+".dump")
		return path, os.WriteFile(path, payload, 0o640)
	}}
}

func TestPipelineSecondaryFailureContinues(t *testing.T) {
	db := writeDumper("database", []byte("0123456789"))
	db.Critical = true
	cache := Subsystem{Name: "cache", Dump: func(context.Context, string) (string, error) {
		return "", errors.New("cache container not running")
	}}
	p, backupDir := testPipeline(t, []Subsystem{db, cache})

	bundle, err := p.Run(context.Background())
	require.NoError(t, err, "secondary failure must not fail the run")

	assert.True(t, bundle.Subsystems["database"])
	assert.False(t, bundle.Subsystems["cache"])
	require.Len(t, bundle.Artifacts, 1)
	assert.Equal(t, "database.dump.gz", filepath.Base(bundle.Artifacts[0].Path))

	meta, err := ReadMetadata(bundle.Dir)
	require.NoError(t, err)
	assert.False(t, meta.Subsystems["cache"])
	assert.Equal(t, 1, meta.FileCount)
	require.NoError(t, Verify(bundle.Dir))

	expected := filepath.Join(backupDir, "20260830_030000")
	assert.Equal(t, expected, bundle.Dir)
}

func TestPipelineCriticalFailureAborts(t *testing.T) {
	db := Subsystem{Name: "database", Critical: true, Dump: func(context.Context, string) (string, error) {
		return "", errors.New("pg_dump failed")
	}}
	ran := false
	cache := Subsystem{Name: "cache", Dump: func(_ context.Context, destDir string) (string, error) {
		ran = true
		path := filepath.Join(destDir, "cache.rdb")
		return path, os.WriteFile(path, []byte("rdb"), 0o640)
	}}
	p, _ := testPipeline(t, []Subsystem{db, cache})

	_, err := p.Run(context.Background())
	var artErr *ArtifactError
	require.ErrorAs(t, err, &artErr)
	assert.Equal(t, "database", artErr.Subsystem)
	assert.False(t, ran, "secondary dump must not run after a critical abort")
}

func TestPipelineEmptyArtifactIsFailure(t *testing.T) {
	db := writeDumper("database", nil)
	db.Critical = true
	p, _ := testPipeline(t, []Subsystem{db})

	_, err := p.Run(context.Background())
	var artErr *ArtifactError
	require.ErrorAs(t, err, &artErr)
	assert.Contains(t, artErr.Reason, "empty")
}

func TestPipelineRequiredEncryptionUnavailable(t *testing.T) {
	p, _ := testPipeline(t, []Subsystem{writeDumper("database", []byte("x"))})
	p.Settings.Backup.Mode = "age"
	p.Settings.Backup.Required = true

	_, err := p.Run(context.Background())
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestPipelinePrunesExpiredBundles(t *testing.T) {
	p, backupDir := testPipeline(t, []Subsystem{writeDumper("database", []byte("x"))})
	p.Settings.Backup.RetentionDays = 7
	stale := p.Now().AddDate(0, 0, -10).Format("20060102_150405")
	require.NoError(t, os.MkdirAll(filepath.Join(backupDir, stale), 0o750))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(backupDir, stale))
	assert.True(t, os.IsNotExist(err))
}

type recordingTarget struct {
	pushed string
	err    error
}

func (r *recordingTarget) Name() string { return "recording" }
func (r *recordingTarget) Push(_ context.Context, bundleDir string) error {
	r.pushed = bundleDir
	return r.err
}

func TestPipelineRemotePushBestEffort(t *testing.T) {
	p, _ := testPipeline(t, []Subsystem{writeDumper("database", []byte("x"))})
	target := &recordingTarget{err: fmt.Errorf("connection refused")}
	p.Remote = target

	bundle, err := p.Run(context.Background())
	require.NoError(t, err, "remote push failure must not fail the run")
	assert.Equal(t, bundle.Dir, target.pushed)
}

func TestRestoreRoundTrip(t *testing.T) {
	payload := []byte("the original dump bytes")
	p, _ := testPipeline(t, []Subsystem{writeDumper("database", payload)})

	bundle, err := p.Run(context.Background())
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Restore(bundle.Dir, "", dest))
	restored, err := os.ReadFile(filepath.Join(dest, "database.dump"))
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestRestoreRejectsTamperedBundle(t *testing.T) {
	p, _ := testPipeline(t, []Subsystem{writeDumper("database", []byte("payload"))})
	bundle, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(bundle.Artifacts[0].Path, []byte("tampered"), 0o640))
	var intErr *IntegrityError
	require.ErrorAs(t, Restore(bundle.Dir, "", t.TempDir()), &intErr)
}
