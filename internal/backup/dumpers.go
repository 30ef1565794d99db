package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stackward/stackward/internal/config"
	"github.com/stackward/stackward/internal/secrets"
)

// DefaultSubsystems builds the standard dump set for the configured stack.
// Order matters: the primary datastore goes first so a critical failure
// aborts before any secondary work. Datastore credentials come from the
// secret store; values are never logged.
func DefaultSubsystems(settings config.Settings, store *secrets.Store) []Subsystem {
	return []Subsystem{
		{Name: "database", Critical: true, Dump: databaseDumper(settings, store)},
		{Name: "cache", Critical: false, Dump: cacheDumper(settings, store)},
		{Name: "appdata", Critical: false, Dump: tarDumper("appdata", settings.Backup.AppDataDir)},
		{Name: "config", Critical: false, Dump: tarDumper("config", settings.Backup.ConfigDir)},
	}
}

// readSecret returns the named secret, or empty when the store has no such
// file.
func readSecret(store *secrets.Store, name string) string {
	if store == nil {
		return ""
	}
	value, err := store.Read(name)
	if err != nil {
		return ""
	}
	return value
}

// isolatedDumpArgs builds the locked-down one-off container invocation. The
// database password travels through the client environment (`--env` with no
// value inherits it), never through argv.
func isolatedDumpArgs(settings config.Settings) []string {
	return []string{"run", "--rm",
		"--network", "container:" + settings.Services.Database,
		"--read-only", "--cap-drop", "ALL", "--security-opt", "no-new-privileges",
		"--env", "PGHOST=localhost",
		"--env", "PGPASSWORD",
		"postgres:16-alpine",
		"pg_dump", "-Fc", "-U", "postgres", settings.Backup.Database,
	}
}

// composeDumpArgs builds the in-service invocation over the local socket.
func composeDumpArgs(settings config.Settings) []string {
	return []string{"compose", "-f", settings.ComposeFile,
		"exec", "-T", settings.Services.Database,
		"pg_dump", "-Fc", "-U", "postgres", settings.Backup.Database,
	}
}

// databaseDumper snapshots postgres with pg_dump in custom format. The
// isolated variant runs a locked-down one-off container on the service's
// network namespace instead of exec-ing into the running service; it
// authenticates with the db_password secret since it connects over TCP
// rather than the in-container socket. The artifact contract is identical
// either way.
func databaseDumper(settings config.Settings, store *secrets.Store) func(ctx context.Context, destDir string) (string, error) {
	return func(ctx context.Context, destDir string) (string, error) {
		out := filepath.Join(destDir, "database.dump")

		var cmd *exec.Cmd
		if settings.Backup.Isolated {
			cmd = exec.CommandContext(ctx, "docker", isolatedDumpArgs(settings)...)
			if pass := readSecret(store, "db_password"); pass != "" {
				cmd.Env = append(os.Environ(), "PGPASSWORD="+pass)
			}
		} else {
			cmd = exec.CommandContext(ctx, "docker", composeDumpArgs(settings)...)
		}
		return out, runToFile(cmd, out)
	}
}

// cacheSaveArgs builds the snapshot trigger, authenticating when the cache
// password secret exists.
func cacheSaveArgs(settings config.Settings, password string) []string {
	args := []string{"compose", "-f", settings.ComposeFile,
		"exec", "-T", settings.Services.Cache, "redis-cli"}
	if password != "" {
		args = append(args, "--no-auth-warning", "-a", password)
	}
	return append(args, "save")
}

// cacheDumper forces an RDB snapshot and copies it out of the cache
// container.
func cacheDumper(settings config.Settings, store *secrets.Store) func(ctx context.Context, destDir string) (string, error) {
	return func(ctx context.Context, destDir string) (string, error) {
		out := filepath.Join(destDir, "cache.rdb")
		svc := settings.Services.Cache
		save := exec.CommandContext(ctx, "docker", cacheSaveArgs(settings, readSecret(store, "cache_password"))...)
		if msg, err := save.CombinedOutput(); err != nil {
			return "", fmt.Errorf("cache save: %v: %s", err, strings.TrimSpace(string(msg)))
		}
		cp := exec.CommandContext(ctx, "docker", "compose", "-f", settings.ComposeFile,
			"cp", svc+":/data/dump.rdb", out)
		if msg, err := cp.CombinedOutput(); err != nil {
			return "", fmt.Errorf("cache copy: %v: %s", err, strings.TrimSpace(string(msg)))
		}
		return out, nil
	}
}

// tarDumper archives a directory tree into a single artifact.
func tarDumper(name, srcDir string) func(ctx context.Context, destDir string) (string, error) {
	return func(ctx context.Context, destDir string) (string, error) {
		if srcDir == "" {
			return "", fmt.Errorf("%s: no source directory configured", name)
		}
		if _, err := os.Stat(srcDir); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		out := filepath.Join(destDir, name+".tar")
		cmd := exec.CommandContext(ctx, "tar", "-cf", out,
			"-C", filepath.Dir(srcDir), filepath.Base(srcDir))
		if msg, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("tar %s: %v: %s", srcDir, err, strings.TrimSpace(string(msg)))
		}
		return out, nil
	}
}

// runToFile streams a command's stdout into path. Stderr is kept for the
// error message only.
func runToFile(cmd *exec.Cmd, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	var stderr strings.Builder
	cmd.Stdout = f
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if closeErr := f.Close(); runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%s: %v: %s", cmd.Args[0], runErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}
