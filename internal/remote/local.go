package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/stackward/stackward/internal/backup"
	"github.com/stackward/stackward/internal/config"
)

// LocalTarget mirrors bundles into another directory, typically a separately
// mounted disk.
type LocalTarget struct {
	Dir string
}

func NewLocalTarget(settings config.RemoteSettings) (backup.Target, error) {
	if settings.Dir == "" {
		return nil, fmt.Errorf("local target needs a directory")
	}
	return &LocalTarget{Dir: settings.Dir}, nil
}

func (t *LocalTarget) Name() string { return "local" }

func (t *LocalTarget) Push(_ context.Context, bundleDir string) error {
	files, err := bundleFiles(bundleDir)
	if err != nil {
		return err
	}
	destDir := filepath.Join(t.Dir, filepath.Base(bundleDir))
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("mkdir mirror: %w", err)
	}
	for _, name := range files {
		if err := mirrorFile(filepath.Join(bundleDir, name), filepath.Join(destDir, name)); err != nil {
			return fmt.Errorf("mirror %s: %w", name, err)
		}
	}
	log.Info().Str("dir", destDir).Int("files", len(files)).Msg("bundle mirrored")
	return nil
}

func mirrorFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
