package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Restore verifies a bundle's manifest and materializes every artifact as
// plaintext under destDir. identityFile is only consulted for age-encrypted
// artifacts.
func Restore(bundleDir, identityFile, destDir string) error {
	if err := Verify(bundleDir); err != nil {
		return err
	}
	meta, err := ReadMetadata(bundleDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("create restore dir: %w", err)
	}

	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == checksumFile || name == metadataFile {
			continue
		}
		src := filepath.Join(bundleDir, name)
		staged := filepath.Join(destDir, name)
		if err := copyFile(src, staged); err != nil {
			return err
		}
		var plain string
		switch {
		case strings.HasSuffix(name, ".age"):
			if identityFile == "" {
				return fmt.Errorf("bundle %s is age-encrypted, identity file required", meta.Timestamp)
			}
			plain, err = DecryptAge(staged, identityFile)
		case strings.HasSuffix(name, ".gz"):
			plain, err = GunzipFile(staged)
		default:
			plain, err = staged, nil
		}
		if err != nil {
			return err
		}
		if plain != staged {
			_ = os.Remove(staged)
		}
		log.Info().Str("artifact", filepath.Base(plain)).Msg("artifact restored")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
