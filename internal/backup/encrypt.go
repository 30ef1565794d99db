package backup

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/stackward/stackward/internal/config"
)

// Mode selects the transform applied uniformly to every artifact in a run.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeAge  Mode = "age"
	ModeGzip Mode = "gzip"
	ModeNone Mode = "none"
)

// ResolveMode picks the effective transform once per run. Auto prefers age
// when the tool and a recipients file are both available, else falls back to
// gzip. An explicit age request without the tool or recipients hard-fails
// when encryption is required, otherwise degrades to gzip with a warning.
func ResolveMode(mode Mode, required bool, ageAvailable, recipientsPresent bool) (Mode, error) {
	switch mode {
	case ModeAuto:
		if ageAvailable && recipientsPresent {
			return ModeAge, nil
		}
		return ModeGzip, nil
	case ModeAge:
		if ageAvailable && recipientsPresent {
			return ModeAge, nil
		}
		if required {
			return "", &config.ConfigError{Source: "backup", Reason: "age encryption required but tool or recipients file unavailable"}
		}
		log.Warn().Msg("age unavailable, falling back to gzip compression")
		return ModeGzip, nil
	case ModeGzip, ModeNone:
		return mode, nil
	default:
		return "", &config.ConfigError{Source: "backup", Reason: fmt.Sprintf("unknown encryption mode %q", mode)}
	}
}

// AgeAvailable reports whether the age binary is installed.
func AgeAvailable() bool {
	_, err := exec.LookPath("age")
	return err == nil
}

// RecipientsPresent reports whether the recipients file exists and is
// non-empty.
func RecipientsPresent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// transform applies the resolved mode to one artifact and returns the final
// path. Encryption and compression both delete the plaintext on success.
func transform(mode Mode, path, recipientsFile string) (string, error) {
	switch mode {
	case ModeAge:
		return encryptAge(path, recipientsFile)
	case ModeGzip:
		return gzipFile(path)
	case ModeNone:
		return path, nil
	default:
		return "", fmt.Errorf("unresolved transform mode %q", mode)
	}
}

// encryptAge runs the age tool against the recipients file, then removes the
// plaintext. Encryption primitives stay in the external tool.
func encryptAge(path, recipientsFile string) (string, error) {
	out := path + ".age"
	cmd := exec.Command("age", "--encrypt", "-R", recipientsFile, "-o", out, path)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("age encrypt %s: %v: %s", path, err, strings.TrimSpace(string(msg)))
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove plaintext %s: %w", path, err)
	}
	return out, nil
}

// DecryptAge decrypts an .age artifact with the given identity file and
// returns the plaintext path.
func DecryptAge(path, identityFile string) (string, error) {
	out := strings.TrimSuffix(path, ".age")
	cmd := exec.Command("age", "--decrypt", "-i", identityFile, "-o", out, path)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("age decrypt %s: %v: %s", path, err, strings.TrimSpace(string(msg)))
	}
	return out, nil
}

// gzipFile compresses the artifact in place and removes the original.
func gzipFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	out := path + ".gz"
	dst, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("compress %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return "", fmt.Errorf("finish compress %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", out, err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove plaintext %s: %w", path, err)
	}
	return out, nil
}

// GunzipFile decompresses a .gz artifact and returns the plaintext path.
func GunzipFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	zr, err := gzip.NewReader(src)
	if err != nil {
		return "", fmt.Errorf("read gzip %s: %w", path, err)
	}
	defer zr.Close()

	out := strings.TrimSuffix(path, ".gz")
	dst, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, zr); err != nil {
		return "", fmt.Errorf("decompress %s: %w", path, err)
	}
	return out, nil
}
