package backup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	checksumFile = "checksums"
	metadataFile = "metadata.json"
)

// IntegrityError reports a checksum mismatch during bundle verification.
// Always fatal: a mismatch means a definitely-broken bundle, not a degraded
// one.
type IntegrityError struct {
	File   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s: %s", e.File, e.Reason)
}

// Metadata is the self-describing document sealed into every bundle.
type Metadata struct {
	Timestamp  string            `json:"timestamp"`
	Mode       string            `json:"encryption_mode"`
	Subsystems map[string]bool   `json:"subsystems"`
	Versions   map[string]string `json:"versions,omitempty"`
	TotalSize  int64             `json:"total_size_bytes"`
	SizeHuman  string            `json:"total_size"`
	FileCount  int               `json:"file_count"`
}

// sha256File computes the content hash of one artifact.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// writeManifest seals the bundle: one checksum line per artifact plus the
// metadata document.
func writeManifest(bundle *Bundle, versions map[string]string) error {
	var sb strings.Builder
	var totalSize int64
	for i := range bundle.Artifacts {
		a := &bundle.Artifacts[i]
		sum, err := sha256File(a.Path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", a.Path, err)
		}
		a.SHA256 = sum
		info, err := os.Stat(a.Path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", a.Path, err)
		}
		a.Size = info.Size()
		totalSize += a.Size
		fmt.Fprintf(&sb, "%s  %s\n", sum, filepath.Base(a.Path))
	}
	if err := os.WriteFile(filepath.Join(bundle.Dir, checksumFile), []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write checksums: %w", err)
	}

	bundle.TotalSize = totalSize
	meta := Metadata{
		Timestamp:  bundle.Timestamp,
		Mode:       string(bundle.Mode),
		Subsystems: bundle.Subsystems,
		Versions:   versions,
		TotalSize:  totalSize,
		SizeHuman:  humanize.Bytes(uint64(totalSize)),
		FileCount:  len(bundle.Artifacts),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundle.Dir, metadataFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the metadata document from a bundle directory.
func ReadMetadata(bundleDir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(bundleDir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// Verify recomputes every checksum recorded in the bundle's manifest. A
// missing file or mismatching hash yields an IntegrityError.
func Verify(bundleDir string) error {
	f, err := os.Open(filepath.Join(bundleDir, checksumFile))
	if err != nil {
		return fmt.Errorf("open checksums: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return &IntegrityError{File: checksumFile, Reason: fmt.Sprintf("malformed line %q", line)}
		}
		want, name := fields[0], fields[1]
		got, err := sha256File(filepath.Join(bundleDir, name))
		if err != nil {
			return &IntegrityError{File: name, Reason: "artifact missing or unreadable"}
		}
		if got != want {
			return &IntegrityError{File: name, Reason: "checksum mismatch"}
		}
	}
	return s.Err()
}

// bundleTimestamp formats a run start time into the bundle directory name.
func bundleTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}
