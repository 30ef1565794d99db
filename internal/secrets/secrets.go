package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// FileMode is the required mode for individual secret files.
	FileMode os.FileMode = 0o600
	// DirMode is the required mode for the secrets directory.
	DirMode os.FileMode = 0o700
	// MinLength is the minimum secret length before a strength warning.
	MinLength = 16
)

// Store reads named secret values from individually-permissioned files under
// a single directory. It is the sole trusted source of credentials; values
// are never logged.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the secrets directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path holding the named secret.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Read returns the trimmed contents of the named secret file.
func (s *Store) Read(name string) (string, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether the named secret file is present.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// List returns the names of all regular files in the secrets directory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read secrets dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CheckFileMode verifies the named secret file is owner-read/write only.
// Modes are checked here, not enforced; enforcement belongs to generation.
func (s *Store) CheckFileMode(name string) error {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return fmt.Errorf("stat secret %s: %w", name, err)
	}
	if perm := info.Mode().Perm(); perm != FileMode {
		return fmt.Errorf("secret %s has mode %04o, want %04o", name, perm, FileMode)
	}
	return nil
}

// CheckDirMode verifies the secrets directory is owner-only.
func (s *Store) CheckDirMode() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat secrets dir: %w", err)
	}
	if perm := info.Mode().Perm(); perm != DirMode {
		return fmt.Errorf("secrets dir has mode %04o, want %04o", perm, DirMode)
	}
	return nil
}

// CheckStrength verifies the named secret meets the minimum length.
func (s *Store) CheckStrength(name string) error {
	v, err := s.Read(name)
	if err != nil {
		return err
	}
	if len(v) < MinLength {
		return fmt.Errorf("secret %s is shorter than %d characters", name, MinLength)
	}
	return nil
}
