// Package remote pushes sealed backup bundles to off-host storage. Targets
// are best-effort by contract: callers log push failures and move on.
package remote

import (
	"fmt"
	"os"
	"sort"

	"github.com/stackward/stackward/internal/backup"
	"github.com/stackward/stackward/internal/config"
)

// Factory builds a configured target from the remote settings block.
type Factory func(config.RemoteSettings) (backup.Target, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Get(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("remote target not registered: %s (known: %v)", name, r.Names())
	}
	return f, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry carries the built-in targets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("sftp", NewSFTPTarget)
	r.Register("gcs", NewGCSTarget)
	r.Register("local", NewLocalTarget)
	return r
}

// New resolves the configured target, or nil when no remote is configured.
func New(settings config.RemoteSettings) (backup.Target, error) {
	if settings.Target == "" {
		return nil, nil
	}
	f, err := DefaultRegistry().Get(settings.Target)
	if err != nil {
		return nil, err
	}
	return f(settings)
}

// bundleFiles lists the regular files of a sealed bundle: artifacts plus the
// manifest pair. Bundles never contain subdirectories.
func bundleFiles(bundleDir string) ([]string, error) {
	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}
