package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/stackward/stackward/internal/config"
	"github.com/stackward/stackward/internal/secrets"
)

// ArtifactError reports a backup artifact that could not be produced or was
// empty. Fatal for the primary datastore, a warning for secondary
// subsystems.
type ArtifactError struct {
	Subsystem string
	Reason    string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact error: %s: %s", e.Subsystem, e.Reason)
}

// Subsystem is one stateful component snapshotted into an artifact. Dump
// writes an uncompressed artifact into destDir and returns its path.
type Subsystem struct {
	Name     string
	Critical bool
	Dump     func(ctx context.Context, destDir string) (string, error)
}

// Artifact is one transformed payload inside a bundle.
type Artifact struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Bundle is one timestamped run's complete output: artifacts, checksum
// manifest and metadata document.
type Bundle struct {
	Dir        string
	Timestamp  string
	Mode       Mode
	Artifacts  []Artifact
	Subsystems map[string]bool
	TotalSize  int64
}

// Target pushes a sealed bundle to remote storage. Push failures are logged
// and never fail the run.
type Target interface {
	Name() string
	Push(ctx context.Context, bundleDir string) error
}

// Pipeline snapshots every stateful subsystem, applies one uniform
// transform, seals the bundle with a manifest and applies retention. It
// acquires no lock: single-invocation discipline belongs to the external
// scheduler.
type Pipeline struct {
	Settings   config.Settings
	Secrets    *secrets.Store
	Subsystems []Subsystem
	Remote     Target
	Webhook    string

	// Overridable in tests.
	AgeAvailable      func() bool
	RecipientsPresent func(path string) bool
	Now               func() time.Time
	Versions          func(ctx context.Context) map[string]string
}

func NewPipeline(settings config.Settings, store *secrets.Store) *Pipeline {
	p := &Pipeline{
		Settings:          settings,
		Secrets:           store,
		AgeAvailable:      AgeAvailable,
		RecipientsPresent: RecipientsPresent,
		Now:               time.Now,
	}
	p.Subsystems = DefaultSubsystems(settings, store)
	return p
}

// Run executes the whole pipeline and returns the sealed bundle. A critical
// subsystem failure aborts the run; secondary failures are recorded in the
// metadata and the run still succeeds.
func (p *Pipeline) Run(ctx context.Context) (*Bundle, error) {
	mode, err := ResolveMode(Mode(p.Settings.Backup.Mode), p.Settings.Backup.Required,
		p.AgeAvailable(), p.RecipientsPresent(p.Settings.Backup.RecipientsFile))
	if err != nil {
		return nil, err
	}

	ts := bundleTimestamp(p.Now())
	bundle := &Bundle{
		Dir:        filepath.Join(p.Settings.Backup.Dir, ts),
		Timestamp:  ts,
		Mode:       mode,
		Subsystems: map[string]bool{},
	}
	if err := os.MkdirAll(bundle.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}
	log.Info().Str("bundle", bundle.Dir).Str("mode", string(mode)).Msg("backup run started")

	for _, sub := range p.Subsystems {
		path, err := p.snapshot(ctx, sub, bundle.Dir, mode)
		if err != nil {
			bundle.Subsystems[sub.Name] = false
			if sub.Critical {
				return nil, err
			}
			log.Warn().Err(err).Str("subsystem", sub.Name).Msg("secondary subsystem backup failed, continuing")
			continue
		}
		bundle.Subsystems[sub.Name] = true
		bundle.Artifacts = append(bundle.Artifacts, Artifact{Name: sub.Name, Path: path})
	}

	var versions map[string]string
	if p.Versions != nil {
		versions = p.Versions(ctx)
	}
	if err := writeManifest(bundle, versions); err != nil {
		return nil, err
	}
	log.Info().Int("artifacts", len(bundle.Artifacts)).
		Str("size", humanize.Bytes(uint64(bundle.TotalSize))).Msg("bundle sealed")

	if removed, err := Prune(p.Settings.Backup.Dir, p.Settings.Backup.RetentionDays, p.Now()); err != nil {
		log.Warn().Err(err).Msg("retention sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("retention sweep complete")
	}

	// Remote push and webhook are best-effort and never fail the run.
	if p.Remote != nil {
		if err := p.Remote.Push(ctx, bundle.Dir); err != nil {
			log.Warn().Err(err).Str("target", p.Remote.Name()).Msg("remote push failed")
		}
	}
	if p.Webhook != "" {
		if err := notifyWebhook(ctx, p.Webhook, bundle); err != nil {
			log.Warn().Err(err).Msg("webhook notification failed")
		}
	}
	return bundle, nil
}

// snapshot produces one subsystem's artifact, verifies it is non-empty and
// applies the resolved transform.
func (p *Pipeline) snapshot(ctx context.Context, sub Subsystem, destDir string, mode Mode) (string, error) {
	path, err := sub.Dump(ctx, destDir)
	if err != nil {
		return "", &ArtifactError{Subsystem: sub.Name, Reason: err.Error()}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &ArtifactError{Subsystem: sub.Name, Reason: fmt.Sprintf("artifact missing: %v", err)}
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return "", &ArtifactError{Subsystem: sub.Name, Reason: "artifact is empty"}
	}
	out, err := transform(mode, path, p.Settings.Backup.RecipientsFile)
	if err != nil {
		return "", &ArtifactError{Subsystem: sub.Name, Reason: err.Error()}
	}
	return out, nil
}
