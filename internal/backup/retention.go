package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

// bundlePattern matches bundle directory names: YYYYMMDD_HHMMSS.
var bundlePattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// Prune deletes entire bundles older than retentionDays, identified by
// their timestamp-pattern directory names. Other entries are left alone.
func Prune(dir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read backup dir: %w", err)
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !bundlePattern.MatchString(e.Name()) {
			continue
		}
		ts, err := time.ParseInLocation("20060102_150405", e.Name(), now.Location())
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				log.Warn().Err(err).Str("bundle", path).Msg("failed to prune bundle")
				continue
			}
			log.Info().Str("bundle", e.Name()).Msg("pruned expired bundle")
			removed++
		}
	}
	return removed, nil
}

// LatestBundleTime returns the timestamp of the newest bundle in dir,
// derived from its directory name.
func LatestBundleTime(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, fmt.Errorf("read backup dir: %w", err)
	}
	var latest time.Time
	for _, e := range entries {
		if !e.IsDir() || !bundlePattern.MatchString(e.Name()) {
			continue
		}
		ts, err := time.ParseInLocation("20060102_150405", e.Name(), time.Local)
		if err != nil {
			continue
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("no backup bundles in %s", dir)
	}
	return latest, nil
}
