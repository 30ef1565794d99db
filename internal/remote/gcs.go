package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"

	"github.com/stackward/stackward/internal/backup"
	"github.com/stackward/stackward/internal/config"
)

// GCSTarget uploads bundles to a Google Cloud Storage bucket using ambient
// application-default credentials.
type GCSTarget struct {
	Bucket string
	Prefix string
}

func NewGCSTarget(settings config.RemoteSettings) (backup.Target, error) {
	if settings.Bucket == "" {
		return nil, fmt.Errorf("gcs target needs a bucket")
	}
	return &GCSTarget{Bucket: settings.Bucket, Prefix: settings.Prefix}, nil
}

func (t *GCSTarget) Name() string { return "gcs" }

func (t *GCSTarget) Push(ctx context.Context, bundleDir string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("gcs client: %w", err)
	}
	defer client.Close()

	files, err := bundleFiles(bundleDir)
	if err != nil {
		return err
	}
	bucket := client.Bucket(t.Bucket)
	for _, name := range files {
		object := path.Join(t.Prefix, filepath.Base(bundleDir), name)
		if err := t.upload(ctx, bucket, filepath.Join(bundleDir, name), object); err != nil {
			return fmt.Errorf("push %s: %w", name, err)
		}
	}
	log.Info().Str("bucket", t.Bucket).Int("files", len(files)).Msg("bundle pushed to gcs")
	return nil
}

func (t *GCSTarget) upload(ctx context.Context, bucket *storage.BucketHandle, localPath, object string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local: %w", err)
	}
	defer src.Close()

	w := bucket.Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}
