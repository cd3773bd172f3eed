// Package archive keeps a copy of each published artifact body in
// S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/maia-experience/dpc-cicd/internal/dpc"
	"github.com/maia-experience/dpc-cicd/internal/platform/objectstore"
	"github.com/minio/minio-go/v7"
)

// ObjectPutter is the subset of *minio.Client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Archiver struct {
	client ObjectPutter
	bucket string
}

func New(client ObjectPutter, bucket string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("object client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

func NewFromConfig(cfg objectstore.Config) (*Archiver, error) {
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return New(client, cfg.Bucket)
}

// Key is <project>/<version>/<commit>.multipart.
func Key(projectID, versionName, commitHash string) string {
	return path.Join(projectID, versionName, commitHash+".multipart")
}

// Store uploads the exact multipart body that was published.
func (a *Archiver) Store(ctx context.Context, key string, bundle dpc.Bundle) error {
	opts := minio.PutObjectOptions{
		ContentType: bundle.ContentType,
		UserMetadata: map[string]string{
			"entries": fmt.Sprintf("%d", len(bundle.Entries)),
		},
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(bundle.Body), int64(len(bundle.Body)), opts)
	if err != nil {
		return fmt.Errorf("archive %s/%s: %w", a.bucket, key, err)
	}
	return nil
}
