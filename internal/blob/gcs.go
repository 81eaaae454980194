package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// GCS stores blobs in a Google Cloud Storage bucket. Credentials come from
// the ambient service account (ADC).
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS store for the given bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "blob: gcs client")
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Put(ctx context.Context, path string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "blob: gcs write %s", path)
	}
	if err := w.Close(); err != nil {
		return eris.Wrapf(err, "blob: gcs close %s", path)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, path string) ([]byte, error) {
	rc, err := g.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: gcs read %s", path)
	}
	return data, nil
}

func (g *GCS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: gcs open %s", path)
	}
	return rc, nil
}

// Materialize downloads the object to a temp file. The cleanup func removes it.
func (g *GCS) Materialize(ctx context.Context, path string) (string, func(), error) {
	rc, err := g.Open(ctx, path)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "dealflow-blob-*"+filepath.Ext(path))
	if err != nil {
		return "", nil, eris.Wrap(err, "blob: create temp")
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, eris.Wrapf(err, "blob: gcs download %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, eris.Wrap(err, "blob: close temp")
	}
	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}
