// Package blob provides keyed blob storage behind a logical path layout so
// parser and connector code never cares whether bytes live on local disk or
// in an object store.
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/config"
)

// Store is keyed blob get/put by logical path.
type Store interface {
	Put(ctx context.Context, path string, r io.Reader) error
	Get(ctx context.Context, path string) ([]byte, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Materialize makes the blob available as a local file for tools that
	// need a real path (pdftotext, pdftoppm). The cleanup func removes any
	// temporary copy; it is a no-op for the local backend.
	Materialize(ctx context.Context, path string) (string, func(), error)
}

// Path builds the canonical logical path for an entity's file:
// entity-type/{uuid}/file/{filename}.
func Path(entityType string, id uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s/file/%s", entityType, id, filename)
}

// New creates a Store from config.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Root)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, eris.New("blob: gcs backend requires a bucket")
		}
		return NewGCS(ctx, cfg.Bucket)
	default:
		return nil, eris.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
