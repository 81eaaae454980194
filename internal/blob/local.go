package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Local stores blobs under a root directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		dir = "./data/blobs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: create root %s", dir)
	}
	return &Local{root: dir}, nil
}

// resolve maps a logical path onto the root, rejecting traversal.
func (l *Local) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", eris.Errorf("blob: invalid path %q", path)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *Local) Put(ctx context.Context, path string, r io.Reader) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return eris.Wrapf(err, "blob: mkdir for %s", path)
	}
	f, err := os.Create(full)
	if err != nil {
		return eris.Wrapf(err, "blob: create %s", path)
	}
	defer f.Close() //nolint:errcheck
	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrapf(err, "blob: write %s", path)
	}
	return nil
}

func (l *Local) Get(ctx context.Context, path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read %s", path)
	}
	return data, nil
}

func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open %s", path)
	}
	return f, nil
}

// Materialize returns the on-disk path directly; no copy is made.
func (l *Local) Materialize(ctx context.Context, path string) (string, func(), error) {
	full, err := l.resolve(path)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(full); err != nil {
		return "", nil, eris.Wrapf(err, "blob: stat %s", path)
	}
	return full, func() {}, nil
}
