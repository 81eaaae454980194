package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/config"
)

func TestPath(t *testing.T) {
	id := uuid.MustParse("6f1b0e0a-9a6b-4a57-9c20-09e9c2f1a111")
	got := Path("deck", id, "pitch.pdf")
	assert.Equal(t, "deck/6f1b0e0a-9a6b-4a57-9c20-09e9c2f1a111/file/pitch.pdf", got)
}

func TestLocal_PutGetOpen(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	path := Path("deck", uuid.New(), "pitch.pdf")
	require.NoError(t, store.Put(ctx, path, strings.NewReader("%PDF-1.4 test")))

	data, err := store.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))
}

func TestLocal_Materialize(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	path := Path("paper", uuid.New(), "paper.pdf")
	require.NoError(t, store.Put(ctx, path, strings.NewReader("bytes")))

	local, cleanup, err := store.Materialize(ctx, path)
	require.NoError(t, err)
	defer cleanup()
	assert.FileExists(t, local)
}

func TestLocal_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "../outside")
	assert.Error(t, err)

	err = store.Put(ctx, "/absolute/path", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocal_GetMissing(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "deck/none/file/missing.pdf")
	assert.Error(t, err)
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.BlobConfig{Backend: "local", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(ctx, config.BlobConfig{Backend: "gcs"})
	assert.Error(t, err, "gcs without bucket must fail")

	_, err = New(ctx, config.BlobConfig{Backend: "s3"})
	assert.Error(t, err)
}
