package blob_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kiranshivaraju/mindalert/internal/blob"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutOpenDelete(t *testing.T) {
	s, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "user/a.m4a", strings.NewReader("audio-bytes"), "audio/mp4"))

	rc, err := s.Open(ctx, "user/a.m4a")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "audio-bytes", string(data))

	require.NoError(t, s.Delete(ctx, "user/a.m4a"))
	_, err = s.Open(ctx, "user/a.m4a")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "user/a.m4a"), "deleting a missing blob is not an error")
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", strings.NewReader("x"), "")
	assert.Error(t, err)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := blob.New(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}

func TestNew_Local(t *testing.T) {
	s, err := blob.New(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &blob.LocalStore{}, s)
}
