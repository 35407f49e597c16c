package blobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/config"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "documents"))
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("risk assessment body")

	hash, err := store.Put(ctx, data)
	require.NoError(t, err)
	require.True(t, len(hash) > 7 && hash[:7] == "sha256:")

	got, err := store.Get(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, data, got)

	exists, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestFileStore_Idempotent(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "documents"))
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("same body twice")

	hash1, err := store.Put(ctx, data)
	require.NoError(t, err)
	hash2, err := store.Put(ctx, data)
	require.NoError(t, err)

	require.Equal(t, hash1, hash2)
}

func TestFileStore_DeleteThenNotExists(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "documents"))
	require.NoError(t, err)

	ctx := context.Background()
	hash, err := store.Put(ctx, []byte("to be deleted"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, hash))

	exists, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.Get(ctx, hash)
	require.Error(t, err)
}

func TestFileStore_GetInvalidHashFormat(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "documents"))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "not-a-hash")
	require.ErrorContains(t, err, "invalid hash format")
}

func TestNew_SelectsTierFromConfig(t *testing.T) {
	dataDir := t.TempDir()

	local, err := New(context.Background(), &config.Config{}, dataDir)
	require.NoError(t, err)
	_, ok := local.(*FileStore)
	require.True(t, ok, "expected a FileStore when no S3 bucket is configured")

	s3Backed, err := New(context.Background(), &config.Config{S3Bucket: "annex4parser-documents"}, dataDir)
	require.NoError(t, err)
	_, ok = s3Backed.(*S3Store)
	require.True(t, ok, "expected an S3Store when S3Bucket is configured")
}
