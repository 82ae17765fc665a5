package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdrive/internal/config"
	"github.com/xxxsen/ragdrive/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(db))
	require.NoError(t, ApplyMigrations(db))
	return db
}

func TestEmbeddingCacheRepo_SaveGet(t *testing.T) {
	r := NewEmbeddingCacheRepo(openTestDB(t))
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	vec := []float32{0.125, -1.5, 3.25e-7, 42}
	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{
		ModelName: "m", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: "h1", Embedding: vec, Ctime: 100,
	}))
	got, ok, err := r.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok, err = r.Get(ctx, "m", "RETRIEVAL_QUERY", "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{
		ModelName: "m", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: "h1", Embedding: []float32{1, 2}, Ctime: 200,
	}))
	got, _, err = r.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestEmbeddingCacheRepo_DeleteBefore(t *testing.T) {
	r := NewEmbeddingCacheRepo(openTestDB(t))
	ctx := context.Background()
	for i, hash := range []string{"a", "b", "c"} {
		require.NoError(t, r.Save(ctx, &model.EmbeddingCache{
			ModelName: "m", TaskType: "t", ContentHash: hash, Embedding: []float32{1}, Ctime: int64(10 * (i + 1)),
		}))
	}
	n, err := r.DeleteBefore(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, ok, err := r.Get(ctx, "m", "t", "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}
