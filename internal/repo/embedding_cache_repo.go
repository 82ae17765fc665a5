package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragdrive/internal/model"
)

const embeddingCacheTable = "embedding_cache"

// EmbeddingCacheRepo stores embeddings in pgvector text form. Postgres keeps
// them in a vector column, sqlite in a TEXT column.
type EmbeddingCacheRepo struct {
	db *DB
}

func NewEmbeddingCacheRepo(db *DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) rebind(query string) string {
	if r.db.Driver == DriverPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	var embedding pgvector.Vector
	if err := r.db.QueryRowContext(ctx, r.rebind(sqlStr), args...).Scan(&embedding); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return embedding.Slice(), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if r.db.Driver == DriverPostgres {
		const query = `
			INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				ctime = EXCLUDED.ctime
		`
		_, err := r.db.ExecContext(ctx, query,
			item.ModelName,
			item.TaskType,
			item.ContentHash,
			pgvector.NewVector(item.Embedding),
			item.Ctime,
		)
		return err
	}
	data := map[string]interface{}{
		"model_name":   item.ModelName,
		"task_type":    item.TaskType,
		"content_hash": item.ContentHash,
		"embedding":    pgvector.NewVector(item.Embedding).String(),
		"ctime":        item.Ctime,
	}
	sqlStr, args, err := builder.BuildReplaceInsert(embeddingCacheTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, r.rebind(sqlStr), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
