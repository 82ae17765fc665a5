package doccache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdrive/internal/filestore"
	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

const DefaultKey = "document_cache.json"

// Cache persists the chunk set of the last successful ingestion as a single
// versioned JSON snapshot.
type Cache struct {
	store filestore.Store
	key   string
	now   func() time.Time
}

func New(store filestore.Store, key string) *Cache {
	if key == "" {
		key = DefaultKey
	}
	return &Cache{store: store, key: key, now: time.Now}
}

func (c *Cache) Key() string {
	return c.key
}

func (c *Cache) Save(ctx context.Context, folderID string, chunks []model.Chunk) (*model.Snapshot, error) {
	if chunks == nil {
		chunks = []model.Chunk{}
	}
	snap := &model.Snapshot{
		Version:   model.SnapshotVersion,
		FolderID:  folderID,
		CreatedAt: c.now().UnixMilli(),
		Chunks:    chunks,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, &appErr.CacheIOError{Op: "encode", Err: err}
	}
	if err := c.store.Put(ctx, c.key, data); err != nil {
		return nil, &appErr.CacheIOError{Op: "write", Err: err}
	}
	logutil.GetLogger(ctx).Info("document cache saved",
		zap.String("key", c.key),
		zap.String("folder_id", folderID),
		zap.Int("chunks", len(chunks)))
	return snap, nil
}

// Load returns an empty snapshot when nothing has been saved yet.
func (c *Cache) Load(ctx context.Context) (*model.Snapshot, error) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, appErr.ErrNotExist) {
			return &model.Snapshot{Version: model.SnapshotVersion}, nil
		}
		return nil, &appErr.CacheIOError{Op: "read", Err: err}
	}
	snap, err := decode(data)
	if err != nil {
		return nil, &appErr.CacheIOError{Op: "decode", Err: err}
	}
	return snap, nil
}

type legacyChunk struct {
	PageContent string                 `json:"page_content"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func decode(data []byte) (*model.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}
	if trimmed[0] == '[' {
		return decodeLegacy(trimmed)
	}
	snap := &model.Snapshot{}
	if err := json.Unmarshal(trimmed, snap); err != nil {
		return nil, err
	}
	if snap.Version != model.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Chunks == nil {
		snap.Chunks = []model.Chunk{}
	}
	return snap, nil
}

// decodeLegacy reads the bare array format, which carries no folder id.
func decodeLegacy(data []byte) (*model.Snapshot, error) {
	var items []legacyChunk
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode legacy snapshot: %w", err)
	}
	chunks := make([]model.Chunk, 0, len(items))
	for _, item := range items {
		meta := make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			if s, ok := v.(string); ok {
				meta[k] = s
				continue
			}
			meta[k] = fmt.Sprint(v)
		}
		chunks = append(chunks, model.Chunk{Text: item.PageContent, Metadata: meta})
	}
	return &model.Snapshot{Version: 0, Chunks: chunks}, nil
}
