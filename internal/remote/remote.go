package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/ragdrive/internal/config"
	"github.com/xxxsen/ragdrive/internal/model"
)

// Store lists and downloads the files of a remote folder. Implementations
// return plain errors, callers attach the operation and target.
type Store interface {
	Name() string
	List(ctx context.Context, folderID string) ([]model.RemoteFile, error)
	Download(ctx context.Context, file model.RemoteFile) (*model.RawFile, error)
}

// DirResolver is implemented by stores backed by the local filesystem.
type DirResolver interface {
	FolderPath(folderID string) (string, error)
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.RemoteConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode remote config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode remote config: %w", err)
	}
	return nil
}
