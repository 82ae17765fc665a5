package remote

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

type localConfig struct {
	Root string `json:"root"`
}

// localStore maps a folder id to a sub-directory of root. Only regular files
// directly inside it are listed.
type localStore struct {
	root string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("local remote root is required")
	}
	return NewLocal(cfg.Root), nil
}

func NewLocal(root string) Store {
	return &localStore{root: root}
}

func (s *localStore) Name() string {
	return "local"
}

func (s *localStore) FolderPath(folderID string) (string, error) {
	if folderID == "" || folderID == "." || strings.Contains(folderID, "..") || strings.ContainsAny(folderID, `/\`) {
		return "", fmt.Errorf("%w: folder id %q", appErr.ErrInvalid, folderID)
	}
	return filepath.Join(s.root, folderID), nil
}

func (s *localStore) List(ctx context.Context, folderID string) ([]model.RemoteFile, error) {
	_ = ctx
	dir, err := s.FolderPath(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("folder %s: %w", folderID, appErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	files := make([]model.RemoteFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, model.RemoteFile{
			ID:       folderID + "/" + entry.Name(),
			Name:     entry.Name(),
			MIMEType: mime.TypeByExtension(filepath.Ext(entry.Name())),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *localStore) Download(ctx context.Context, file model.RemoteFile) (*model.RawFile, error) {
	_ = ctx
	folderID, name, ok := strings.Cut(file.ID, "/")
	if !ok || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid file id: %q", file.ID)
	}
	dir, err := s.FolderPath(folderID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &model.RawFile{
		ID:          file.ID,
		Name:        file.Name,
		ContentType: file.MIMEType,
		Data:        data,
	}, nil
}
