package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/ragdrive/internal/chunker"
	"github.com/xxxsen/ragdrive/internal/doccache"
	"github.com/xxxsen/ragdrive/internal/extract"
	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
	"github.com/xxxsen/ragdrive/internal/remote"
	"github.com/xxxsen/ragdrive/internal/vectorindex"
)

// State is the published view of the corpus. A State is never modified
// after it is stored, a new ingestion publishes a new value.
type State struct {
	FolderID   string
	Chunks     []model.Chunk
	Index      *vectorindex.Index
	IngestedAt int64
}

// Completer sends one prompt to the chat model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	DownloadConcurrency int
	RemoteTimeout       time.Duration
	EmbedConcurrency    int
	TopK                int
}

type RAGService struct {
	remote    remote.Store
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	cache     *doccache.Cache
	embedder  vectorindex.Embedder
	llm       Completer
	opts      Options

	state    atomic.Pointer[State]
	ingestMu sync.Mutex
	now      func() time.Time
}

func NewRAGService(
	store remote.Store,
	extractor *extract.Extractor,
	ck *chunker.Chunker,
	cache *doccache.Cache,
	embedder vectorindex.Embedder,
	llm Completer,
	opts Options,
) *RAGService {
	if opts.DownloadConcurrency <= 0 {
		opts.DownloadConcurrency = 4
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 4
	}
	if opts.TopK <= 0 {
		opts.TopK = vectorindex.DefaultTopK
	}
	return &RAGService{
		remote:    store,
		extractor: extractor,
		chunker:   ck,
		cache:     cache,
		embedder:  embedder,
		llm:       llm,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *RAGService) current() *State {
	return s.state.Load()
}

// ActiveFolder returns the folder of the published state, if any.
func (s *RAGService) ActiveFolder() string {
	if st := s.current(); st != nil {
		return st.FolderID
	}
	return ""
}

func (s *RAGService) Status() model.Status {
	st := s.current()
	if st == nil {
		return model.Status{}
	}
	return model.Status{
		FolderID:   st.FolderID,
		Chunks:     len(st.Chunks),
		IngestedAt: st.IngestedAt,
		Ready:      st.FolderID != "" && len(st.Chunks) > 0 && st.Index != nil,
	}
}

func (s *RAGService) withRemoteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RemoteTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.RemoteTimeout)
}

// Ingest rebuilds the corpus from folderID. The previous state stays
// published until every step succeeded.
func (s *RAGService) Ingest(ctx context.Context, folderID string) (*model.IngestResult, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, fmt.Errorf("%w: folder id is required", appErr.ErrInvalid)
	}
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	start := s.now()
	logger := logutil.GetLogger(ctx).With(zap.String("folder_id", folderID))
	logger.Info("ingestion started", zap.String("remote", s.remote.Name()))

	files, err := s.list(ctx, folderID)
	if err != nil {
		logger.Error("list folder failed", zap.Error(err))
		return nil, err
	}
	docs, err := s.fetchDocuments(ctx, files)
	if err != nil {
		logger.Error("fetch documents failed", zap.Error(err))
		return nil, err
	}
	chunks := s.chunker.Split(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %d files produced no text", appErr.ErrEmptyCorpus, len(files))
	}
	index, err := vectorindex.Build(ctx, s.embedder, chunks, vectorindex.Options{Concurrency: s.opts.EmbedConcurrency})
	if err != nil {
		logger.Error("build index failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, fmt.Errorf("build index: %w", err)
	}
	snap, err := s.cache.Save(ctx, folderID, chunks)
	if err != nil {
		logger.Error("save document cache failed", zap.Error(err))
		return nil, err
	}
	s.state.Store(&State{
		FolderID:   folderID,
		Chunks:     chunks,
		Index:      index,
		IngestedAt: snap.CreatedAt,
	})
	res := &model.IngestResult{
		FolderID: folderID,
		Files:    len(files),
		Chunks:   len(chunks),
		Duration: s.now().Sub(start),
	}
	chunkCfg := s.chunker.Config()
	logger.Info("ingestion finished",
		zap.Int("files", res.Files),
		zap.Int("chunks", res.Chunks),
		zap.Int("max_chunk_chars", chunkCfg.MaxChunkChars),
		zap.Int("dimension", index.Dimension()),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (s *RAGService) list(ctx context.Context, folderID string) ([]model.RemoteFile, error) {
	lctx, cancel := s.withRemoteTimeout(ctx)
	defer cancel()
	files, err := s.remote.List(lctx, folderID)
	if err != nil {
		return nil, &appErr.RemoteAccessError{Op: "list", Target: folderID, Err: err}
	}
	if len(files) == 0 {
		return nil, appErr.ErrEmptyFolder
	}
	return files, nil
}

// fetchDocuments downloads and extracts every file in parallel. The result
// keeps listing order.
func (s *RAGService) fetchDocuments(ctx context.Context, files []model.RemoteFile) ([]model.TextDocument, error) {
	docs := make([]model.TextDocument, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.DownloadConcurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			dctx, cancel := s.withRemoteTimeout(gctx)
			defer cancel()
			raw, err := s.remote.Download(dctx, file)
			if err != nil {
				return &appErr.RemoteAccessError{Op: "download", Target: file.Name, Err: err}
			}
			raw.ContentType = extract.ContentType(raw.Name, raw.ContentType)
			doc, err := s.extractor.Extract(raw)
			if err != nil {
				return err
			}
			logutil.GetLogger(gctx).Debug("file processed",
				zap.String("name", file.Name),
				zap.String("content_type", raw.ContentType),
				zap.Int("bytes", len(raw.Data)),
				zap.Int("chars", len(doc.Text)))
			docs[i] = *doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Restore publishes the cached snapshot after a restart. The index is
// rebuilt from the cached chunks, so the folder is not listed again.
func (s *RAGService) Restore(ctx context.Context) error {
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("cache", s.cache.Key()))
	if snap.FolderID == "" {
		if !snap.IsEmpty() {
			logger.Warn("cached snapshot has no folder id, set the folder again", zap.Int("chunks", len(snap.Chunks)))
		}
		return nil
	}
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	if s.current() != nil {
		return nil
	}
	st := &State{FolderID: snap.FolderID, Chunks: snap.Chunks, IngestedAt: snap.CreatedAt}
	if snap.IsEmpty() {
		s.state.Store(st)
		return nil
	}
	index, err := vectorindex.Build(ctx, s.embedder, snap.Chunks, vectorindex.Options{Concurrency: s.opts.EmbedConcurrency})
	if err != nil {
		// The folder is still known so queries report that documents are
		// not loaded rather than asking for a folder.
		s.state.Store(st)
		return fmt.Errorf("rebuild index from cache: %w", err)
	}
	st.Index = index
	s.state.Store(st)
	logger.Info("restored snapshot",
		zap.String("folder_id", snap.FolderID),
		zap.Int("chunks", len(snap.Chunks)),
		zap.Int("dimension", index.Dimension()))
	return nil
}

// Resync re-ingests the active folder. It is a no-op before the first
// successful ingestion.
func (s *RAGService) Resync(ctx context.Context) (*model.IngestResult, error) {
	folderID := s.ActiveFolder()
	if folderID == "" {
		return nil, nil
	}
	return s.Ingest(ctx, folderID)
}
