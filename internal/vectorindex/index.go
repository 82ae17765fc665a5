package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/ragdrive/internal/ai"
	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

const DefaultTopK = 4

type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

type Options struct {
	Concurrency int
}

// Index is an exact cosine-similarity index over a fixed chunk set. It is
// immutable once built and safe for concurrent searches.
type Index struct {
	chunks  []model.Chunk
	vectors [][]float32
	dim     int
}

// Build embeds every chunk as a retrieval document.
func Build(ctx context.Context, embedder Embedder, chunks []model.Chunk, opts Options) (*Index, error) {
	if len(chunks) == 0 {
		return nil, appErr.ErrEmptyIndex
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, chunks[i].Text, ai.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d (%s): %w", i, chunks[i].Metadata[model.MetaSource], err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("chunk %d has dimension %d, want %d", i, len(vec), dim)
		}
	}
	owned := make([]model.Chunk, len(chunks))
	copy(owned, chunks)
	return &Index{chunks: owned, vectors: vectors, dim: dim}, nil
}

func (idx *Index) Len() int {
	return len(idx.chunks)
}

func (idx *Index) Dimension() int {
	return idx.dim
}

// Search returns the k chunks most similar to query, best first. Equal
// scores keep chunk order. k <= 0 means DefaultTopK.
func (idx *Index) Search(query []float32, k int) ([]model.Match, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("query has dimension %d, want %d", len(query), idx.dim)
	}
	if k <= 0 {
		k = DefaultTopK
	}
	matches := make([]model.Match, len(idx.chunks))
	for i, vec := range idx.vectors {
		matches[i] = model.Match{Chunk: idx.chunks[i], Score: cosineSimilarity(query, vec)}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
