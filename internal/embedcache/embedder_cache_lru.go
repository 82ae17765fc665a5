package embedcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/ragdrive/internal/ai"
)

// Stats counts lookups served by the in-memory layer.
type Stats struct {
	Hits   int64
	Misses int64
}

// LRUEmbedder keeps recent vectors in memory. Concurrent misses for the
// same text share a single upstream call, which matters while an index
// build embeds many chunks in parallel.
type LRUEmbedder struct {
	next   ai.IEmbedder
	cache  *expirable.LRU[string, []float32]
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// WrapLruCacheToEmbedder returns e unchanged when size is not positive. A
// zero ttl keeps entries until they are evicted.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 {
		return e
	}
	return NewLRUEmbedder(e, size, ttl)
}

func NewLRUEmbedder(e ai.IEmbedder, size int, ttl time.Duration) *LRUEmbedder {
	return &LRUEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (l *LRUEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	cacheKey, _, _ := buildCacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(cacheKey); ok {
		l.hits.Add(1)
		return cloneEmbedding(cached), nil
	}
	l.misses.Add(1)
	v, err, shared := l.group.Do(cacheKey, func() (interface{}, error) {
		callCtx, cancel := sharedContext(ctx)
		defer cancel()
		res, err := l.next.Embed(callCtx, text, taskType)
		if err != nil {
			return nil, err
		}
		l.cache.Add(cacheKey, cloneEmbedding(res))
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logutil.GetLogger(ctx).Debug("embedding call shared", zap.String("task_type", taskType))
	}
	return cloneEmbedding(v.([]float32)), nil
}

// sharedContext detaches the upstream call from the first caller's
// cancellation, since other callers may be waiting on the same result. The
// caller's deadline still bounds the call.
func sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

func (l *LRUEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *LRUEmbedder) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load()}
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
