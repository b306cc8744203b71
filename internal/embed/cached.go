package embed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/cache"
)

// CachedEmbedder wraps an Embedder with a byte cache. Event names repeat
// heavily across days (a developing story is re-embedded every run), so hits
// remove whole texts from the upstream batch.
type CachedEmbedder struct {
	inner    Embedder
	cache    cache.Cache
	modelKey string
	ttl      time.Duration
}

// NewCached wraps inner with c. modelKey must identify the embedding model
// so vectors from different models never collide.
func NewCached(inner Embedder, c cache.Cache, modelKey string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, modelKey: modelKey, ttl: ttl}
}

// Name returns the wrapped provider name.
func (e *CachedEmbedder) Name() string {
	return e.inner.Name()
}

// Embed serves cache hits locally and batches only the misses upstream.
// Result order matches input order. A failed upstream batch caches nothing.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		key := cache.EmbeddingKey(e.modelKey, text)
		if data, found := e.cache.Get(key); found {
			var vec []float32
			if err := json.Unmarshal(data, &vec); err == nil {
				out[i] = vec
				continue
			}
			// Corrupt entry: drop it and re-embed.
			_ = e.cache.Delete(key)
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		out[missIdx[j]] = vec
		if data, err := json.Marshal(vec); err == nil {
			_ = e.cache.Set(cache.EmbeddingKey(e.modelKey, missTexts[j]), data, e.ttl)
		}
	}
	return out, nil
}
