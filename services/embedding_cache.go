package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
)

const embeddingCacheExpiration = 6 * time.Hour

// CachedEmbeddingService memoizes text embeddings behind a loadable
// Ristretto cache. Image embeddings are never cached since image bytes make
// a poor cache key.
type CachedEmbeddingService struct {
	inner EmbeddingServiceProvider
	cache *cache.LoadableCache[[]float32]
}

func NewCachedEmbeddingService(inner EmbeddingServiceProvider) (*CachedEmbeddingService, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     1 << 26, // 64MB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	ristrettoStore := ristretto_store.NewRistretto(ristrettoCache)

	loadFunction := func(ctx context.Context, key any) ([]float32, []store.Option, error) {
		text, ok := key.(string)
		if !ok {
			return nil, nil, fmt.Errorf("invalid key type provided to embedding cache: expected string, got %T", key)
		}
		vector, err := inner.EmbedText(ctx, text)
		return vector, []store.Option{store.WithExpiration(embeddingCacheExpiration)}, err
	}

	loadableCache := cache.NewLoadable[[]float32](
		loadFunction,
		cache.New[[]float32](ristrettoStore),
	)
	return &CachedEmbeddingService{
		inner: inner,
		cache: loadableCache,
	}, nil
}

func (s *CachedEmbeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	return s.cache.Get(ctx, text)
}

func (s *CachedEmbeddingService) EmbedImage(ctx context.Context, imageBytes []byte, mimeType string) ([]float32, error) {
	return s.inner.EmbedImage(ctx, imageBytes, mimeType)
}
