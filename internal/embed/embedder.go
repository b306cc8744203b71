// Package embed turns event-name text into fixed-length vectors. Providers
// are batched and order-preserving; a failed batch returns no partial results.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// Embedder defines the interface for embedding providers.
type Embedder interface {
	// Name returns the provider name
	Name() string

	// Embed returns one vector per input text, in input order. An error
	// means the whole batch failed; callers must treat it as fatal for
	// the current processing unit.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder creates an embedding provider based on configuration.
func NewEmbedder(cfg model.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "cohere":
		return NewCohereEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, cohere)", cfg.Provider)
	}
}

// Cosine returns the cosine similarity of two vectors in [-1,1].
// Zero-length or mismatched vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Similarity rescales cosine similarity from [-1,1] to [0,1].
func Similarity(a, b []float32) float64 {
	return (Cosine(a, b) + 1) / 2
}
