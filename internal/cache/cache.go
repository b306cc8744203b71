package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for byte-value caching. The embedding layer
// uses it to avoid re-embedding the same normalized name across days.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// EmbeddingKey generates a cache key for an embedded text. The model name is
// part of the key: switching embedding models must never serve stale vectors.
func EmbeddingKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return "softpower:emb:v1:" + hex.EncodeToString(hash[:])
}
