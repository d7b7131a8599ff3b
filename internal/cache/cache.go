package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores serialized search responses keyed by request payload.
// Only page-mode requests are cached; iteration-mode requests carry a
// one-shot cursor and must always hit the remote service.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from the serialized request payload.
func Key(payload []byte) string {
	hash := sha256.Sum256(payload)
	return "tendertrack:v1:" + hex.EncodeToString(hash[:])
}
