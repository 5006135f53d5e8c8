package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Entry is an immutable cached value tagged with the hash of the bytes it was built from
type Entry struct {
	Hash     string
	Origin   string
	Value    any
	LoadedAt time.Time
}

// Cache defines the interface for caching parsed documents
type Cache interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry, ttl time.Duration)
	Delete(key string)
	DeletePrefix(prefix string) int
	Clear()
}

const keyPrefix = "claimcheck:v1:"

// Key builds a cache key from its parts
func Key(parts ...string) string {
	return keyPrefix + strings.Join(parts, ":")
}

// Prefix builds a key prefix that matches every key starting with parts
func Prefix(parts ...string) string {
	if len(parts) == 0 {
		return keyPrefix
	}
	return Key(parts...) + ":"
}

// ContentHash returns the hex sha256 of data
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
