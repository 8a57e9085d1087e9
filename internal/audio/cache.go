package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheablePhraseMaxLen bounds which utterances are worth caching: short
// acknowledgements and filler phrases repeat constantly across calls, long
// generated replies almost never do.
const cacheablePhraseMaxLen = 96

const (
	phraseCacheKeyPrefix = "audio:phrase:"
	phraseCacheTTL       = 24 * time.Hour
)

// PhraseCache maps a (voice, text) pair to a previously uploaded audio URL.
type PhraseCache interface {
	Get(ctx context.Context, voiceID, text string) (string, bool)
	Put(ctx context.Context, voiceID, text, url string)
}

// Cacheable reports whether an utterance qualifies for the phrase cache.
func Cacheable(text string) bool {
	return len(text) > 0 && len(text) <= cacheablePhraseMaxLen
}

func phraseKey(voiceID, text string) string {
	sum := sha256.Sum256([]byte(voiceID + "\x00" + text))
	return phraseCacheKeyPrefix + hex.EncodeToString(sum[:16])
}

// RedisPhraseCache shares cached phrase audio across processes.
type RedisPhraseCache struct {
	rdb *redis.Client
}

// NewRedisPhraseCache creates a Redis-backed phrase cache.
func NewRedisPhraseCache(rdb *redis.Client) *RedisPhraseCache {
	return &RedisPhraseCache{rdb: rdb}
}

var _ PhraseCache = (*RedisPhraseCache)(nil)

func (c *RedisPhraseCache) Get(ctx context.Context, voiceID, text string) (string, bool) {
	url, err := c.rdb.Get(ctx, phraseKey(voiceID, text)).Result()
	if err != nil {
		return "", false
	}
	return url, url != ""
}

func (c *RedisPhraseCache) Put(ctx context.Context, voiceID, text, url string) {
	_ = c.rdb.Set(ctx, phraseKey(voiceID, text), url, phraseCacheTTL).Err()
}

// MemoryPhraseCache is the in-process fallback used in tests and
// single-node deployments.
type MemoryPhraseCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryPhraseCache creates an empty in-memory cache.
func NewMemoryPhraseCache() *MemoryPhraseCache {
	return &MemoryPhraseCache{entries: make(map[string]string)}
}

var _ PhraseCache = (*MemoryPhraseCache)(nil)

func (c *MemoryPhraseCache) Get(_ context.Context, voiceID, text string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.entries[phraseKey(voiceID, text)]
	return url, ok && url != ""
}

func (c *MemoryPhraseCache) Put(_ context.Context, voiceID, text, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[phraseKey(voiceID, text)] = url
}
