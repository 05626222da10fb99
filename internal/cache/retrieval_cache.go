package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"clinical-nlq/internal/types"
)

// RetrievalCacheTTL is the Retrieval cache's fixed lifetime (spec.md 4.22).
const RetrievalCacheTTL = 5 * time.Minute

// RetrievalResult is the cached shape of one Integrated Retrieval run: the
// ranked candidates and the partial flag. Stage metrics and candidate counts
// are not cached, so a cache hit does not reproduce them.
type RetrievalResult struct {
	Candidates []types.RetrievalCandidate `json:"candidates"`
	Partial    bool                       `json:"partial"`
}

type retrievalEntry struct {
	key       string
	value     RetrievalResult
	element   *list.Element
	createdAt time.Time
}

// RetrievalCache caches RetrievalResult values keyed by a
// deterministic hash of (patient_id, query_text, filters, config). A miss
// always recomputes; stale-while-revalidate is never used (spec.md section 5).
type RetrievalCache struct {
	mu      sync.RWMutex
	cache   map[string]*retrievalEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration

	hits   int64
	misses int64
}

// NewRetrievalCache creates a retrieval-result cache with the given capacity
// and TTL (defaults: 500 entries when maxSize <= 0, RetrievalCacheTTL when
// ttl <= 0).
func NewRetrievalCache(maxSize int, ttl time.Duration) *RetrievalCache {
	if maxSize <= 0 {
		maxSize = 500
	}
	if ttl <= 0 {
		ttl = RetrievalCacheTTL
	}
	return &RetrievalCache{
		cache:   make(map[string]*retrievalEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Key computes the deterministic cache key for one retrieval request.
func Key(patientID types.PatientID, queryText string, filters types.Filters, config interface{}) string {
	filtersJSON, _ := json.Marshal(filters)
	configJSON, _ := json.Marshal(config)
	payload := fmt.Sprintf("%s|%s|%s|%s", patientID, queryText, filtersJSON, configJSON)
	hash := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", hash)
}

// Get retrieves a cached retrieval result by key.
func (c *RetrievalCache) Get(key string) (RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.cache[key]
	if !exists {
		c.misses++
		return RetrievalResult{}, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.removeEntry(entry)
		c.misses++
		return RetrievalResult{}, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.value, true
}

// Set stores a retrieval result under key, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *RetrievalCache) Set(key string, result RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.cache[key]; exists {
		entry.value = result
		entry.createdAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	entry := &retrievalEntry{key: key, value: result, createdAt: time.Now()}
	entry.element = c.lruList.PushFront(entry)
	c.cache[key] = entry

	for c.lruList.Len() > c.maxSize {
		oldest := c.lruList.Back()
		if oldest == nil {
			break
		}
		c.removeEntry(oldest.Value.(*retrievalEntry))
	}
}

func (c *RetrievalCache) removeEntry(entry *retrievalEntry) {
	delete(c.cache, entry.key)
	c.lruList.Remove(entry.element)
}

// Stats returns hit/miss/size accounting for diagnostics.
func (c *RetrievalCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
		TTL:     c.ttl,
	}
}
