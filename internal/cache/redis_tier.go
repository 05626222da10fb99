package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"clinical-nlq/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisTier is an optional distributed second tier in front of the
// in-process EmbeddingCache: a shared cache across process restarts and
// multiple server instances. A miss here still falls through to recompute,
// same as the in-process tier (spec.md section 5: a miss always recomputes).
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTier dials addr and verifies connectivity with a bounded ping.
func NewRedisTier(addr string, ttl time.Duration) (*RedisTier, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	logging.GetComponentLogger("cache").Info("connected to redis embedding cache tier", "addr", addr)

	return &RedisTier{client: client, ttl: ttl}, nil
}

func embeddingTierKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%x", hash)
}

// Get fetches a cached embedding vector, if present and unexpired.
func (t *RedisTier) Get(ctx context.Context, text string) ([]float64, bool) {
	raw, err := t.client.Get(ctx, embeddingTierKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// Set stores an embedding vector with the tier's TTL.
func (t *RedisTier) Set(ctx context.Context, text string, embedding []float64) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, embeddingTierKey(text), raw, t.ttl).Err()
}

// Close releases the underlying connection pool.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
