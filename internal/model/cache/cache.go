// Package cache implements the Redis-backed response cache behind the
// cache-only service level. Lookups try three strategies in fixed order:
// exact fingerprint match, token-similarity match over recent prompts, and
// template-pattern match for common prompt shapes. Entries expire via
// Redis TTL; a last-access index bounds total entries with LRU eviction.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

// Redis key layout. Entries are JSON blobs with native TTL; the index set
// enumerates live fingerprints for similarity scans; the access zset
// scores fingerprints by last access for LRU eviction.
const (
	entryKeyPrefix = "cascade:cache:entry:"
	indexKey       = "cascade:cache:index"
	accessKey      = "cascade:cache:access"
)

// templateConfidence discounts template-strategy answers: tag-matched
// stored entries return their confidence scaled by it, canned answers
// carry it outright.
const templateConfidence = 0.5

// entry is the stored form of a cached response.
type entry struct {
	Prompt     string  `json:"prompt"`
	Content    string  `json:"content"`
	TierID     string  `json:"tier_id"`
	Confidence float64 `json:"confidence"`
	Template   string  `json:"template,omitempty"` // tag of the prompt's template pattern
	StoredAtMs int64   `json:"stored_at_ms"`
}

// Stats tracks cache activity counters for observability.
type Stats struct {
	ExactHits    atomic.Int64
	SemanticHits atomic.Int64
	TemplateHits atomic.Int64
	Misses       atomic.Int64
	Puts         atomic.Int64
	Evictions    atomic.Int64
}

// Cache is the Redis-backed response cache. Safe for concurrent use.
type Cache struct {
	client              redis.Cmdable
	ttl                 time.Duration
	capacity            int
	similarityThreshold float64

	stats  Stats
	logger *slog.Logger
}

// New creates a cache around an existing Redis client.
func New(client redis.Cmdable, cfg configuration.CacheConfig) *Cache {
	return &Cache{
		client:              client,
		ttl:                 cfg.TTL.Std(),
		capacity:            cfg.Capacity,
		similarityThreshold: cfg.SimilarityThreshold,
		logger:              slog.Default().With("component", "cache"),
	}
}

// NewFromConfig creates a cache with its own Redis connection.
func NewFromConfig(cfg configuration.CacheConfig) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return New(client, cfg)
}

// StatsSnapshot is a point-in-time copy of the cache counters.
type StatsSnapshot struct {
	ExactHits    int64 `json:"exact_hits"`
	SemanticHits int64 `json:"semantic_hits"`
	TemplateHits int64 `json:"template_hits"`
	Misses       int64 `json:"misses"`
	Puts         int64 `json:"puts"`
	Evictions    int64 `json:"evictions"`
}

// Stats returns a snapshot of the cache activity counters.
func (c *Cache) Stats() StatsSnapshot {
	return StatsSnapshot{
		ExactHits:    c.stats.ExactHits.Load(),
		SemanticHits: c.stats.SemanticHits.Load(),
		TemplateHits: c.stats.TemplateHits.Load(),
		Misses:       c.stats.Misses.Load(),
		Puts:         c.stats.Puts.Load(),
		Evictions:    c.stats.Evictions.Load(),
	}
}

// Get looks up a response for the prompt, trying exact, similarity, and
// template strategies in that order. Returns ErrCacheMiss when nothing
// matches; any other error is a Redis failure.
func (c *Cache) Get(ctx context.Context, prompt, fingerprint string) (*transport.Response, error) {
	if resp, err := c.getExact(ctx, fingerprint); err == nil {
		c.stats.ExactHits.Add(1)
		return resp, nil
	} else if !errors.Is(err, llmerrors.ErrCacheMiss) {
		return nil, err
	}

	if resp, err := c.getSimilar(ctx, prompt); err == nil {
		c.stats.SemanticHits.Add(1)
		return resp, nil
	} else if !errors.Is(err, llmerrors.ErrCacheMiss) {
		return nil, err
	}

	if resp, err := c.getTemplate(ctx, prompt); err == nil {
		c.stats.TemplateHits.Add(1)
		return resp, nil
	} else if !errors.Is(err, llmerrors.ErrCacheMiss) {
		return nil, err
	}

	c.stats.Misses.Add(1)
	return nil, llmerrors.ErrCacheMiss
}

// Put stores a successful primary response under the prompt fingerprint
// and evicts least-recently-used entries above capacity. Re-putting the
// same fingerprint refreshes the entry and its TTL.
func (c *Cache) Put(ctx context.Context, prompt, fingerprint string, resp *transport.Response) error {
	e := entry{
		Prompt:     prompt,
		Content:    resp.Content,
		TierID:     resp.TierID,
		Confidence: resp.Confidence,
		Template:   templateTag(prompt),
		StoredAtMs: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, entryKeyPrefix+fingerprint, data, c.ttl)
	pipe.SAdd(ctx, indexKey, fingerprint)
	pipe.ZAdd(ctx, accessKey, redis.Z{Score: float64(time.Now().UnixNano()), Member: fingerprint})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	c.stats.Puts.Add(1)

	return c.evictOverCapacity(ctx)
}

// getExact fetches the entry stored under the exact fingerprint.
func (c *Cache) getExact(ctx context.Context, fingerprint string) (*transport.Response, error) {
	e, err := c.loadEntry(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	c.touch(ctx, fingerprint)
	return &transport.Response{
		Content:    e.Content,
		Source:     transport.SourceCacheExact,
		Confidence: e.Confidence,
	}, nil
}

// getSimilar scans live entries for the highest token-overlap prompt at or
// above the similarity threshold. Hit confidence is the stored confidence
// scaled by the similarity score.
func (c *Cache) getSimilar(ctx context.Context, prompt string) (*transport.Response, error) {
	fingerprints, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("scan cache index: %w", err)
	}

	queryTokens := tokenize(prompt)
	var best *entry
	var bestFingerprint string
	bestScore := 0.0

	for _, fp := range fingerprints {
		e, err := c.loadEntry(ctx, fp)
		if errors.Is(err, llmerrors.ErrCacheMiss) {
			continue // expired under us; loadEntry pruned the index
		}
		if err != nil {
			return nil, err
		}
		score := jaccard(queryTokens, tokenize(e.Prompt))
		if score >= c.similarityThreshold && score > bestScore {
			best, bestFingerprint, bestScore = e, fp, score
		}
	}

	if best == nil {
		return nil, llmerrors.ErrCacheMiss
	}

	c.touch(ctx, bestFingerprint)
	return &transport.Response{
		Content:    best.Content,
		Source:     transport.SourceCacheSemantic,
		Confidence: bestScore * best.Confidence,
	}, nil
}

// getTemplate answers a prompt from its template pattern: the most recent
// stored entry sharing the prompt's tag wins, at reduced confidence;
// without one, a canned degraded-service answer applies when a pattern
// matches at all.
func (c *Cache) getTemplate(ctx context.Context, prompt string) (*transport.Response, error) {
	tag := templateTag(prompt)
	if tag != "" {
		fingerprints, err := c.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return nil, fmt.Errorf("scan cache index: %w", err)
		}

		var best *entry
		var bestFingerprint string
		for _, fp := range fingerprints {
			e, err := c.loadEntry(ctx, fp)
			if errors.Is(err, llmerrors.ErrCacheMiss) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if e.Template == tag && (best == nil || e.StoredAtMs > best.StoredAtMs) {
				best, bestFingerprint = e, fp
			}
		}

		if best != nil {
			c.touch(ctx, bestFingerprint)
			return &transport.Response{
				Content:    best.Content,
				Source:     transport.SourceCacheTemplate,
				Confidence: best.Confidence * templateConfidence,
			}, nil
		}
	}

	if resp, ok := templateResponse(prompt); ok {
		return resp, nil
	}
	return nil, llmerrors.ErrCacheMiss
}

// loadEntry fetches and decodes one entry, pruning index leftovers for
// expired entries.
func (c *Cache) loadEntry(ctx context.Context, fingerprint string) (*entry, error) {
	data, err := c.client.Get(ctx, entryKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		c.prune(ctx, fingerprint)
		return nil, llmerrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load cache entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupted entry: drop it and report a miss.
		c.prune(ctx, fingerprint)
		return nil, llmerrors.ErrCacheMiss
	}
	return &e, nil
}

// touch refreshes the last-access score for LRU ordering.
func (c *Cache) touch(ctx context.Context, fingerprint string) {
	if err := c.client.ZAdd(ctx, accessKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: fingerprint,
	}).Err(); err != nil {
		c.logger.Warn("failed to update cache access time", "error", err)
	}
}

// prune removes index leftovers for an entry that no longer exists.
func (c *Cache) prune(ctx context.Context, fingerprint string) {
	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, indexKey, fingerprint)
	pipe.ZRem(ctx, accessKey, fingerprint)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("failed to prune cache index", "error", err)
	}
}

// evictOverCapacity removes least-recently-used entries until the live
// count is within capacity.
func (c *Cache) evictOverCapacity(ctx context.Context) error {
	if c.capacity <= 0 {
		return nil
	}

	count, err := c.client.ZCard(ctx, accessKey).Result()
	if err != nil {
		return fmt.Errorf("count cache entries: %w", err)
	}

	for count > int64(c.capacity) {
		oldest, err := c.client.ZRange(ctx, accessKey, 0, 0).Result()
		if err != nil {
			return fmt.Errorf("find eviction candidate: %w", err)
		}
		if len(oldest) == 0 {
			return nil
		}
		fp := oldest[0]

		pipe := c.client.TxPipeline()
		pipe.Del(ctx, entryKeyPrefix+fp)
		pipe.SRem(ctx, indexKey, fp)
		pipe.ZRem(ctx, accessKey, fp)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("evict cache entry: %w", err)
		}
		c.stats.Evictions.Add(1)
		c.logger.Debug("evicted least recently used cache entry", "fingerprint", fp)
		count--
	}
	return nil
}
