package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
)

// RedisCache fronts the search path: full response bodies on a short TTL, a
// longer-lived stale copy used when the catalog is unavailable, and cached
// suggestion and trending payloads.
type RedisCache struct {
	client redis.UniversalClient
	ttl    config.CacheTTLConfig
	logger *zap.Logger
}

func NewRedisCache(cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis cache connected", zap.Strings("addresses", cfg.Addresses))

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

func (rc *RedisCache) GetSearchResponse(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return rc.getResponse(ctx, searchKey(req))
}

func (rc *RedisCache) SetSearchResponse(ctx context.Context, req *models.SearchRequest, resp *models.SearchResponse) error {
	if err := rc.setResponse(ctx, searchKey(req), resp, rc.ttl.SearchResults); err != nil {
		return err
	}
	return rc.setResponse(ctx, staleKey(req), resp, rc.ttl.StaleFallback)
}

// GetStaleResponse returns the long-TTL copy kept for catalog outages.
func (rc *RedisCache) GetStaleResponse(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return rc.getResponse(ctx, staleKey(req))
}

func (rc *RedisCache) GetSuggestions(ctx context.Context, prefix string, limit int) ([]models.Suggestion, error) {
	key := fmt.Sprintf("sg:%d:%s", limit, hashString(prefix))
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get suggestions: %w", err)
	}
	observability.CacheHits.Inc()
	var out []models.Suggestion
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("cache unmarshal suggestions: %w", err)
	}
	return out, nil
}

func (rc *RedisCache) SetSuggestions(ctx context.Context, prefix string, limit int, suggestions []models.Suggestion) error {
	key := fmt.Sprintf("sg:%d:%s", limit, hashString(prefix))
	data, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("cache marshal suggestions: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.Suggestions).Err()
}

func (rc *RedisCache) GetTrending(ctx context.Context, window string, limit int) ([]models.TrendingEntry, error) {
	key := fmt.Sprintf("trend:%s:%d", window, limit)
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get trending: %w", err)
	}
	observability.CacheHits.Inc()
	var out []models.TrendingEntry
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("cache unmarshal trending: %w", err)
	}
	return out, nil
}

func (rc *RedisCache) SetTrending(ctx context.Context, window string, limit int, entries []models.TrendingEntry) error {
	key := fmt.Sprintf("trend:%s:%d", window, limit)
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache marshal trending: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.Trending).Err()
}

// InvalidateSearchResponses drops cached search pages after catalog changes.
func (rc *RedisCache) InvalidateSearchResponses(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, "sr:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := rc.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) getResponse(ctx context.Context, key string) (*models.SearchResponse, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	observability.CacheHits.Inc()
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("cache unmarshal: %w", err)
	}
	return &resp, nil
}

func (rc *RedisCache) setResponse(ctx context.Context, key string, resp *models.SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return rc.client.Set(ctx, key, data, ttl).Err()
}

func searchKey(req *models.SearchRequest) string {
	return fmt.Sprintf("sr:%s", hashRequest(req))
}

func staleKey(req *models.SearchRequest) string {
	return fmt.Sprintf("sr:stale:%s", hashRequest(req))
}

// hashRequest keys on everything that changes the response body. Filters are
// serialized as JSON so pointer-valued bounds hash by value, and the user and
// request IDs stay out so identical searches share one entry.
func hashRequest(req *models.SearchRequest) string {
	filters, _ := json.Marshal(req.Filters)
	raw := fmt.Sprintf("%s:%s:%d:%d:%s:%s", req.Query, filters, req.Page, req.PageSize, req.SortBy, req.SortOrder)
	return hashString(raw)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
