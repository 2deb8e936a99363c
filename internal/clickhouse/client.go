// Package clickhouse is the durable event log behind search analytics. Every
// write here is fire-and-forget from the caller's point of view; the search
// response path never waits on it.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
)

type Client struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{conn: conn, logger: logger}, nil
}

// WriteSearchEvent records one search occurrence.
func (c *Client) WriteSearchEvent(ctx context.Context, event *models.SearchEvent) error {
	start := time.Now()
	query := `
		INSERT INTO search_events (
			query, query_hash, user_id, result_count, duration_ms,
			sort_by, filtered, cache_hit, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := c.conn.Exec(ctx, query,
		event.Query,
		event.QueryHash,
		event.UserID,
		event.ResultCount,
		event.DurationMs,
		event.SortBy,
		event.Filtered,
		event.CacheHit,
		event.Timestamp,
		event.TraceID,
	)
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.CHQueryDuration.WithLabelValues("search_event", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("ch insert search event: %w", err)
	}
	return nil
}

// WriteInteractionEvent records one click/purchase correlation.
func (c *Client) WriteInteractionEvent(ctx context.Context, event *models.InteractionEvent) error {
	query := `
		INSERT INTO interaction_events (
			query, user_id, product_id, action, position, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	if err := c.conn.Exec(ctx, query,
		event.Query,
		event.UserID,
		event.ProductID,
		event.Action,
		event.Position,
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("ch insert interaction event: %w", err)
	}
	return nil
}

// WriteSearchPerformance records a slow-search row from the detector.
func (c *Client) WriteSearchPerformance(ctx context.Context, event *models.SearchEvent) error {
	query := `
		INSERT INTO search_performance (
			query_hash, duration_ms, result_count, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?)
	`
	if err := c.conn.Exec(ctx, query,
		event.QueryHash,
		event.DurationMs,
		event.ResultCount,
		event.Timestamp,
		event.TraceID,
	); err != nil {
		return fmt.Errorf("ch insert search performance: %w", err)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS search_events (
			query String,
			query_hash String,
			user_id String,
			result_count Int64,
			duration_ms Float64,
			sort_by String,
			filtered Bool,
			cache_hit Bool,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, query_hash)`,

		`CREATE TABLE IF NOT EXISTS interaction_events (
			query String,
			user_id String,
			product_id String,
			action String,
			position Int32,
			timestamp DateTime
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, user_id)`,

		`CREATE TABLE IF NOT EXISTS search_performance (
			query_hash String,
			duration_ms Float64,
			result_count Int64,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, query_hash)`,
	}

	for _, ddl := range tables {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	c.logger.Info("clickhouse tables ensured")
	return nil
}
