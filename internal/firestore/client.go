// Package firestore persists user search profiles and trending records as
// periodic snapshots. The in-memory stores stay authoritative at runtime;
// snapshots only survive restarts.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
)

const (
	profilesCollection = "search_profiles"
	trendingCollection = "trending_queries"
)

type Client struct {
	client *firestore.Client
	cfg    config.FirestoreConfig
	logger *zap.Logger
}

func NewClient(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("firestore client connected", zap.String("project", cfg.ProjectID))

	return &Client{client: client, cfg: cfg, logger: logger}, nil
}

// SaveProfiles upserts one document per user profile.
func (c *Client) SaveProfiles(ctx context.Context, profiles []models.UserProfile) error {
	ctx, span := observability.StartSpan(ctx, "firestore.save_profiles",
		attribute.Int("count", len(profiles)),
	)
	defer span.End()

	bw := c.client.BulkWriter(ctx)
	for i := range profiles {
		doc := c.client.Collection(profilesCollection).Doc(profiles[i].UserID)
		if _, err := bw.Set(doc, profiles[i]); err != nil {
			bw.End()
			return fmt.Errorf("queueing profile %s: %w", profiles[i].UserID, err)
		}
	}
	bw.End()
	return nil
}

// LoadProfiles reads every persisted profile.
func (c *Client) LoadProfiles(ctx context.Context) ([]models.UserProfile, error) {
	ctx, span := observability.StartSpan(ctx, "firestore.load_profiles")
	defer span.End()

	iter := c.client.Collection(profilesCollection).Documents(ctx)
	defer iter.Stop()

	var profiles []models.UserProfile
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating profiles: %w", err)
		}
		var p models.UserProfile
		if err := doc.DataTo(&p); err != nil {
			c.logger.Warn("skipping malformed profile document",
				zap.String("doc_id", doc.Ref.ID),
				zap.Error(err),
			)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// SaveTrending upserts one document per trending record, keyed on the
// normalized query.
func (c *Client) SaveTrending(ctx context.Context, records []models.TrendingRecord) error {
	ctx, span := observability.StartSpan(ctx, "firestore.save_trending",
		attribute.Int("count", len(records)),
	)
	defer span.End()

	bw := c.client.BulkWriter(ctx)
	for i := range records {
		doc := c.client.Collection(trendingCollection).Doc(observability.HashQuery(records[i].Query))
		if _, err := bw.Set(doc, records[i]); err != nil {
			bw.End()
			return fmt.Errorf("queueing trending record %q: %w", records[i].Query, err)
		}
	}
	bw.End()
	return nil
}

// LoadTrending reads every persisted trending record.
func (c *Client) LoadTrending(ctx context.Context) ([]models.TrendingRecord, error) {
	ctx, span := observability.StartSpan(ctx, "firestore.load_trending")
	defer span.End()

	iter := c.client.Collection(trendingCollection).Documents(ctx)
	defer iter.Stop()

	var records []models.TrendingRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating trending records: %w", err)
		}
		var r models.TrendingRecord
		if err := doc.DataTo(&r); err != nil {
			c.logger.Warn("skipping malformed trending document",
				zap.String("doc_id", doc.Ref.ID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	iter := c.client.Collection(profilesCollection).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return fmt.Errorf("firestore health check: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
