package catalog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
)

// ResponseInvalidator drops cached search pages after catalog changes.
type ResponseInvalidator interface {
	InvalidateSearchResponses(ctx context.Context) error
}

// Syncer applies product change events to the in-memory replica immediately
// and, when an Elasticsearch backend is configured, buffers them for bulk
// indexing. Cache invalidation runs detached so event handling never blocks
// on Redis.
type Syncer struct {
	replica     *MemorySource
	es          *ElasticSource
	invalidator ResponseInvalidator
	esCfg       config.ElasticsearchConfig
	logger      *zap.Logger

	mu     sync.Mutex
	buffer []models.ProductEvent
	ticker *time.Ticker
	done   chan struct{}
}

func NewSyncer(replica *MemorySource, es *ElasticSource, invalidator ResponseInvalidator, esCfg config.ElasticsearchConfig, logger *zap.Logger) *Syncer {
	if esCfg.BulkFlushInterval <= 0 {
		esCfg.BulkFlushInterval = 5 * time.Second
	}
	s := &Syncer{
		replica:     replica,
		es:          es,
		invalidator: invalidator,
		esCfg:       esCfg,
		logger:      logger,
		buffer:      make([]models.ProductEvent, 0, esCfg.BulkSize),
		ticker:      time.NewTicker(esCfg.BulkFlushInterval),
		done:        make(chan struct{}),
	}

	go s.flushLoop()

	return s
}

// HandleEvent is the kafka consumer callback.
func (s *Syncer) HandleEvent(ctx context.Context, event *models.ProductEvent) error {
	s.replica.Apply(event)
	observability.CatalogSize.Set(float64(s.replica.Len()))

	if s.es != nil {
		s.mu.Lock()
		s.buffer = append(s.buffer, *event)
		shouldFlush := len(s.buffer) >= s.esCfg.BulkSize
		s.mu.Unlock()

		if shouldFlush {
			if err := s.flush(ctx); err != nil {
				s.logger.Error("flush on buffer full failed", zap.Error(err))
			}
		}
	}

	if s.invalidator != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.invalidator.InvalidateSearchResponses(cacheCtx); err != nil {
				s.logger.Warn("cache invalidation failed",
					zap.String("product_id", event.ProductID),
					zap.Error(err),
				)
			}
		}()
	}

	return nil
}

func (s *Syncer) flushLoop() {
	for {
		select {
		case <-s.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.flush(ctx); err != nil {
				s.logger.Error("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-s.done:
			return
		}
	}
}

func (s *Syncer) flush(ctx context.Context) error {
	if s.es == nil {
		return nil
	}

	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := make([]models.ProductEvent, len(s.buffer))
	copy(batch, s.buffer)
	s.buffer = s.buffer[:0]
	s.mu.Unlock()

	start := time.Now()
	if err := s.es.BulkIndex(ctx, batch); err != nil {
		// Requeue the failed batch ahead of anything that arrived meanwhile.
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.mu.Unlock()

		observability.SyncEventsTotal.WithLabelValues("bulk", "error").Inc()
		return err
	}

	observability.SyncEventsTotal.WithLabelValues("bulk", "success").Add(float64(len(batch)))
	s.logger.Info("bulk flush completed",
		zap.Int("count", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Syncer) Stop() error {
	s.ticker.Stop()
	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.flush(ctx)
}
