// Package trending maintains per-query occurrence counters and the derived
// trending score consumed by the suggestion engine and the trending API.
package trending

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
)

const shardCount = 32

// Trending score weights over the rolling windows.
const (
	weight24h = 10.0
	weight7d  = 2.0
	weight30d = 0.5
)

// Tracker records query occurrences. Records are keyed on the lowercased,
// trimmed query; the first-seen casing is preserved in the record. Updates to
// one record are serialized by its shard lock so concurrent searches for the
// same query never lose increments.
//
// The window counters increment monotonically with no time-based eviction or
// record expiry. Stored profiles and the storefront were built against that
// behavior, so it is kept; see DESIGN.md.
type Tracker struct {
	shards [shardCount]trackerShard
	logger *zap.Logger
}

type trackerShard struct {
	mu      sync.RWMutex
	records map[string]*models.TrendingRecord
}

func NewTracker(logger *zap.Logger) *Tracker {
	t := &Tracker{logger: logger}
	for i := range t.shards {
		t.shards[i].records = make(map[string]*models.TrendingRecord)
	}
	return t
}

// RecordOccurrence increments all counters for the query and recomputes its
// trending score. Blank queries are ignored.
func (t *Tracker) RecordOccurrence(query string) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return
	}
	key := strings.ToLower(trimmed)
	shard := t.shardFor(key)

	shard.mu.Lock()
	rec, ok := shard.records[key]
	if !ok {
		rec = &models.TrendingRecord{Query: trimmed}
		shard.records[key] = rec
	}
	rec.Total++
	rec.Last24h++
	rec.Last7d++
	rec.Last30d++
	rec.TrendingScore = weight24h*float64(rec.Last24h) +
		weight7d*float64(rec.Last7d) +
		weight30d*float64(rec.Last30d)
	rec.LastUpdated = time.Now().UTC()
	shard.mu.Unlock()

	observability.TrendingUpdatesTotal.Inc()
}

// TopTrending returns up to limit records ordered by the requested window's
// counter, highest first. Ties break on trending score.
func (t *Tracker) TopTrending(limit int, window string) []models.TrendingRecord {
	if limit <= 0 {
		return nil
	}

	var all []models.TrendingRecord
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		for _, rec := range shard.records {
			all = append(all, *rec)
		}
		shard.mu.RUnlock()
	}

	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].WindowCount(window), all[j].WindowCount(window)
		if ci != cj {
			return ci > cj
		}
		return all[i].TrendingScore > all[j].TrendingScore
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Lookup returns a copy of the record for the query, if any.
func (t *Tracker) Lookup(query string) (models.TrendingRecord, bool) {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return models.TrendingRecord{}, false
	}
	shard := t.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	if rec, ok := shard.records[key]; ok {
		return *rec, true
	}
	return models.TrendingRecord{}, false
}

// CompletionsFor returns up to limit records whose stored query starts with
// the prefix (case-insensitive), ordered by lifetime count.
func (t *Tracker) CompletionsFor(prefix string, limit int) []models.TrendingRecord {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil
	}

	var matched []models.TrendingRecord
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		for key, rec := range shard.records {
			if strings.HasPrefix(key, prefix) {
				matched = append(matched, *rec)
			}
		}
		shard.mu.RUnlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Total > matched[j].Total
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// Snapshot copies every record, for persistence.
func (t *Tracker) Snapshot() []models.TrendingRecord {
	var all []models.TrendingRecord
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		for _, rec := range shard.records {
			all = append(all, *rec)
		}
		shard.mu.RUnlock()
	}
	return all
}

// Restore loads persisted records, replacing any existing entry for the same
// query. Used once at startup before traffic is admitted.
func (t *Tracker) Restore(records []models.TrendingRecord) {
	for _, rec := range records {
		key := strings.ToLower(strings.TrimSpace(rec.Query))
		if key == "" {
			continue
		}
		r := rec
		shard := t.shardFor(key)
		shard.mu.Lock()
		shard.records[key] = &r
		shard.mu.Unlock()
	}
	if len(records) > 0 && t.logger != nil {
		t.logger.Info("trending records restored", zap.Int("count", len(records)))
	}
}

func (t *Tracker) shardFor(key string) *trackerShard {
	return &t.shards[fnv32(key)%shardCount]
}

func fnv32(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
