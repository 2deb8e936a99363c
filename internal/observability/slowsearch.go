package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/models"
)

// PerformanceWriter receives slow-search rows; backed by ClickHouse in
// production, nil-able in tests.
type PerformanceWriter interface {
	WriteSearchPerformance(ctx context.Context, event *models.SearchEvent) error
}

// SlowSearchDetector logs searches that exceed the warning threshold and
// ships a performance row to the analytics sink off the response path.
type SlowSearchDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
	writer            PerformanceWriter
}

func NewSlowSearchDetector(warning, critical time.Duration, logger *zap.Logger, writer PerformanceWriter) *SlowSearchDetector {
	return &SlowSearchDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
		writer:            writer,
	}
}

// Intercept inspects one finished search. Fast searches return immediately
// with no work.
func (d *SlowSearchDetector) Intercept(ctx context.Context, query string, duration time.Duration, resultCount int64) {
	if duration <= d.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := d.classifySeverity(duration)
	SlowSearchCounter.WithLabelValues(severity).Inc()

	d.logger.Warn("slow search detected",
		zap.String("trace_id", traceID),
		zap.String("query_hash", HashQuery(query)),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.Int64("result_count", resultCount),
		zap.String("severity", severity),
	)

	if d.writer == nil {
		return
	}
	event := &models.SearchEvent{
		QueryHash:   HashQuery(query),
		DurationMs:  float64(duration.Milliseconds()),
		ResultCount: resultCount,
		Timestamp:   time.Now().UTC(),
		TraceID:     traceID,
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.writer.WriteSearchPerformance(writeCtx, event); err != nil {
			d.logger.Error("failed to write slow search row",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		}
	}()
}

func (d *SlowSearchDetector) classifySeverity(dur time.Duration) string {
	if dur > d.criticalThreshold {
		return "critical"
	}
	if dur > d.warningThreshold {
		return "warning"
	}
	return "normal"
}

// HashQuery produces a short stable hash so raw queries stay out of logs.
func HashQuery(q string) string {
	h := uint64(0)
	for _, c := range q {
		h = h*31 + uint64(c)
	}
	return fmt.Sprintf("%016x", h)
}
