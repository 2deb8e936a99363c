package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
	"github.com/onlyshah/fashion-search/internal/resilience"
)

// ElasticSource reads search candidates from an Elasticsearch index. Filter
// fields are pushed down as bool filter clauses; relevance scoring stays
// in-process, so queries here never sort by _score.
type ElasticSource struct {
	es       *elasticsearch.Client
	cb       *gobreaker.CircuitBreaker
	cfg      config.ElasticsearchConfig
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewElasticSource(cfg config.ElasticsearchConfig, searchCfg config.SearchConfig, logger *zap.Logger) (*ElasticSource, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned status: %s", res.Status())
	}

	cb := resilience.NewCircuitBreaker("catalog-elasticsearch", searchCfg.CircuitBreaker, logger)

	logger.Info("elasticsearch catalog source connected", zap.Strings("addresses", cfg.Addresses))

	return &ElasticSource{
		es:  es,
		cb:  cb,
		cfg: cfg,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: searchCfg.Retry.MaxAttempts,
			InitialWait: searchCfg.Retry.InitialWait,
			MaxWait:     searchCfg.Retry.MaxWait,
			Multiplier:  searchCfg.Retry.Multiplier,
		},
		logger: logger,
	}, nil
}

func (s *ElasticSource) Fetch(ctx context.Context) ([]models.Product, error) {
	return s.FetchFiltered(ctx, models.Filters{})
}

func (s *ElasticSource) FetchFiltered(ctx context.Context, filters models.Filters) ([]models.Product, error) {
	ctx, span := observability.StartSpan(ctx, "catalog.es_fetch",
		attribute.String("es.index", s.cfg.Index),
	)
	defer span.End()

	start := time.Now()
	query := buildFilterQuery(filters, s.cfg.MaxCandidates)

	cbResult, err := s.cb.Execute(func() (any, error) {
		var products []models.Product
		retryErr := resilience.Retry(ctx, s.retryCfg, func() error {
			var execErr error
			products, execErr = s.executeFetch(ctx, query)
			return execErr
		})
		return products, retryErr
	})

	duration := time.Since(start)
	if err != nil {
		observability.CatalogFetchDuration.WithLabelValues("elasticsearch", "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("es catalog fetch: %w", err)
	}
	observability.CatalogFetchDuration.WithLabelValues("elasticsearch", "success").Observe(duration.Seconds())

	products, _ := cbResult.([]models.Product)
	return products, nil
}

func (s *ElasticSource) executeFetch(ctx context.Context, query map[string]any) ([]models.Product, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshaling es query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.cfg.Index),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithTimeout(s.cfg.RequestTimeout),
		s.es.Search.WithTrackTotalHits(false),
	)
	if err != nil {
		return nil, fmt.Errorf("executing es search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es search error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("decoding es response: %w", err)
	}

	products := make([]models.Product, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		var p models.Product
		if err := json.Unmarshal(h.Source, &p); err != nil {
			s.logger.Warn("skipping malformed product document",
				zap.String("doc_id", h.ID),
				zap.Error(err),
			)
			continue
		}
		if p.ID == "" {
			p.ID = h.ID
		}
		products = append(products, p)
	}
	return products, nil
}

// buildFilterQuery translates the exact-match parts of a filter set into bool
// filter clauses. Substring fields (brand) and sale-price comparison cannot
// be expressed as cheap term filters, so they are left for the in-process
// predicate to settle.
func buildFilterQuery(filters models.Filters, size int) map[string]any {
	var clauses []map[string]any

	if filters.Category != "" {
		clauses = append(clauses, map[string]any{
			"term": map[string]any{"category": filters.Category},
		})
	}
	if filters.Subcategory != "" {
		clauses = append(clauses, map[string]any{
			"term": map[string]any{"subcategory": filters.Subcategory},
		})
	}
	if filters.MinPrice != nil || filters.MaxPrice != nil {
		rangeBody := map[string]any{}
		if filters.MinPrice != nil {
			rangeBody["gte"] = *filters.MinPrice
		}
		if filters.MaxPrice != nil {
			rangeBody["lte"] = *filters.MaxPrice
		}
		clauses = append(clauses, map[string]any{
			"range": map[string]any{"price": rangeBody},
		})
	}
	if filters.MinRating != nil {
		clauses = append(clauses, map[string]any{
			"range": map[string]any{"rating_average": map[string]any{"gte": *filters.MinRating}},
		})
	}
	if filters.InStock {
		clauses = append(clauses, map[string]any{
			"range": map[string]any{"inventory": map[string]any{"gt": 0}},
		})
	}
	if len(filters.Tags) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"tags": filters.Tags},
		})
	}
	if len(filters.Colors) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"colors": filters.Colors},
		})
	}
	if len(filters.Sizes) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"sizes": filters.Sizes},
		})
	}

	query := map[string]any{
		"size": size,
		"sort": []map[string]any{{"_doc": map[string]any{"order": "asc"}}},
	}
	if len(clauses) == 0 {
		query["query"] = map[string]any{"match_all": map[string]any{}}
	} else {
		query["query"] = map[string]any{
			"bool": map[string]any{"filter": clauses},
		}
	}
	return query
}

// BulkIndex writes product upserts/deletes from the sync pipeline.
func (s *ElasticSource) BulkIndex(ctx context.Context, events []models.ProductEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "catalog.es_bulk",
		attribute.Int("batch_size", len(events)),
	)
	defer span.End()

	var buf bytes.Buffer
	for i := range events {
		event := &events[i]
		action := "index"
		if event.Type == "DELETE" {
			action = "delete"
		}
		id := event.ProductID
		if id == "" && event.Product != nil {
			id = event.Product.ID
		}

		meta := map[string]any{
			action: map[string]any{
				"_index": s.cfg.Index,
				"_id":    id,
			},
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling bulk meta: %w", err)
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')

		if action == "index" {
			bodyLine, err := json.Marshal(event.Product)
			if err != nil {
				return fmt.Errorf("marshaling bulk body: %w", err)
			}
			buf.Write(bodyLine)
			buf.WriteByte('\n')
		}
	}

	res, err := s.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("executing bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s", result.ID, result.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk indexing had errors: %s", strings.Join(errMsgs, "; "))
	}

	return nil
}

func (s *ElasticSource) HealthCheck(ctx context.Context) error {
	res, err := s.es.Cluster.Health(
		s.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es health check: %w", err)
	}
	defer res.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if health.Status == "red" {
		return fmt.Errorf("es cluster status red")
	}
	return nil
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}
