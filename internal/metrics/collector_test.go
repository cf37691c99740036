package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.storeQueriesTotal)
	assert.NotNil(t, collector.queryShapesTotal)
	assert.NotNil(t, collector.ingestedRowsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	collector.RecordHTTPRequest("POST", "/api/v1/evidence", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/api/v1/evidence", 503, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/evidence", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/evidence", "5xx")))
}

func TestCollector_ObserveStatement(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	collector.ObserveStatement("structured.category_date", "ok", 5*time.Millisecond)
	collector.ObserveStatement("structured.category_date", "ok", 7*time.Millisecond)
	collector.ObserveStatement("vector.query", "unavailable", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.storeQueriesTotal.WithLabelValues("structured.category_date", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeQueriesTotal.WithLabelValues("vector.query", "unavailable")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.storeQueryDuration))
}

func TestCollector_RetrievalAndIngest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	collector.RecordQueryShape("date")
	collector.RecordExtraction("failure")
	collector.RecordEvidence("vector_only", 20*time.Millisecond)
	collector.RecordIngestedRows("Food", 3)
	collector.RecordIngestedRows("Food", 2)
	collector.RecordIngestBatch("committed")
	collector.RecordLLMRequest("openai", "gpt-4o-mini", "success", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.queryShapesTotal.WithLabelValues("date")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.extractionsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.evidenceTotal.WithLabelValues("vector_only")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.ingestedRowsTotal.WithLabelValues("Food")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ingestBatchesTotal.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "success")))
}

func TestCollector_RecordCache(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	collector.RecordCacheHit("entities")
	collector.RecordCacheHit("entities")
	collector.RecordCacheMiss("entities")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("entities")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("entities")))
}

func TestCollector_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollectorWithRegisterer("healthgraph", reg, nil)
	collector.RecordIngestBatch("rejected")

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "healthgraph_ingest_batches_total")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusCode(tt.code))
	}
}
