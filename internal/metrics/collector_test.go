package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

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
	assert.NotNil(t, collector.maskResolutionsTotal)
	assert.NotNil(t, collector.generationsTotal)
	assert.NotNil(t, collector.objectsByStatus)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/workspace", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/workspace", 200, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/api/v1/image", 400, 5*time.Millisecond, 0, 64)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/workspace", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/image", "4xx")))
}

func TestCollector_RecordMaskResolution(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordMaskResolution("service")
	collector.RecordMaskResolution("fallback")
	collector.RecordMaskResolution("fallback")
	collector.RecordSegmentation("sam3", 200*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.maskResolutionsTotal.WithLabelValues("fallback")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.segmentDuration))
}

func TestCollector_RecordGeneration(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.GenerationStarted()
	collector.GenerationStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.generationsActive))

	collector.RecordGeneration("sam3d", "ready", 30*time.Second)
	collector.RecordGeneration("sam3d", "discarded", time.Second)

	assert.Equal(t, float64(0), testutil.ToFloat64(collector.generationsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.generationsTotal.WithLabelValues("sam3d", "ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.generationsTotal.WithLabelValues("sam3d", "discarded")))
}

func TestCollector_ObjectMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStatusTransition("selecting", "generating")
	collector.SetObjectCounts(map[string]int{"selecting": 2, "ready": 1})
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.objectsByStatus.WithLabelValues("selecting")))

	collector.SetObjectCounts(map[string]int{"ready": 3})
	assert.Equal(t, 1, testutil.CollectAndCount(collector.objectsByStatus), "stale status series are reset")
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.objectTransitions.WithLabelValues("selecting", "generating")))
}

func TestCollector_CacheAndBreaker(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("mask")
	collector.RecordCacheMiss("mask")
	collector.RecordCacheMiss("mask")
	collector.RecordBreakerState("sam3", 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheHits.WithLabelValues("mask")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("mask")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.breakerState.WithLabelValues("sam3")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {204, "2xx"}, {301, "3xx"}, {404, "4xx"}, {503, "5xx"}, {100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
