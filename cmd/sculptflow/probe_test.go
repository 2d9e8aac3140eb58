package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/internal/retry"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/llm/threed"
)

func healthServer(t *testing.T, body func(n int32) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, payload := body(calls.Add(1))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastRetryer(maxRetries int) retry.Retryer {
	return retry.NewBackoffRetryer(&retry.Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
		Retryable:    func(error) bool { return true },
	}, zap.NewNop())
}

func TestProbeServices_Healthy(t *testing.T) {
	segSrv, _ := healthServer(t, func(int32) (int, string) {
		return http.StatusOK, `{"status":"ok","model_loaded":true,"device":"cuda","version":"3.0"}`
	})
	genSrv, _ := healthServer(t, func(int32) (int, string) {
		return http.StatusOK, `{"status":"ok","model_loaded":true,"gpu":"A100","cuda_available":true}`
	})

	results := probeServices(context.Background(),
		segment.NewSAM3Provider(segment.SAM3Config{BaseURL: segSrv.URL}),
		threed.NewSAM3DProvider(threed.SAM3DConfig{BaseURL: genSrv.URL}),
		fastRetryer(0))

	require.Len(t, results, 2)
	assert.Equal(t, "sam3", results[0].Service)
	assert.Equal(t, segSrv.URL, results[0].URL)
	assert.NoError(t, results[0].Err)
	assert.Contains(t, results[0].Detail, "device=cuda")
	assert.Equal(t, "sam3d", results[1].Service)
	assert.NoError(t, results[1].Err)
	assert.Contains(t, results[1].Detail, "gpu=A100")
}

func TestProbeServices_RetriesUntilModelLoaded(t *testing.T) {
	segSrv, segCalls := healthServer(t, func(n int32) (int, string) {
		if n < 3 {
			return http.StatusOK, `{"status":"loading","model_loaded":false,"device":"cuda"}`
		}
		return http.StatusOK, `{"status":"ok","model_loaded":true,"device":"cuda"}`
	})
	genSrv, genCalls := healthServer(t, func(int32) (int, string) {
		return http.StatusServiceUnavailable, `down`
	})

	results := probeServices(context.Background(),
		segment.NewSAM3Provider(segment.SAM3Config{BaseURL: segSrv.URL}),
		threed.NewSAM3DProvider(threed.SAM3DConfig{BaseURL: genSrv.URL}),
		fastRetryer(3))

	assert.NoError(t, results[0].Err)
	assert.Equal(t, int32(3), segCalls.Load())
	assert.Error(t, results[1].Err)
	assert.Equal(t, int32(4), genCalls.Load(), "one attempt plus three retries")
}

func TestNewProbeRetryer_StopsOnCancel(t *testing.T) {
	r := newProbeRetryer(5, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWriteProbeTable(t *testing.T) {
	var sb strings.Builder
	writeProbeTable(&sb, []probeResult{
		{Service: "sam3", URL: "http://seg", Detail: "device=cuda", Latency: 12 * time.Millisecond},
		{Service: "sam3d", URL: "http://gen", Err: assert.AnError},
	})

	out := sb.String()
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "device=cuda")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, assert.AnError.Error())
}
