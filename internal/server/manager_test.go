package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func testConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func get(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "api", cfg.Name)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Zero(t, cfg.WriteTimeout, "event streams are long-lived")
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

// --- Manager ---

func TestNewManager(t *testing.T) {
	m := NewManager(http.NewServeMux(), Config{Addr: ":9999"}, nil)

	require.NotNil(t, m)
	assert.True(t, m.IsRunning())
	assert.Equal(t, "api", m.Name())
	assert.Equal(t, ":9999", m.Addr())
	assert.Equal(t, ":9999", m.ListenAddr(), "not started yet")
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(okHandler(), testConfig("api"), zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.NotEqual(t, "127.0.0.1:0", m.ListenAddr())
	assert.Equal(t, "ok", get(t, m.ListenAddr()))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(okHandler(), testConfig("api"), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(okHandler(), testConfig("api"), zap.NewNop())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager(okHandler(), testConfig("api"), zap.NewNop())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cfg := testConfig("api")
	cfg.Addr = ln.Addr().String()
	m := NewManager(okHandler(), cfg, zap.NewNop())

	err = m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

// --- Group ---

func TestGroup_RunUntilCancelled(t *testing.T) {
	api := NewManager(okHandler(), testConfig("api"), zap.NewNop())
	metrics := NewManager(okHandler(), testConfig("metrics"), zap.NewNop())
	g := NewGroup(zap.NewNop(), api, nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool {
		return api.ListenAddr() != "127.0.0.1:0" && metrics.ListenAddr() != "127.0.0.1:0"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ok", get(t, api.ListenAddr()))
	assert.Equal(t, "ok", get(t, metrics.ListenAddr()))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("group did not stop")
	}
	assert.False(t, api.IsRunning())
	assert.False(t, metrics.IsRunning())
}

func TestGroup_StartFailureStopsStarted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	api := NewManager(okHandler(), testConfig("api"), zap.NewNop())
	cfg := testConfig("metrics")
	cfg.Addr = ln.Addr().String()
	metrics := NewManager(okHandler(), cfg, zap.NewNop())

	err = NewGroup(zap.NewNop(), api, metrics).Run(context.Background())
	require.Error(t, err)
	assert.False(t, api.IsRunning(), "already started servers are shut down")
}
