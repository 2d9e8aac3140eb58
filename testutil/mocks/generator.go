// =============================================================================
// 🧊 MockGenerator - 3D 生成服务模拟实现
// =============================================================================
// 默认立即成功，返回以掩码为后缀的确定性资产载荷。
//
// 使用方法:
//
//	gen := mocks.NewMockGenerator().WithGate()
//	call := gen.NextCall(t, time.Second)
//	call.Succeed([]byte("ply"))
// =============================================================================
package mocks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
)

// GenerateCall 一次被拦截的 Generate 调用
type GenerateCall struct {
	Request *threed.GenerateRequest
	reply   chan generateReply
}

type generateReply struct {
	resp *threed.GenerateResponse
	err  error
}

// Succeed 以给定载荷放行调用
func (c *GenerateCall) Succeed(data []byte) {
	format := c.Request.Format
	if format == "" {
		format = types.FormatPointCloud
	}
	c.reply <- generateReply{resp: &threed.GenerateResponse{
		Provider:  "mock",
		Asset:     types.NewAsset(data, format),
		CreatedAt: time.Now(),
	}}
}

// Fail 以错误放行调用
func (c *GenerateCall) Fail(err error) {
	c.reply <- generateReply{err: err}
}

// MockGenerator 是 threed.ThreeDProvider 的模拟实现
type MockGenerator struct {
	mu sync.Mutex

	err    error
	gated  bool
	calls  []*threed.GenerateRequest
	health *threed.HealthStatus
	active int
	peak   int

	callCh chan *GenerateCall
}

// NewMockGenerator 创建新的 MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		callCh: make(chan *GenerateCall, 64),
		health: &threed.HealthStatus{Status: "ok", ModelLoaded: true, GPU: "mock", CUDAAvailable: true},
	}
}

// WithError 所有调用返回 err
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithGate 每次调用阻塞，直到测试通过 NextCall 取出并放行
func (m *MockGenerator) WithGate() *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gated = true
	return m
}

func (m *MockGenerator) Name() string { return "mock-generator" }

// Generate 实现 threed.ThreeDProvider
func (m *MockGenerator) Generate(ctx context.Context, req *threed.GenerateRequest) (*threed.GenerateResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	gated, err := m.gated, m.err
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if !gated {
		if err != nil {
			return nil, err
		}
		format := req.Format
		if format == "" {
			format = types.FormatPointCloud
		}
		data := append([]byte("asset:"), req.Mask...)
		return &threed.GenerateResponse{Provider: "mock", Asset: types.NewAsset(data, format), CreatedAt: time.Now()}, nil
	}

	call := &GenerateCall{Request: req, reply: make(chan generateReply, 1)}
	m.callCh <- call
	select {
	case r := <-call.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Health 实现 threed.ThreeDProvider
func (m *MockGenerator) Health(context.Context) (*threed.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

// NextCall 取出下一个被闸门拦住的调用，超时则终止测试
func (m *MockGenerator) NextCall(t testing.TB, timeout time.Duration) *GenerateCall {
	t.Helper()
	select {
	case c := <-m.callCh:
		return c
	case <-time.After(timeout):
		t.Fatalf("no generate call within %v", timeout)
		return nil
	}
}

// CallCount 返回 Generate 调用次数
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls 返回所有请求的副本
func (m *MockGenerator) Calls() []*threed.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*threed.GenerateRequest(nil), m.calls...)
}

// PeakConcurrency 返回同时进行中的调用数峰值
func (m *MockGenerator) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}
