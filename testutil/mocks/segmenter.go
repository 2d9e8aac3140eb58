// =============================================================================
// 🎭 MockSegmenter - 分割服务模拟实现
// =============================================================================
// 默认立即成功，返回由点提示决定的确定性掩码载荷（见 MaskPayload），
// 测试据此判断被应用的掩码对应哪一个点状态。
//
// 使用方法:
//
//	seg := mocks.NewMockSegmenter().WithGate()
//	call := seg.NextCall(t, time.Second)
//	call.Succeed(0.9)
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/sculptflow/llm/segment"
)

// MaskPayload 返回 Mock 为给定点提示生成的掩码载荷。
func MaskPayload(positive, negative [][2]float64) []byte {
	return []byte(fmt.Sprintf("mask+%v-%v", positive, negative))
}

// SegmentCall 一次被拦截的 Segment 调用
type SegmentCall struct {
	Request *segment.SegmentRequest
	reply   chan segmentReply
}

type segmentReply struct {
	resp *segment.SegmentResponse
	err  error
}

// Succeed 以确定性载荷放行调用
func (c *SegmentCall) Succeed(score float64) {
	c.reply <- segmentReply{resp: &segment.SegmentResponse{
		Provider: "mock",
		Masks:    []segment.Candidate{{Data: MaskPayload(c.Request.Positive, c.Request.Negative), Score: score}},
	}}
}

// Respond 以自定义响应放行调用
func (c *SegmentCall) Respond(resp *segment.SegmentResponse) {
	c.reply <- segmentReply{resp: resp}
}

// Fail 以错误放行调用
func (c *SegmentCall) Fail(err error) {
	c.reply <- segmentReply{err: err}
}

// MockSegmenter 是 segment.Provider 的模拟实现
type MockSegmenter struct {
	mu sync.Mutex

	err      error
	gated    bool
	calls    []*segment.SegmentRequest
	prepared int
	health   *segment.HealthStatus

	callCh chan *SegmentCall
}

// NewMockSegmenter 创建新的 MockSegmenter
func NewMockSegmenter() *MockSegmenter {
	return &MockSegmenter{
		callCh: make(chan *SegmentCall, 64),
		health: &segment.HealthStatus{Status: "ok", ModelLoaded: true, Device: "cpu"},
	}
}

// WithError 所有调用返回 err
func (m *MockSegmenter) WithError(err error) *MockSegmenter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithGate 每次调用阻塞，直到测试通过 NextCall 取出并放行
func (m *MockSegmenter) WithGate() *MockSegmenter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gated = true
	return m
}

// WithHealth 设置健康探针结果
func (m *MockSegmenter) WithHealth(h *segment.HealthStatus) *MockSegmenter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = h
	return m
}

func (m *MockSegmenter) Name() string { return "mock-segmenter" }

// Segment 实现 segment.Provider
func (m *MockSegmenter) Segment(ctx context.Context, req *segment.SegmentRequest) (*segment.SegmentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	gated, err := m.gated, m.err
	m.mu.Unlock()

	if !gated {
		if err != nil {
			return nil, err
		}
		return &segment.SegmentResponse{
			Provider: "mock",
			Masks:    []segment.Candidate{{Data: MaskPayload(req.Positive, req.Negative), Score: 0.9}},
		}, nil
	}

	call := &SegmentCall{Request: req, reply: make(chan segmentReply, 1)}
	m.callCh <- call
	select {
	case r := <-call.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PrepareImage 实现 segment.ImagePreparer
func (m *MockSegmenter) PrepareImage(_ context.Context, _ []byte) (*segment.PreparedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepared++
	return &segment.PreparedImage{}, nil
}

// Health 实现 segment.Provider
func (m *MockSegmenter) Health(context.Context) (*segment.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

// NextCall 取出下一个被闸门拦住的调用，超时则终止测试
func (m *MockSegmenter) NextCall(t testing.TB, timeout time.Duration) *SegmentCall {
	t.Helper()
	select {
	case c := <-m.callCh:
		return c
	case <-time.After(timeout):
		t.Fatalf("no segment call within %v", timeout)
		return nil
	}
}

// TryNextCall 非阻塞地取出被拦住的调用
func (m *MockSegmenter) TryNextCall() (*SegmentCall, bool) {
	select {
	case c := <-m.callCh:
		return c, true
	default:
		return nil, false
	}
}

// CallCount 返回 Segment 调用次数
func (m *MockSegmenter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls 返回所有请求的副本
func (m *MockSegmenter) Calls() []*segment.SegmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*segment.SegmentRequest(nil), m.calls...)
}

// PrepareCount 返回 PrepareImage 调用次数
func (m *MockSegmenter) PrepareCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepared
}
