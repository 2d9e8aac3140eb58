package workspace

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/sculptflow/internal/breaker"
	"github.com/BaSui01/sculptflow/internal/maskcache"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/testutil"
	"github.com/BaSui01/sculptflow/testutil/fixtures"
	"github.com/BaSui01/sculptflow/testutil/mocks"
	"github.com/BaSui01/sculptflow/types"
)

// payloadFor 返回 MockSegmenter 针对该点序列生成的掩码载荷
func payloadFor(points []types.Point) []byte {
	positive, negative := types.SplitPoints(points)
	return mocks.MaskPayload(positive, negative)
}

func TestMask_ServiceResult(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 100, 80)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	require.NoError(t, ws.AddPoint(neg(20, 20)))
	waitMaskSettled(t, ws)

	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, payloadFor(ws.Points()), mask.Data)
	assert.Equal(t, types.MaskFromService, mask.Source)
	assert.Equal(t, 0.9, mask.Score)
	assert.Equal(t, 100, mask.Width)
	assert.Equal(t, 80, mask.Height)

	for _, req := range seg.Calls() {
		assert.NotEmpty(t, req.Image, "the full image is sent with every request")
	}
	last := seg.Calls()[seg.CallCount()-1]
	assert.Equal(t, [][2]float64{{10, 10}}, last.Positive)
	assert.Equal(t, [][2]float64{{20, 20}}, last.Negative)
}

func TestMask_NaNPointRejectedWithoutRequests(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 100, 100)

	err := ws.AddPoint(pos(math.NaN(), 10))
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
	assert.Empty(t, ws.Points())
	assert.Zero(t, seg.CallCount())
}

// 点序列与自身比较不相等时，落定的结果仍然生效且不触发补发
func TestMask_UnequalSelfComparisonSettlesOnce(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	ws := New(DefaultConfig(), zap.NewNop(), WithSegmenter(seg))
	loadImage(t, ws, 100, 100)

	ws.mu.Lock()
	ws.pending.points = append(ws.pending.points, pos(math.NaN(), 10))
	ws.pointsEditedLocked()
	ws.requestMaskLocked()
	ws.mu.Unlock()

	waitMaskSettled(t, ws)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, seg.CallCount())
	assert.NotNil(t, ws.PendingMask())
	assert.False(t, ws.Segmenting())

	closed := make(chan struct{})
	go func() {
		ws.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(waitTimeout):
		t.Fatal("Close did not return")
	}
}

func TestMask_RapidAddsApplyOnlyLatestState(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithGate()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 200, 200)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	require.NoError(t, ws.AddPoint(pos(50, 50)))

	first := seg.NextCall(t, waitTimeout)
	assert.Len(t, first.Request.Positive, 1)
	assert.False(t, ws.Segmenting(), "the outstanding request is for a superseded state")
	_, extra := seg.TryNextCall()
	assert.False(t, extra, "at most one request in flight")

	first.Succeed(0.9)
	second := seg.NextCall(t, waitTimeout)
	assert.Nil(t, ws.PendingMask(), "the one-point result is never applied")
	assert.True(t, ws.Segmenting())
	assert.Len(t, second.Request.Positive, 2)

	second.Succeed(0.8)
	waitMaskSettled(t, ws)

	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, payloadFor([]types.Point{pos(10, 10), pos(50, 50)}), mask.Data)
	assert.Equal(t, 2, seg.CallCount())
	assert.False(t, ws.Segmenting())
}

func TestMask_OldSessionResultDiscarded(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithGate()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 200, 200)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	old := seg.NextCall(t, waitTimeout)

	// 新图像上的同一个点：请求内容相同，但属于新的累加器
	loadImage(t, ws, 200, 200)
	require.NoError(t, ws.AddPoint(pos(10, 10)))
	fresh := seg.NextCall(t, waitTimeout)

	fresh.Respond(&segment.SegmentResponse{Masks: []segment.Candidate{{Data: []byte("fresh"), Score: 0.7}}})
	waitMaskSettled(t, ws)
	old.Respond(&segment.SegmentResponse{Masks: []segment.Candidate{{Data: []byte("old"), Score: 0.99}}})

	time.Sleep(20 * time.Millisecond)
	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, []byte("fresh"), mask.Data)
}

func TestMask_SegmentingFlag(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithGate()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 100, 100)
	sub := ws.Events().Subscribe(64)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	call := seg.NextCall(t, waitTimeout)
	assert.True(t, ws.Segmenting())

	call.Succeed(0.9)
	waitMaskSettled(t, ws)
	assert.False(t, ws.Segmenting())

	var flips []string
	for len(sub.C) > 0 {
		ev := <-sub.C
		if ev.Type == EventSegmentingChanged {
			flips = append(flips, ev.Message)
		}
	}
	assert.Equal(t, []string{"true", "false"}, flips)
}

func TestMask_FallbackOnServiceFailure(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithError(
		types.NewError(types.ErrUpstreamError, "connection refused").WithRetryable(true))
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 800, 600)

	require.NoError(t, ws.AddPoint(pos(100, 100)))
	waitMaskSettled(t, ws)

	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, types.MaskFromFallback, mask.Source)
	assert.Equal(t, FallbackScore, mask.Score)

	g := fixtures.DecodeGray(t, mask.Data)
	assert.Equal(t, 800, g.Bounds().Dx())
	assert.Equal(t, 600, g.Bounds().Dy())
	assert.Equal(t, uint8(255), g.GrayAt(100, 100).Y)
	assert.Equal(t, uint8(255), g.GrayAt(140, 100).Y)
	assert.Equal(t, uint8(0), g.GrayAt(200, 200).Y)
	assert.Empty(t, ws.Snapshot().Error, "fallback is silent")
}

func TestMask_FallbackWithoutSegmenter(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(32, 32)))
	waitMaskSettled(t, ws)

	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, types.MaskFromFallback, mask.Source)
}

func TestMask_EmptyResponseFallsBack(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithGate()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(32, 32)))
	seg.NextCall(t, waitTimeout).Respond(&segment.SegmentResponse{})
	waitMaskSettled(t, ws)

	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, types.MaskFromFallback, mask.Source)
}

func TestMask_OpenBreakerSkipsService(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithError(
		types.NewError(types.ErrUpstreamError, "down").WithRetryable(true))
	cb := breaker.New(&breaker.Config{Threshold: 1, ResetTimeout: time.Hour}, nil)
	ws := newTestWorkspace(t, WithSegmenter(seg), WithBreaker(cb))
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	waitMaskSettled(t, ws)
	require.Equal(t, breaker.StateOpen, cb.State())

	require.NoError(t, ws.AddPoint(pos(20, 20)))
	waitMaskSettled(t, ws)

	assert.Equal(t, 1, seg.CallCount(), "open breaker goes straight to fallback")
	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, types.MaskFromFallback, mask.Source)
}

func TestMask_CacheHit(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	cache := maskcache.NewMemoryCache(time.Minute, 16)
	ws := newTestWorkspace(t, WithSegmenter(seg), WithMaskCache(cache))
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	waitMaskSettled(t, ws)
	require.Equal(t, 1, seg.CallCount())
	assert.Equal(t, 1, cache.Len())

	require.True(t, ws.ClearPoints())
	require.NoError(t, ws.AddPoint(pos(10, 10)))
	waitMaskSettled(t, ws)

	assert.Equal(t, 1, seg.CallCount(), "second identical request is served from cache")
	mask := ws.PendingMask()
	require.NotNil(t, mask)
	assert.Equal(t, payloadFor([]types.Point{pos(10, 10)}), mask.Data)
}

func TestMask_FallbackNotCached(t *testing.T) {
	cache := maskcache.NewMemoryCache(time.Minute, 16)
	ws := newTestWorkspace(t, WithMaskCache(cache))
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	waitMaskSettled(t, ws)
	assert.Zero(t, cache.Len())
}

func TestMask_CommitDuringFlightDiscardsResult(t *testing.T) {
	seg := mocks.NewMockSegmenter().WithGate()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	call := seg.NextCall(t, waitTimeout)

	id, ok := ws.Commit()
	require.True(t, ok)
	call.Succeed(0.9)
	waitMaskSettled(t, ws)

	assert.Nil(t, ws.PendingMask())
	obj, _ := ws.Object(id)
	assert.Nil(t, obj.Mask, "the object keeps the mask it was committed with")
	assert.Equal(t, 1, seg.CallCount())
}

func TestMask_RemoveToEmptyClearsImmediately(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 64, 64)

	require.NoError(t, ws.AddPoint(pos(10, 10)))
	waitMaskSettled(t, ws)
	require.NotNil(t, ws.PendingMask())

	require.True(t, ws.RemoveLastPoint())
	assert.Nil(t, ws.PendingMask())
	assert.Equal(t, 1, seg.CallCount(), "no request for the empty state")
	assert.False(t, ws.RemoveLastPoint())
}

// =============================================================================
// 属性测试：无论结果以何种顺序与时机到达，最终掩码都对应最终点序列
// =============================================================================

func TestProperty_FinalMaskMatchesFinalPrompts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seg := mocks.NewMockSegmenter().WithGate()
		ws := New(DefaultConfig(), nil, WithSegmenter(seg))
		defer ws.Close()
		require.NoError(rt, ws.LoadImage(&types.SourceImage{Data: []byte("img"), Width: 32, Height: 32}))

		ops := rapid.SliceOfN(rapid.IntRange(0, 4), 1, 30).Draw(rt, "ops")
		for i, op := range ops {
			switch op {
			case 0, 1:
				p := types.Point{
					X:    float64(rapid.IntRange(0, 31).Draw(rt, "x")),
					Y:    float64(rapid.IntRange(0, 31).Draw(rt, "y")),
					Kind: rapid.SampledFrom([]types.PointKind{types.PointPositive, types.PointNegative}).Draw(rt, "kind"),
				}
				require.NoError(rt, ws.AddPoint(p))
			case 2:
				ws.RemoveLastPoint()
			case 3:
				if rapid.IntRange(0, 3).Draw(rt, "clear") == 0 {
					ws.ClearPoints()
				}
			case 4:
				if call, ok := seg.TryNextCall(); ok {
					call.Succeed(float64(i))
				}
			}
		}

		// 放行剩余请求直到静止
		settled := testutil.WaitFor(func() bool {
			if call, ok := seg.TryNextCall(); ok {
				call.Succeed(0.5)
				return false
			}
			ws.mu.Lock()
			defer ws.mu.Unlock()
			return !ws.masks.inFlight
		}, 5*time.Second)
		require.True(rt, settled, "mask coordination did not settle")

		points := ws.Points()
		mask := ws.PendingMask()
		if len(points) == 0 {
			assert.Nil(rt, mask)
			return
		}
		require.NotNil(rt, mask)
		assert.Equal(rt, payloadFor(points), mask.Data)
		assert.False(rt, ws.Segmenting())
	})
}
