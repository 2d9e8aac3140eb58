package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/testutil"
	"github.com/BaSui01/sculptflow/testutil/fixtures"
	"github.com/BaSui01/sculptflow/testutil/mocks"
	"github.com/BaSui01/sculptflow/types"
)

const waitTimeout = 2 * time.Second

// newTestWorkspace 创建不错峰的工作区，测试结束时关闭
func newTestWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Stagger = 0
	return newTestWorkspaceWithConfig(t, cfg, opts...)
}

func newTestWorkspaceWithConfig(t *testing.T, cfg Config, opts ...Option) *Workspace {
	t.Helper()
	ws := New(cfg, zap.NewNop(), opts...)
	t.Cleanup(ws.Close)
	return ws
}

func loadImage(t *testing.T, ws *Workspace, width, height int) {
	t.Helper()
	require.NoError(t, ws.LoadImage(&types.SourceImage{Data: fixtures.PNG(width, height)}))
}

func pos(x, y float64) types.Point { return types.Point{X: x, Y: y, Kind: types.PointPositive} }
func neg(x, y float64) types.Point { return types.Point{X: x, Y: y, Kind: types.PointNegative} }

// waitMaskSettled 等待没有在途掩码请求
func waitMaskSettled(t *testing.T, ws *Workspace) {
	t.Helper()
	testutil.AssertEventuallyTrue(t, func() bool {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return !ws.masks.inFlight
	}, waitTimeout)
}

func waitStatus(t *testing.T, ws *Workspace, id string, want types.ObjectStatus) {
	t.Helper()
	testutil.AssertEventuallyEqual(t, want, func() any {
		obj, _ := ws.Object(id)
		return obj.Status
	}, waitTimeout)
}

// commitWithMask 添加一个点，等待掩码落定后提交
func commitWithMask(t *testing.T, ws *Workspace, p types.Point) string {
	t.Helper()
	require.NoError(t, ws.AddPoint(p))
	waitMaskSettled(t, ws)
	require.NotNil(t, ws.PendingMask())
	id, ok := ws.Commit()
	require.True(t, ok)
	return id
}

// =============================================================================
// 会话控制
// =============================================================================

func TestNew_InitialState(t *testing.T) {
	ws := newTestWorkspace(t)

	snap := ws.Snapshot()
	assert.Equal(t, ModeUpload, snap.Mode)
	assert.Nil(t, snap.Image)
	assert.Empty(t, snap.Points)
	assert.Empty(t, snap.Objects)
	assert.False(t, snap.Segmenting)
	assert.Empty(t, snap.Error)
}

func TestNew_ConfigDefaults(t *testing.T) {
	ws := New(Config{}, nil)
	defer ws.Close()

	assert.Equal(t, 50.0, ws.config.FallbackRadius)
	assert.Equal(t, types.FormatPointCloud, ws.config.Format)
	assert.Equal(t, 2, ws.config.MaxConcurrent)
	assert.Equal(t, DefaultPalette, ws.config.Palette)
}

func TestLoadImage_ReadsDimensions(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 800, 600)

	snap := ws.Snapshot()
	assert.Equal(t, ModeWorkspace, snap.Mode)
	require.NotNil(t, snap.Image)
	assert.Equal(t, 800, snap.Image.Width)
	assert.Equal(t, 600, snap.Image.Height)
	assert.Equal(t, "image/png", snap.Image.MIME)
}

func TestLoadImage_Rejects(t *testing.T) {
	ws := newTestWorkspace(t)

	err := ws.LoadImage(&types.SourceImage{})
	assert.True(t, types.IsCode(err, types.ErrNoImage))

	err = ws.LoadImage(&types.SourceImage{Data: []byte("not an image")})
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	err = ws.LoadImage(&types.SourceImage{Data: []byte("opaque"), Width: 10, Height: 10})
	assert.NoError(t, err, "declared dimensions skip decoding")
}

func TestLoadImage_ReplacesSessionWholesale(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 100, 100)

	commitWithMask(t, ws, pos(10, 10))
	require.NoError(t, ws.AddPoint(pos(20, 20)))
	ws.SetError("boom")

	loadImage(t, ws, 200, 100)

	snap := ws.Snapshot()
	assert.Empty(t, snap.Objects)
	assert.Empty(t, snap.Points)
	assert.Nil(t, snap.Mask)
	assert.Empty(t, snap.SelectedID)
	assert.Empty(t, snap.Error, "a successful load clears the global error")
	assert.Equal(t, 200, snap.Image.Width)

	// 新会话的颜色从头开始
	id := commitWithMask(t, ws, pos(10, 10))
	obj, _ := ws.Object(id)
	assert.Equal(t, DefaultPalette[0], obj.Color)
	assert.Equal(t, "Object 1", obj.Name)
}

func TestLoadImage_NilSwitchesToUploadMode(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 100, 100)
	id := commitWithMask(t, ws, pos(10, 10))

	require.NoError(t, ws.LoadImage(nil))

	snap := ws.Snapshot()
	assert.Equal(t, ModeUpload, snap.Mode)
	assert.NotNil(t, snap.Image)
	assert.Len(t, snap.Objects, 1)
	assert.Equal(t, id, snap.Objects[0].ID)

	err := ws.AddPoint(pos(1, 1))
	assert.True(t, types.IsCode(err, types.ErrNoImage), "points need workspace mode")
}

func TestReset(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 100, 100)
	commitWithMask(t, ws, pos(10, 10))
	ws.SetError("boom")

	ws.Reset()

	snap := ws.Snapshot()
	assert.Equal(t, ModeUpload, snap.Mode)
	assert.Nil(t, snap.Image)
	assert.Empty(t, snap.Objects)
	assert.Empty(t, snap.Error)
	_, ok := ws.Image()
	assert.False(t, ok)
}

func TestResetScene_KeepsImage(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 100, 100)
	commitWithMask(t, ws, pos(10, 10))
	commitWithMask(t, ws, pos(20, 20))
	require.NoError(t, ws.AddPoint(pos(30, 30)))

	ws.ResetScene()

	snap := ws.Snapshot()
	assert.Equal(t, ModeWorkspace, snap.Mode)
	require.NotNil(t, snap.Image)
	assert.Empty(t, snap.Objects)
	assert.Empty(t, snap.Points)
	assert.Empty(t, snap.SelectedID)

	id := commitWithMask(t, ws, pos(40, 40))
	obj, _ := ws.Object(id)
	assert.Equal(t, DefaultPalette[0], obj.Color, "palette counter restarts with the scene")
}

func TestSetError_ClearError(t *testing.T) {
	ws := newTestWorkspace(t)
	sub := ws.Events().Subscribe(8)

	ws.SetError("segmentation service down")
	assert.Equal(t, "segmentation service down", ws.Snapshot().Error)
	ws.SetError("segmentation service down")

	ws.ClearError()
	assert.Empty(t, ws.Snapshot().Error)

	ev, ok := testutil.WaitForChannel(sub.C, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, EventErrorChanged, ev.Type)
	ev, ok = testutil.WaitForChannel(sub.C, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, EventErrorChanged, ev.Type)
	assert.Empty(t, ev.Message)
	assert.Empty(t, sub.C, "repeating the same message is not a change")
}

func TestLoadImage_PrimesSegmenter(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	ws := newTestWorkspace(t, WithSegmenter(seg))
	loadImage(t, ws, 64, 64)

	testutil.AssertEventuallyEqual(t, 1, func() any { return seg.PrepareCount() }, waitTimeout)
}

func TestLoadImage_PrimingDisabled(t *testing.T) {
	seg := mocks.NewMockSegmenter()
	cfg := DefaultConfig()
	cfg.PrimeImage = false
	ws := newTestWorkspaceWithConfig(t, cfg, WithSegmenter(seg))
	loadImage(t, ws, 64, 64)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, seg.PrepareCount())
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	ws := newTestWorkspace(t)
	loadImage(t, ws, 100, 100)
	id := commitWithMask(t, ws, pos(10, 10))

	snap := ws.Snapshot()
	snap.Objects[0].Points[0].X = 99
	snap.Objects[0].Mask.Data[0] = 0

	obj, _ := ws.Object(id)
	assert.Equal(t, 10.0, obj.Points[0].X)
	assert.NotEqual(t, byte(0), obj.Mask.Data[0])
}
