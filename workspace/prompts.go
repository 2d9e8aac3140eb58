package workspace

import (
	"fmt"
	"slices"

	"github.com/BaSui01/sculptflow/types"
)

// pendingSelection 尚未提交的选择：有序点提示与最近一次落定的掩码
type pendingSelection struct {
	points []types.Point
	mask   *types.Mask
}

// AddPoint 追加点提示并在后台请求新掩码，不等待结果
func (w *Workspace) AddPoint(p types.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mode != ModeWorkspace || w.image == nil {
		return types.NewError(types.ErrNoImage, "no image loaded")
	}
	if p.X >= float64(w.image.Width) || p.Y >= float64(w.image.Height) {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("point (%g, %g) outside %dx%d image", p.X, p.Y, w.image.Width, w.image.Height))
	}

	before := w.segmentingLocked()
	w.pending.points = append(w.pending.points, p)
	w.pointsEditedLocked()
	w.requestMaskLocked()
	w.emitSegmentingLocked(before)
	return nil
}

// RemoveLastPoint 撤销最后一个点提示。点序列为空后立即清除掩码且不再请求。
func (w *Workspace) RemoveLastPoint() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.pending.points)
	if n == 0 {
		return false
	}

	before := w.segmentingLocked()
	w.pending.points = slices.Clip(w.pending.points[:n-1])
	w.pointsEditedLocked()
	if len(w.pending.points) == 0 {
		w.setPendingMaskLocked(nil)
	} else {
		w.requestMaskLocked()
	}
	w.emitSegmentingLocked(before)
	return true
}

// ClearPoints 清空点提示与掩码，进行中的请求不取消，其结果会被丢弃
func (w *Workspace) ClearPoints() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending.points) == 0 && w.pending.mask == nil {
		return false
	}
	before := w.segmentingLocked()
	w.pending.points = nil
	w.pointsEditedLocked()
	w.setPendingMaskLocked(nil)
	w.emitSegmentingLocked(before)
	return true
}

// Points 返回当前点提示序列的副本
func (w *Workspace) Points() []types.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return clonePoints(w.pending.points)
}

// PendingMask 返回当前待提交选择的掩码
func (w *Workspace) PendingMask() *types.Mask {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.mask.Clone()
}

func (w *Workspace) setPendingMaskLocked(m *types.Mask) {
	if w.pending.mask == nil && m == nil {
		return
	}
	w.pending.mask = m
	w.emitLocked(Event{Type: EventMaskChanged})
}

func clonePoints(points []types.Point) []types.Point {
	if len(points) == 0 {
		return []types.Point{}
	}
	return slices.Clone(points)
}
