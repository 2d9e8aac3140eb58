package workspace

import (
	"time"

	"github.com/BaSui01/sculptflow/types"
)

// UpdateTransform 合并部分变换到对象记录，任何状态下都允许
func (w *Workspace) UpdateTransform(id string, patch types.TransformPatch) (types.Transform, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return types.Transform{}, false
	}
	if patch.Empty() {
		return obj.Transform, true
	}
	w.writeTransformLocked(obj, patch.Apply(obj.Transform))
	return obj.Transform, true
}

// ApplyDelta 把交互操作的增量直接写入对象记录（最后写入者胜出），
// 返回写入后的位姿。
func (w *Workspace) ApplyDelta(id string, delta types.TransformDelta) (types.Transform, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return types.Transform{}, false
	}
	w.writeTransformLocked(obj, delta.Apply(obj.Transform))
	return obj.Transform, true
}

func (w *Workspace) writeTransformLocked(obj *SceneObject, t types.Transform) {
	if t == obj.Transform {
		return
	}
	obj.Transform = t
	obj.UpdatedAt = time.Now()
	w.emitLocked(Event{Type: EventTransformChanged, ObjectID: obj.ID, Status: obj.Status})
}

// Pose 从对象记录读取位姿，3D 视图没有独立的位姿副本
func (w *Workspace) Pose(id string) (types.Transform, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return types.Transform{}, false
	}
	return obj.Transform, true
}

// Gizmo 变换手柄附着的对象及其位姿
type Gizmo struct {
	ObjectID  string          `json:"object_id"`
	Transform types.Transform `json:"transform"`
	Visible   bool            `json:"visible"`
}

// Gizmo 返回选中对象的手柄状态，没有选中对象时 ok 为 false
func (w *Workspace) Gizmo() (Gizmo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[w.selected]
	if !ok {
		return Gizmo{}, false
	}
	return Gizmo{ObjectID: obj.ID, Transform: obj.Transform, Visible: obj.Visible}, true
}
