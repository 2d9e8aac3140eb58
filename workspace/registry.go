package workspace

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/types"
)

// SceneObject 场景对象。至少持有一个点提示；Asset 非空当且仅当 Status 为 Ready。
type SceneObject struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Color     string             `json:"color"`
	Points    []types.Point      `json:"points"`
	Mask      *types.Mask        `json:"mask,omitempty"`
	Asset     *types.Asset       `json:"asset,omitempty"`
	Status    types.ObjectStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	Visible   bool               `json:"visible"`
	Transform types.Transform    `json:"transform"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	// genToken 标识当前这一轮生成，旧轮次的结果被丢弃
	genToken uint64
}

func (o *SceneObject) clone() SceneObject {
	c := *o
	c.Points = clonePoints(o.Points)
	c.Mask = o.Mask.Clone()
	if o.Asset != nil {
		a := *o.Asset
		c.Asset = &a
	}
	return c
}

// Commit 把待提交选择固化为新对象（Selecting），清空累加器并选中该对象。
// 没有点提示时不做任何事。
func (w *Workspace) Commit() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending.points) == 0 {
		return "", false
	}

	now := time.Now()
	obj := &SceneObject{
		ID:        w.newID(),
		Name:      NameFor(w.created),
		Color:     ColorFor(w.config.Palette, w.created),
		Points:    w.pending.points,
		Mask:      w.pending.mask,
		Status:    types.StatusSelecting,
		Visible:   true,
		Transform: types.IdentityTransform(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.created++
	w.objects = append(w.objects, obj)
	w.index[obj.ID] = obj

	before := w.segmentingLocked()
	w.pending = pendingSelection{}
	w.syncCountsLocked()

	w.emitLocked(Event{Type: EventObjectAdded, ObjectID: obj.ID, Status: obj.Status})
	w.pointsEditedLocked()
	w.emitLocked(Event{Type: EventMaskChanged})
	w.emitSegmentingLocked(before)
	w.selectLocked(obj.ID)

	w.logger.Debug("object committed",
		zap.String("object_id", obj.ID),
		zap.Int("points", len(obj.Points)),
		zap.Bool("has_mask", obj.Mask != nil))
	return obj.ID, true
}

// Remove 删除对象；若该对象被选中则清除选中。进行中的生成结果将被丢弃。
func (w *Workspace) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return false
	}
	delete(w.index, id)
	for i, o := range w.objects {
		if o == obj {
			w.objects = append(w.objects[:i], w.objects[i+1:]...)
			break
		}
	}
	w.syncCountsLocked()
	w.emitLocked(Event{Type: EventObjectRemoved, ObjectID: id, Status: obj.Status})
	if w.selected == id {
		w.selectLocked("")
	}
	return true
}

// SetVisible 设置对象可见性
func (w *Workspace) SetVisible(id string, visible bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return false
	}
	if obj.Visible != visible {
		obj.Visible = visible
		obj.UpdatedAt = time.Now()
		w.emitLocked(Event{Type: EventObjectUpdated, ObjectID: id, Status: obj.Status})
	}
	return true
}

// Rename 修改对象显示名
func (w *Workspace) Rename(id, name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok || name == "" {
		return false
	}
	obj.Name = name
	obj.UpdatedAt = time.Now()
	w.emitLocked(Event{Type: EventObjectUpdated, ObjectID: id, Status: obj.Status})
	return true
}

// Select 选中对象，id 为空表示取消选中
func (w *Workspace) Select(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id != "" {
		if _, ok := w.index[id]; !ok {
			return false
		}
	}
	w.selectLocked(id)
	return true
}

func (w *Workspace) selectLocked(id string) {
	if w.selected == id {
		return
	}
	w.selected = id
	w.emitLocked(Event{Type: EventSelectionChanged, ObjectID: id})
}

// Selected 返回当前选中对象 ID
func (w *Workspace) Selected() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// UpdateMask 替换对象掩码，任何状态下都允许
func (w *Workspace) UpdateMask(id string, mask *types.Mask) bool {
	if mask == nil || len(mask.Data) == 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return false
	}
	m := mask.Clone()
	if m.Encoding == "" {
		m.Encoding = types.MaskEncodingPNG
	}
	if m.Source == "" {
		m.Source = types.MaskFromUser
	}
	if m.Width == 0 && w.image != nil {
		m.Width, m.Height = w.image.Width, w.image.Height
	}
	obj.Mask = m
	obj.UpdatedAt = time.Now()
	w.emitLocked(Event{Type: EventObjectUpdated, ObjectID: id, Status: obj.Status})
	return true
}

// Object 返回对象副本
func (w *Workspace) Object(id string) (SceneObject, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return SceneObject{}, false
	}
	return obj.clone(), true
}

// Objects 按插入顺序返回所有对象副本
func (w *Workspace) Objects() []SceneObject {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]SceneObject, 0, len(w.objects))
	for _, obj := range w.objects {
		out = append(out, obj.clone())
	}
	return out
}

// Asset 返回 Ready 对象的资产
func (w *Workspace) Asset(id string) (*types.Asset, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.index[id]
	if !ok {
		return nil, types.NewError(types.ErrObjectNotFound, "object not found: "+id)
	}
	if obj.Status != types.StatusReady || obj.Asset == nil {
		return nil, types.NewError(types.ErrAssetNotReady, "asset not ready: "+string(obj.Status))
	}
	a := *obj.Asset
	return &a, nil
}

// setStatusLocked 迁移对象状态并记录指标与事件
func (w *Workspace) setStatusLocked(obj *SceneObject, to types.ObjectStatus) {
	from := obj.Status
	if from == to {
		return
	}
	obj.Status = to
	obj.UpdatedAt = time.Now()
	w.metrics.RecordStatusTransition(string(from), string(to))
	w.syncCountsLocked()
	w.emitLocked(Event{Type: EventStatusChanged, ObjectID: obj.ID, Status: to, Message: obj.Error})
}

func (w *Workspace) syncCountsLocked() {
	counts := map[string]int{
		string(types.StatusSelecting):  0,
		string(types.StatusGenerating): 0,
		string(types.StatusReady):      0,
		string(types.StatusError):      0,
	}
	for _, obj := range w.objects {
		counts[string(obj.Status)]++
	}
	w.metrics.SetObjectCounts(counts)
}
