package types

// Vec3 三维向量
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Transform 场景对象的空间变换
type Transform struct {
	Position Vec3    `json:"position"`
	Rotation Vec3    `json:"rotation"`
	Scale    float64 `json:"scale"`
}

// IdentityTransform 返回默认变换（原点、无旋转、缩放 1）
func IdentityTransform() Transform {
	return Transform{Scale: 1}
}

// TransformPatch 部分变换，nil 字段保持不变
type TransformPatch struct {
	Position *Vec3    `json:"position,omitempty"`
	Rotation *Vec3    `json:"rotation,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TransformPatch) Empty() bool {
	return p.Position == nil && p.Rotation == nil && p.Scale == nil
}

// Apply merges the patch into t (last write wins per field).
func (p TransformPatch) Apply(t Transform) Transform {
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.Rotation != nil {
		t.Rotation = *p.Rotation
	}
	if p.Scale != nil && *p.Scale > 0 {
		t.Scale = *p.Scale
	}
	return t
}

// TransformDelta 交互式操作产生的增量（平移 / 旋转 / 缩放倍率）
type TransformDelta struct {
	Translate Vec3    `json:"translate"`
	Rotate    Vec3    `json:"rotate"`
	ScaleBy   float64 `json:"scale_by,omitempty"`
}

// Apply accumulates the delta onto t. A zero ScaleBy leaves scale unchanged.
func (d TransformDelta) Apply(t Transform) Transform {
	t.Position = t.Position.Add(d.Translate)
	t.Rotation = t.Rotation.Add(d.Rotate)
	if d.ScaleBy > 0 {
		t.Scale *= d.ScaleBy
	}
	return t
}
