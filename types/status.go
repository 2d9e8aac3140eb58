package types

// ObjectStatus 场景对象生命周期状态
type ObjectStatus string

const (
	StatusSelecting  ObjectStatus = "selecting"
	StatusGenerating ObjectStatus = "generating"
	StatusReady      ObjectStatus = "ready"
	StatusError      ObjectStatus = "error"
)

// CanGenerate reports whether generation may (re-)enter from this status.
// Error is recoverable through an explicit retry.
func (s ObjectStatus) CanGenerate() bool {
	return s == StatusSelecting || s == StatusError
}

// SourceImage 已加载的源图像
type SourceImage struct {
	Data   []byte `json:"-"`
	MIME   string `json:"mime,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// HasSize reports whether pixel dimensions are known.
func (img *SourceImage) HasSize() bool {
	return img != nil && img.Width > 0 && img.Height > 0
}
