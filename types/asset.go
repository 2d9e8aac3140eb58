package types

import "fmt"

// AssetFormat 3D 资产输出格式
type AssetFormat string

const (
	// FormatPointCloud 点云（PLY）
	FormatPointCloud AssetFormat = "ply"
	// FormatMesh 网格（GLB）
	FormatMesh AssetFormat = "glb"
)

// ParseAssetFormat accepts the wire tags and their descriptive aliases.
func ParseAssetFormat(s string) (AssetFormat, error) {
	switch s {
	case "ply", "point-cloud", "pointcloud", "":
		return FormatPointCloud, nil
	case "glb", "mesh":
		return FormatMesh, nil
	default:
		return "", NewError(ErrInvalidRequest, fmt.Sprintf("unsupported asset format %q", s))
	}
}

// Asset 生成的 3D 资产（不透明载荷 + 格式标签）
type Asset struct {
	Data   []byte      `json:"-"`
	Format AssetFormat `json:"format"`
	Size   int         `json:"size"`
}

// NewAsset wraps a generated payload.
func NewAsset(data []byte, format AssetFormat) *Asset {
	return &Asset{Data: data, Format: format, Size: len(data)}
}
