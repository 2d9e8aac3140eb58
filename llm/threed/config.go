package threed

import (
	"time"

	"github.com/BaSui01/sculptflow/types"
)

// SAM3DConfig configures the SAM3D generation provider.
type SAM3DConfig struct {
	BaseURL string            `json:"base_url" yaml:"base_url"`
	Seed    int               `json:"seed" yaml:"seed"`
	Format  types.AssetFormat `json:"format,omitempty" yaml:"format,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultSAM3DConfig returns default SAM3D config.
// Generation can take minutes; a zero Timeout leaves the deadline to the caller's context.
func DefaultSAM3DConfig() SAM3DConfig {
	return SAM3DConfig{
		BaseURL: "http://localhost:8000",
		Seed:    42,
		Format:  types.FormatPointCloud,
	}
}
