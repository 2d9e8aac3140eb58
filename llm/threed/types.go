// Package threed provides image+mask to 3D asset generation.
package threed

import (
	"context"
	"time"

	"github.com/BaSui01/sculptflow/types"
)

// ThreeDProvider defines the interface for 3D asset generation.
type ThreeDProvider interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Health(ctx context.Context) (*HealthStatus, error)
}

// GenerateRequest represents a 3D generation request.
type GenerateRequest struct {
	Image  []byte            `json:"-"`                // Source image bytes
	Mask   []byte            `json:"-"`                // Committed object mask (PNG)
	Seed   int               `json:"seed"`             // Random seed
	Format types.AssetFormat `json:"format,omitempty"` // ply or glb
}

// GenerateResponse represents a 3D generation response.
type GenerateResponse struct {
	Provider  string       `json:"provider"`
	Asset     *types.Asset `json:"asset"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// HealthStatus reports the generation service state.
type HealthStatus struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	GPU           string `json:"gpu,omitempty"`
	CUDAAvailable bool   `json:"cuda_available"`
}

// Healthy reports whether the service can generate assets.
func (h *HealthStatus) Healthy() bool {
	return h != nil && h.Status == "ok" && h.ModelLoaded
}
