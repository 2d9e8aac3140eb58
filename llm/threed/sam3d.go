package threed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/sculptflow/internal/tlsutil"
	"github.com/BaSui01/sculptflow/types"
)

// SAM3DProvider 使用 SAM3D 服务从 图像 + 掩码 生成 3D 资产.
type SAM3DProvider struct {
	cfg    SAM3DConfig
	client *http.Client
}

// NewSAM3DProvider 创建新的 SAM3D 提供者.
func NewSAM3DProvider(cfg SAM3DConfig) *SAM3DProvider {
	defaults := DefaultSAM3DConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Format == "" {
		cfg.Format = defaults.Format
	}
	return &SAM3DProvider{
		cfg:    cfg,
		client: tlsutil.CollaboratorClient(cfg.Timeout),
	}
}

func (p *SAM3DProvider) Name() string { return "sam3d" }

// BaseURL 返回服务地址.
func (p *SAM3DProvider) BaseURL() string { return p.cfg.BaseURL }

type sam3dGenerateRequest struct {
	Image        string `json:"image"`
	Mask         string `json:"mask"`
	Seed         int    `json:"seed"`
	OutputFormat string `json:"output_format"`
}

type sam3dGenerateResponse struct {
	Success   bool   `json:"success"`
	ModelData string `json:"model_data"`
	Format    string `json:"format"`
	Message   string `json:"message"`
}

// Generate 调用 /generate 并解码返回的模型数据.
func (p *SAM3DProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || len(req.Image) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "image is required").WithProvider(p.Name())
	}
	if len(req.Mask) == 0 {
		return nil, types.NewError(types.ErrNoMask, "mask is required").WithProvider(p.Name())
	}

	format := req.Format
	if format == "" {
		format = p.cfg.Format
	}
	seed := req.Seed
	if seed == 0 {
		seed = p.cfg.Seed
	}

	payload, err := json.Marshal(sam3dGenerateRequest{
		Image:        base64.StdEncoding.EncodeToString(req.Image),
		Mask:         base64.StdEncoding.EncodeToString(req.Mask),
		Seed:         seed,
		OutputFormat: string(format),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/generate"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := types.ErrUpstreamError
		if ctx.Err() != nil {
			code = types.ErrUpstreamTimeout
		}
		return nil, types.NewError(code, "sam3d request failed").
			WithCause(err).
			WithProvider(p.Name()).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("sam3d error: status=%d body=%s", resp.StatusCode, string(errBody))).
			WithHTTPStatus(resp.StatusCode).
			WithProvider(p.Name()).
			WithRetryable(resp.StatusCode >= 500)
	}

	var gResp sam3dGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode response").WithCause(err).WithProvider(p.Name())
	}
	if !gResp.Success {
		return nil, types.NewError(types.ErrGenerationFailed, "generation failed: "+gResp.Message).WithProvider(p.Name())
	}

	data, err := base64.StdEncoding.DecodeString(gResp.ModelData)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "model_data is not valid base64").WithCause(err).WithProvider(p.Name())
	}
	if len(data) == 0 {
		return nil, types.NewError(types.ErrGenerationFailed, "empty model data").WithProvider(p.Name())
	}

	outFormat := format
	if gResp.Format != "" {
		if f, err := types.ParseAssetFormat(gResp.Format); err == nil {
			outFormat = f
		}
	}

	return &GenerateResponse{
		Provider:  p.Name(),
		Asset:     types.NewAsset(data, outFormat),
		Message:   gResp.Message,
		CreatedAt: time.Now(),
	}, nil
}

// Health 查询 /health.
func (p *SAM3DProvider) Health(ctx context.Context) (*HealthStatus, error) {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "sam3d health check failed").WithCause(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrServiceUnavailable, fmt.Sprintf("sam3d health: status=%d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).
			WithProvider(p.Name())
	}
	var h HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &h, nil
}
