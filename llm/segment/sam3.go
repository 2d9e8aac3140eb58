package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/sculptflow/internal/tlsutil"
	"github.com/BaSui01/sculptflow/types"
)

// SAM3Provider 对接 SAM3 分割服务器（/health、/set_image、/segment、/segment_with_text）.
type SAM3Provider struct {
	cfg    SAM3Config
	client *http.Client
}

// NewSAM3Provider 创建新的 SAM3 分割提供者.
func NewSAM3Provider(cfg SAM3Config) *SAM3Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSAM3Config().BaseURL
	}
	return &SAM3Provider{
		cfg:    cfg,
		client: tlsutil.CollaboratorClient(cfg.Timeout),
	}
}

func (p *SAM3Provider) Name() string { return "sam3" }

// BaseURL 返回服务地址.
func (p *SAM3Provider) BaseURL() string { return p.cfg.BaseURL }

type sam3SegmentRequest struct {
	Image           string       `json:"image"`
	PointsPositive  [][2]float64 `json:"points_positive"`
	PointsNegative  [][2]float64 `json:"points_negative"`
	MultimaskOutput bool         `json:"multimask_output"`
}

type sam3SegmentResponse struct {
	Success bool      `json:"success"`
	Masks   []string  `json:"masks"`
	Scores  []float64 `json:"scores"`
	Message string    `json:"message"`
}

type sam3SetImageRequest struct {
	Image string `json:"image"`
}

type sam3SetImageResponse struct {
	Success   bool   `json:"success"`
	ImageSize []int  `json:"image_size"`
	Message   string `json:"message"`
}

// Segment 发送完整点提示集合并解码返回的候选掩码，按分数降序排列.
func (p *SAM3Provider) Segment(ctx context.Context, req *SegmentRequest) (*SegmentResponse, error) {
	if req == nil || len(req.Image) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "image is required").WithProvider(p.Name())
	}
	if len(req.Positive) == 0 && len(req.Negative) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "at least one point is required").WithProvider(p.Name())
	}

	body := sam3SegmentRequest{
		Image:           base64.StdEncoding.EncodeToString(req.Image),
		PointsPositive:  nonNil(req.Positive),
		PointsNegative:  nonNil(req.Negative),
		MultimaskOutput: req.MultiMask || p.cfg.MultiMask,
	}

	var sResp sam3SegmentResponse
	if err := p.post(ctx, "/segment", body, &sResp); err != nil {
		return nil, err
	}
	if !sResp.Success {
		return nil, types.NewError(types.ErrSegmentationFailed, "segmentation failed: "+sResp.Message).
			WithProvider(p.Name()).
			WithRetryable(true)
	}

	return p.candidates(&sResp, 0)
}

// SegmentText 调用 /segment_with_text。服务端以查询参数接收 image、prompt 与
// confidence_threshold；threshold <= 0 时取 DefaultTextThreshold。
// 没有匹配对象时返回空的 Masks 而非错误.
func (p *SAM3Provider) SegmentText(ctx context.Context, image []byte, prompt string, threshold float64) (*SegmentResponse, error) {
	if len(image) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "image is required").WithProvider(p.Name())
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "text prompt is required").WithProvider(p.Name())
	}
	if threshold <= 0 {
		threshold = DefaultTextThreshold
	}

	q := url.Values{}
	q.Set("image", base64.StdEncoding.EncodeToString(image))
	q.Set("prompt", prompt)
	q.Set("confidence_threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/segment_with_text?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var sResp sam3SegmentResponse
	if err := p.do(ctx, httpReq, &sResp); err != nil {
		return nil, err
	}
	if !sResp.Success {
		return nil, types.NewError(types.ErrSegmentationFailed, "text segmentation failed: "+sResp.Message).
			WithProvider(p.Name())
	}
	return p.candidates(&sResp, threshold)
}

// candidates 解码候选掩码，丢弃低于 minScore 的项，按分数降序排列
func (p *SAM3Provider) candidates(sResp *sam3SegmentResponse, minScore float64) (*SegmentResponse, error) {
	out := &SegmentResponse{Provider: p.Name(), Message: sResp.Message}
	for i, enc := range sResp.Masks {
		var score float64
		if i < len(sResp.Scores) {
			score = sResp.Scores[i]
		}
		if score < minScore {
			continue
		}
		data, err := decodeBase64(enc)
		if err != nil {
			return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("mask %d is not valid base64", i)).
				WithCause(err).
				WithProvider(p.Name())
		}
		out.Masks = append(out.Masks, Candidate{Data: data, Score: score})
	}
	sort.SliceStable(out.Masks, func(i, j int) bool { return out.Masks[i].Score > out.Masks[j].Score })
	return out, nil
}

// PrepareImage 调用 /set_image 预先计算 embedding.
func (p *SAM3Provider) PrepareImage(ctx context.Context, image []byte) (*PreparedImage, error) {
	if len(image) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "image is required").WithProvider(p.Name())
	}
	var sResp sam3SetImageResponse
	if err := p.post(ctx, "/set_image", sam3SetImageRequest{Image: base64.StdEncoding.EncodeToString(image)}, &sResp); err != nil {
		return nil, err
	}
	if !sResp.Success {
		return nil, types.NewError(types.ErrSegmentationFailed, "set_image failed: "+sResp.Message).WithProvider(p.Name())
	}
	out := &PreparedImage{Message: sResp.Message}
	if len(sResp.ImageSize) == 2 {
		out.Width, out.Height = sResp.ImageSize[0], sResp.ImageSize[1]
	}
	return out, nil
}

// Health 查询 /health.
func (p *SAM3Provider) Health(ctx context.Context) (*HealthStatus, error) {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.statusError(resp)
	}
	var h HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &h, nil
}

func (p *SAM3Provider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return p.do(ctx, httpReq, out)
}

func (p *SAM3Provider) do(ctx context.Context, httpReq *http.Request, out any) error {
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return p.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return p.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to decode response").WithCause(err).WithProvider(p.Name())
	}
	return nil
}

func (p *SAM3Provider) transportError(ctx context.Context, err error) error {
	code := types.ErrUpstreamError
	if ctx.Err() != nil {
		code = types.ErrUpstreamTimeout
	}
	return types.NewError(code, "sam3 request failed").
		WithCause(err).
		WithProvider(p.Name()).
		WithRetryable(true)
}

func (p *SAM3Provider) statusError(resp *http.Response) error {
	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return types.NewError(types.ErrUpstreamError, fmt.Sprintf("sam3 error: status=%d body=%s", resp.StatusCode, string(errBody))).
		WithHTTPStatus(resp.StatusCode).
		WithProvider(p.Name()).
		WithRetryable(resp.StatusCode >= 500)
}

// decodeBase64 accepts both bare base64 and data URLs.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func nonNil(pts [][2]float64) [][2]float64 {
	if pts == nil {
		return [][2]float64{}
	}
	return pts
}
