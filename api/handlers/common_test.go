package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/testutil/fixtures"
	"github.com/BaSui01/sculptflow/types"
	"github.com/BaSui01/sculptflow/workspace"
)

// =============================================================================
// 🧪 错误映射：由工作区真实错误路径驱动
// =============================================================================

func newBareWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(workspace.DefaultConfig(), zap.NewNop())
	t.Cleanup(ws.Close)
	return ws
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteAnyError_WorkspaceErrors(t *testing.T) {
	png := func(ws *workspace.Workspace) error {
		return ws.LoadImage(&types.SourceImage{Data: fixtures.PNG(100, 50)})
	}

	tests := []struct {
		name       string
		produce    func(t *testing.T, ws *workspace.Workspace) error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name: "point outside image width",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				require.NoError(t, png(ws))
				return ws.AddPoint(types.Point{X: 100, Y: 10, Kind: types.PointPositive})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name: "NaN point",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				require.NoError(t, png(ws))
				return ws.AddPoint(types.Point{X: math.NaN(), Y: 10, Kind: types.PointNegative})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name: "point before any image",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				return ws.AddPoint(types.Point{X: 1, Y: 1, Kind: types.PointPositive})
			},
			wantStatus: http.StatusConflict,
			wantCode:   types.ErrNoImage,
		},
		{
			name: "empty image",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				return ws.LoadImage(&types.SourceImage{})
			},
			wantStatus: http.StatusConflict,
			wantCode:   types.ErrNoImage,
		},
		{
			name: "undecodable image",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				return ws.LoadImage(&types.SourceImage{Data: []byte("not an image")})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name: "asset before ready",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				require.NoError(t, png(ws))
				require.NoError(t, ws.AddPoint(types.Point{X: 10, Y: 10, Kind: types.PointPositive}))
				id, ok := ws.Commit()
				require.True(t, ok)
				_, err := ws.Asset(id)
				return err
			},
			wantStatus: http.StatusConflict,
			wantCode:   types.ErrAssetNotReady,
		},
		{
			name: "asset of unknown object",
			produce: func(t *testing.T, ws *workspace.Workspace) error {
				_, err := ws.Asset("missing")
				return err
			},
			wantStatus: http.StatusNotFound,
			wantCode:   types.ErrObjectNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.produce(t, newBareWorkspace(t))
			require.Error(t, err)

			w := httptest.NewRecorder()
			w.Header().Set("X-Request-ID", "req-"+string(tt.wantCode))
			writeAnyError(w, fmt.Errorf("handler: %w", err), zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Equal(t, "req-"+string(tt.wantCode), resp.RequestID)
		})
	}
}

func TestWriteAnyError_SegmentationUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Model not loaded"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	sam := segment.NewSAM3Provider(segment.SAM3Config{BaseURL: srv.URL})
	_, err := sam.Segment(context.Background(), &segment.SegmentRequest{
		Image:    fixtures.PNG(10, 10),
		Positive: [][2]float64{{1, 1}},
	})
	require.Error(t, err)

	w := httptest.NewRecorder()
	writeAnyError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "upstream status overrides the code mapping")
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrUpstreamError), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestWriteAnyError_HidesUntypedCause(t *testing.T) {
	w := httptest.NewRecorder()
	writeAnyError(w, errors.New("open /var/lib/sculptflow: disk full"), zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "disk full")
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrObjectNotFound, http.StatusNotFound},
		{types.ErrNoImage, http.StatusConflict},
		{types.ErrInvalidTransition, http.StatusConflict},
		{types.ErrAssetNotReady, http.StatusConflict},
		{types.ErrNoPoints, http.StatusUnprocessableEntity},
		{types.ErrNoMask, http.StatusUnprocessableEntity},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrSegmentationFailed, http.StatusBadGateway},
		{types.ErrGenerationFailed, http.StatusBadGateway},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

// =============================================================================
// 🧪 请求体：经由点提示端点
// =============================================================================

func TestDecodeJSONBody_PointEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "accepted", body: `{"x":10,"y":10,"kind":"positive"}`, contentType: "application/json", wantStatus: http.StatusAccepted},
		{name: "charset parameter", body: `{"x":10,"y":10,"kind":"negative"}`, contentType: "application/json; charset=UTF-8", wantStatus: http.StatusAccepted},
		{name: "trailing comma", body: `{"x":10,"y":10,}`, contentType: "application/json", wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"x":10,"y":10,"kind":"positive","label":"cat"}`, contentType: "application/json", wantStatus: http.StatusBadRequest},
		{name: "form encoded", body: `x=10&y=10`, contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusBadRequest},
		{name: "missing content type", body: `{"x":10,"y":10,"kind":"positive"}`, wantStatus: http.StatusBadRequest},
		{name: "oversized", body: `{"kind":"` + strings.Repeat("p", 2<<20) + `"}`, contentType: "application/json", wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkspaceFixture(t)
			f.loadImage(t, 64, 64)

			w := f.do(t, http.MethodPost, "/api/v1/points", strings.NewReader(tt.body), tt.contentType)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusAccepted {
				assert.Equal(t, string(types.ErrInvalidRequest), errorCode(t, w))
				assert.Empty(t, f.ws.Points())
			}
		})
	}
}

func TestDecodeJSONBody_EmptySelectionBody(t *testing.T) {
	f := newWorkspaceFixture(t)

	w := f.do(t, http.MethodPut, "/api/v1/selection", http.NoBody, "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), errorCode(t, w))
}

// =============================================================================
// 🧪 成功响应与状态捕获
// =============================================================================

func TestWriteSuccessStatus_PointsAccepted(t *testing.T) {
	f := newWorkspaceFixture(t)
	f.loadImage(t, 64, 64)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/points", strings.NewReader(`{"x":3,"y":4,"kind":"positive"}`))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-42")
	rw := NewResponseWriter(rec)
	f.mux.ServeHTTP(rw, r)

	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.True(t, rw.Written)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var resp struct {
		Success   bool           `json:"success"`
		Data      []types.Point  `json:"data"`
		RequestID string         `json:"request_id"`
		Error     map[string]any `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []types.Point{{X: 3, Y: 4, Kind: types.PointPositive}}, resp.Data)
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	f := newWorkspaceFixture(t)

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	f.mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/objects/missing", nil))
	assert.Equal(t, http.StatusNotFound, rw.StatusCode)
	assert.True(t, rw.Written)

	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusNotFound, rw.StatusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
