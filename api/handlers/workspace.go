package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/api"
	"github.com/BaSui01/sculptflow/types"
	"github.com/BaSui01/sculptflow/workspace"
)

// =============================================================================
// 🧩 Workspace Handler
// =============================================================================

// WorkspaceHandler 把工作区读模型与操作暴露为 REST 接口
type WorkspaceHandler struct {
	ws            *workspace.Workspace
	maxImageBytes int64
	logger        *zap.Logger
}

// NewWorkspaceHandler 创建工作区处理器，maxImageBytes <= 0 时使用 20 MB
func NewWorkspaceHandler(ws *workspace.Workspace, maxImageBytes int64, logger *zap.Logger) *WorkspaceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = 20 << 20
	}
	return &WorkspaceHandler{
		ws:            ws,
		maxImageBytes: maxImageBytes,
		logger:        logger.With(zap.String("component", "workspace_handler")),
	}
}

// Register 注册全部路由
func (h *WorkspaceHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/session", h.HandleSession)
	mux.HandleFunc("POST /api/v1/session/image", h.HandleLoadImage)
	mux.HandleFunc("GET /api/v1/session/image", h.HandleGetImage)
	mux.HandleFunc("POST /api/v1/session/upload", h.HandleUploadMode)
	mux.HandleFunc("POST /api/v1/session/reset", h.HandleReset)
	mux.HandleFunc("PUT /api/v1/session/error", h.HandleSetError)
	mux.HandleFunc("DELETE /api/v1/session/error", h.HandleClearError)
	mux.HandleFunc("POST /api/v1/scene/reset", h.HandleResetScene)

	mux.HandleFunc("POST /api/v1/points", h.HandleAddPoint)
	mux.HandleFunc("DELETE /api/v1/points/last", h.HandleRemoveLastPoint)
	mux.HandleFunc("DELETE /api/v1/points", h.HandleClearPoints)
	mux.HandleFunc("GET /api/v1/mask", h.HandleGetPendingMask)

	mux.HandleFunc("POST /api/v1/objects", h.HandleCommit)
	mux.HandleFunc("GET /api/v1/objects", h.HandleListObjects)
	mux.HandleFunc("GET /api/v1/objects/{id}", h.HandleGetObject)
	mux.HandleFunc("PATCH /api/v1/objects/{id}", h.HandlePatchObject)
	mux.HandleFunc("DELETE /api/v1/objects/{id}", h.HandleRemoveObject)
	mux.HandleFunc("GET /api/v1/objects/{id}/mask", h.HandleGetObjectMask)
	mux.HandleFunc("PUT /api/v1/objects/{id}/mask", h.HandleUpdateObjectMask)
	mux.HandleFunc("PATCH /api/v1/objects/{id}/transform", h.HandleUpdateTransform)
	mux.HandleFunc("POST /api/v1/objects/{id}/transform/delta", h.HandleApplyDelta)
	mux.HandleFunc("POST /api/v1/objects/{id}/generate", h.HandleGenerateOne)
	mux.HandleFunc("GET /api/v1/objects/{id}/asset", h.HandleGetAsset)
	mux.HandleFunc("POST /api/v1/generate", h.HandleGenerateAll)

	mux.HandleFunc("PUT /api/v1/selection", h.HandleSelect)
	mux.HandleFunc("GET /api/v1/gizmo", h.HandleGizmo)
}

// =============================================================================
// 会话
// =============================================================================

// HandleSession 返回会话读模型
// @Summary Get session
// @Tags workspace
// @Produce json
// @Success 200 {object} Response{data=api.SessionView}
// @Router /api/v1/session [get]
func (h *WorkspaceHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, toSessionView(h.ws.Snapshot()))
}

// HandleLoadImage 加载源图像，接受 multipart 字段 image 或 image/* 请求体
// @Summary Load image
// @Tags workspace
// @Accept image/png,image/jpeg,multipart/form-data
// @Produce json
// @Success 200 {object} Response{data=api.SessionView}
// @Failure 400 {object} Response
// @Router /api/v1/session/image [post]
func (h *WorkspaceHandler) HandleLoadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes)

	data, mimeType, err := readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorMessage(w, http.StatusRequestEntityTooLarge, types.ErrInvalidRequest, "image too large", h.logger)
			return
		}
		writeAnyError(w, err, h.logger)
		return
	}

	if err := h.ws.LoadImage(&types.SourceImage{Data: data, MIME: mimeType}); err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, toSessionView(h.ws.Snapshot()))
}

func readImage(r *http.Request) ([]byte, string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", types.NewError(types.ErrInvalidRequest, "missing Content-Type")
	}

	switch {
	case mediaType == "multipart/form-data":
		file, header, err := r.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, "", err
			}
			return nil, "", types.NewError(types.ErrInvalidRequest, "multipart field \"image\" is required").WithCause(err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Header.Get("Content-Type"), nil

	case strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", err
		}
		return data, mediaType, nil

	default:
		return nil, "", types.NewError(types.ErrInvalidRequest, "unsupported Content-Type "+mediaType)
	}
}

// HandleGetImage 下载已加载图像
func (h *WorkspaceHandler) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	img, ok := h.ws.Image()
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNoImage, "no image loaded", h.logger)
		return
	}
	writeBinary(w, img.MIME, "", img.Data)
}

// HandleUploadMode 切换到上传模式，保留当前图像
func (h *WorkspaceHandler) HandleUploadMode(w http.ResponseWriter, r *http.Request) {
	_ = h.ws.LoadImage(nil)
	WriteSuccess(w, toSessionView(h.ws.Snapshot()))
}

// HandleReset 丢弃图像与全部会话状态
func (h *WorkspaceHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.ws.Reset()
	WriteSuccess(w, toSessionView(h.ws.Snapshot()))
}

// HandleResetScene 清空对象与待提交选择，保留图像
func (h *WorkspaceHandler) HandleResetScene(w http.ResponseWriter, r *http.Request) {
	h.ws.ResetScene()
	WriteSuccess(w, toSessionView(h.ws.Snapshot()))
}

// HandleSetError 设置全局错误
func (h *WorkspaceHandler) HandleSetError(w http.ResponseWriter, r *http.Request) {
	var req api.ErrorRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	h.ws.SetError(req.Message)
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearError 清除全局错误
func (h *WorkspaceHandler) HandleClearError(w http.ResponseWriter, r *http.Request) {
	h.ws.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// 点提示与待提交掩码
// =============================================================================

// HandleAddPoint 追加点提示，掩码在后台解析
// @Summary Add point
// @Tags workspace
// @Accept json
// @Produce json
// @Param request body api.PointRequest true "Point"
// @Success 202 {object} Response{data=[]types.Point}
// @Router /api/v1/points [post]
func (h *WorkspaceHandler) HandleAddPoint(w http.ResponseWriter, r *http.Request) {
	var req api.PointRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	p := types.Point{X: req.X, Y: req.Y, Kind: types.PointKind(req.Kind)}
	if err := h.ws.AddPoint(p); err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	WriteSuccessStatus(w, http.StatusAccepted, h.ws.Points())
}

// HandleRemoveLastPoint 撤销最后一个点提示
func (h *WorkspaceHandler) HandleRemoveLastPoint(w http.ResponseWriter, r *http.Request) {
	if !h.ws.RemoveLastPoint() {
		WriteErrorMessage(w, http.StatusConflict, types.ErrNoPoints, "no points to remove", h.logger)
		return
	}
	WriteSuccess(w, h.ws.Points())
}

// HandleClearPoints 清空点提示与掩码
func (h *WorkspaceHandler) HandleClearPoints(w http.ResponseWriter, r *http.Request) {
	h.ws.ClearPoints()
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetPendingMask 下载待提交选择的掩码
func (h *WorkspaceHandler) HandleGetPendingMask(w http.ResponseWriter, r *http.Request) {
	m := h.ws.PendingMask()
	if m == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNoMask, "no mask resolved", h.logger)
		return
	}
	writeMask(w, m)
}

// =============================================================================
// 场景对象
// =============================================================================

// HandleCommit 提交待选择为新对象
// @Summary Commit selection
// @Tags workspace
// @Produce json
// @Success 201 {object} Response{data=api.CommitResponse}
// @Failure 422 {object} Response "no points"
// @Router /api/v1/objects [post]
func (h *WorkspaceHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ws.Commit()
	if !ok {
		WriteErrorMessage(w, http.StatusUnprocessableEntity, types.ErrNoPoints, "nothing to commit", h.logger)
		return
	}
	WriteSuccessStatus(w, http.StatusCreated, api.CommitResponse{ID: id})
}

// HandleListObjects 按插入顺序列出对象
func (h *WorkspaceHandler) HandleListObjects(w http.ResponseWriter, r *http.Request) {
	objs := h.ws.Objects()
	out := make([]api.ObjectView, 0, len(objs))
	for _, o := range objs {
		out = append(out, toObjectView(o))
	}
	WriteSuccess(w, out)
}

// HandleGetObject 返回单个对象
func (h *WorkspaceHandler) HandleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, ok := h.ws.Object(r.PathValue("id"))
	if !ok {
		h.notFound(w, r)
		return
	}
	WriteSuccess(w, toObjectView(obj))
}

// HandlePatchObject 修改名称或可见性
func (h *WorkspaceHandler) HandlePatchObject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req api.ObjectPatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if _, ok := h.ws.Object(id); !ok {
		h.notFound(w, r)
		return
	}
	if req.Name != nil && !h.ws.Rename(id, *req.Name) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "name must not be empty", h.logger)
		return
	}
	if req.Visible != nil && !h.ws.SetVisible(id, *req.Visible) {
		h.notFound(w, r)
		return
	}
	h.HandleGetObject(w, r)
}

// HandleRemoveObject 删除对象
func (h *WorkspaceHandler) HandleRemoveObject(w http.ResponseWriter, r *http.Request) {
	if !h.ws.Remove(r.PathValue("id")) {
		h.notFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetObjectMask 下载对象掩码
func (h *WorkspaceHandler) HandleGetObjectMask(w http.ResponseWriter, r *http.Request) {
	obj, ok := h.ws.Object(r.PathValue("id"))
	if !ok {
		h.notFound(w, r)
		return
	}
	if obj.Mask == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNoMask, "object has no mask", h.logger)
		return
	}
	writeMask(w, obj.Mask)
}

// HandleUpdateObjectMask 以 PNG 请求体替换对象掩码
func (h *WorkspaceHandler) HandleUpdateObjectMask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "mask body is required", h.logger)
		return
	}
	if !h.ws.UpdateMask(r.PathValue("id"), &types.Mask{Data: data, Encoding: types.MaskEncodingPNG}) {
		h.notFound(w, r)
		return
	}
	h.HandleGetObject(w, r)
}

// HandleUpdateTransform 合并部分变换
func (h *WorkspaceHandler) HandleUpdateTransform(w http.ResponseWriter, r *http.Request) {
	var patch types.TransformPatch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}
	t, ok := h.ws.UpdateTransform(r.PathValue("id"), patch)
	if !ok {
		h.notFound(w, r)
		return
	}
	WriteSuccess(w, t)
}

// HandleApplyDelta 累加交互增量
func (h *WorkspaceHandler) HandleApplyDelta(w http.ResponseWriter, r *http.Request) {
	var delta types.TransformDelta
	if err := DecodeJSONBody(w, r, &delta, h.logger); err != nil {
		return
	}
	t, ok := h.ws.ApplyDelta(r.PathValue("id"), delta)
	if !ok {
		h.notFound(w, r)
		return
	}
	WriteSuccess(w, t)
}

// HandleGenerateOne 为单个对象发起生成
// @Summary Generate one
// @Tags workspace
// @Produce json
// @Param id path string true "Object ID"
// @Success 202 {object} Response{data=api.ObjectView}
// @Failure 404 {object} Response
// @Failure 409 {object} Response "object not in Selecting or Error"
// @Router /api/v1/objects/{id}/generate [post]
func (h *WorkspaceHandler) HandleGenerateOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	obj, ok := h.ws.Object(id)
	if !ok {
		h.notFound(w, r)
		return
	}
	if !h.ws.GenerateOne(id) {
		WriteErrorMessage(w, http.StatusConflict, types.ErrInvalidTransition,
			"cannot generate from status "+string(obj.Status), h.logger)
		return
	}
	obj, _ = h.ws.Object(id)
	WriteSuccessStatus(w, http.StatusAccepted, toObjectView(obj))
}

// HandleGenerateAll 为所有 Selecting 对象发起生成
func (h *WorkspaceHandler) HandleGenerateAll(w http.ResponseWriter, r *http.Request) {
	ids := h.ws.GenerateAll()
	if ids == nil {
		ids = []string{}
	}
	WriteSuccessStatus(w, http.StatusAccepted, api.GenerateAllResponse{Scheduled: ids})
}

// HandleGetAsset 下载对象资产
func (h *WorkspaceHandler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	asset, err := h.ws.Asset(id)
	if err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	writeBinary(w, assetContentType(asset.Format), id+"."+string(asset.Format), asset.Data)
}

// HandleSelect 选中对象
func (h *WorkspaceHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req api.SelectRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if !h.ws.Select(req.ID) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrObjectNotFound, "object not found: "+req.ID, h.logger)
		return
	}
	WriteSuccess(w, api.SelectRequest{ID: h.ws.Selected()})
}

// HandleGizmo 返回变换手柄状态
func (h *WorkspaceHandler) HandleGizmo(w http.ResponseWriter, r *http.Request) {
	g, ok := h.ws.Gizmo()
	if !ok {
		WriteSuccess(w, nil)
		return
	}
	WriteSuccess(w, g)
}

func (h *WorkspaceHandler) notFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorMessage(w, http.StatusNotFound, types.ErrObjectNotFound, "object not found: "+r.PathValue("id"), h.logger)
}

// =============================================================================
// 转换与输出
// =============================================================================

func toSessionView(s workspace.Snapshot) api.SessionView {
	view := api.SessionView{
		Mode:       string(s.Mode),
		Points:     s.Points,
		Mask:       api.NewMaskInfo(s.Mask),
		Segmenting: s.Segmenting,
		Objects:    make([]api.ObjectView, 0, len(s.Objects)),
		SelectedID: s.SelectedID,
		Error:      s.Error,
	}
	if s.Image != nil {
		view.Image = &api.ImageInfo{
			MIME:   s.Image.MIME,
			Width:  s.Image.Width,
			Height: s.Image.Height,
			Size:   s.Image.Size,
		}
	}
	for _, o := range s.Objects {
		view.Objects = append(view.Objects, toObjectView(o))
	}
	return view
}

func toObjectView(o workspace.SceneObject) api.ObjectView {
	return api.ObjectView{
		ID:        o.ID,
		Name:      o.Name,
		Color:     o.Color,
		Points:    o.Points,
		Mask:      api.NewMaskInfo(o.Mask),
		Asset:     o.Asset,
		Status:    o.Status,
		Error:     o.Error,
		Visible:   o.Visible,
		Transform: o.Transform,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func writeMask(w http.ResponseWriter, m *types.Mask) {
	writeBinary(w, "image/png", "", m.Data)
}

func writeBinary(w http.ResponseWriter, contentType, filename string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func assetContentType(f types.AssetFormat) string {
	switch f {
	case types.FormatMesh:
		return "model/gltf-binary"
	case types.FormatPointCloud:
		return "application/x-ply"
	default:
		return "application/octet-stream"
	}
}
