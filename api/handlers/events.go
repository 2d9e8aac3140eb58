package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/workspace"
)

// EventsHandler 通过 WebSocket 推送工作区事件。连接建立后先发送一条
// 会话快照，随后按序转发事件总线上的通知。
type EventsHandler struct {
	ws             *workspace.Workspace
	buffer         int
	writeTimeout   time.Duration
	originPatterns []string
	logger         *zap.Logger
}

// NewEventsHandler 创建事件推送处理器
func NewEventsHandler(ws *workspace.Workspace, originPatterns []string, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		ws:             ws,
		buffer:         256,
		writeTimeout:   10 * time.Second,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "events_handler")),
	}
}

// Register 注册路由
func (h *EventsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/events", h.HandleEvents)
}

// streamMessage WebSocket 上的一帧
type streamMessage struct {
	Kind     string           `json:"kind"`
	Event    *workspace.Event `json:"event,omitempty"`
	Snapshot any              `json:"snapshot,omitempty"`
}

// HandleEvents 升级为 WebSocket 并推送事件
// @Summary Workspace event stream
// @Tags workspace
// @Router /api/v1/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// 长连接不受服务器 WriteTimeout 限制，写超时由每帧的 writeTimeout 控制
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.ws.Events().Subscribe(h.buffer)
	defer h.ws.Events().Unsubscribe(sub.ID)

	// 客户端不发送数据，CloseRead 负责处理控制帧并在断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("event stream opened", zap.String("subscription", sub.ID))

	if err := h.write(ctx, conn, streamMessage{Kind: "snapshot", Snapshot: toSessionView(h.ws.Snapshot())}); err != nil {
		h.logClosed(err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logClosed(ctx.Err())
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "workspace closed")
				return
			}
			if err := h.write(ctx, conn, streamMessage{Kind: "event", Event: &ev}); err != nil {
				h.logClosed(err)
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *EventsHandler) logClosed(err error) {
	if err == nil || errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		h.logger.Debug("event stream closed")
		return
	}
	h.logger.Warn("event stream terminated", zap.Error(err))
}
