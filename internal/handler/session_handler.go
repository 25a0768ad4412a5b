package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bizgrow/internal/hub"
	"bizgrow/internal/session"
	"bizgrow/pkg/logger"
)

type PermissionLoader interface {
	Load(ctx context.Context, userID, deviceID string) session.Permission
}

// SessionHandler 一条 websocket 连接对应一个标签页。同一 profile 的标签页共享会话，
// relay 由 Registry 在会话第一次上线时启动，toast 通过 hub 推给该会话的全部连接。
type SessionHandler struct {
	hub         *hub.Hub
	registry    *session.Registry
	permissions PermissionLoader
	logger      *zap.Logger
}

func NewSessionHandler(h *hub.Hub, registry *session.Registry, permissions PermissionLoader, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		hub:         h,
		registry:    registry,
		permissions: permissions,
		logger:      logger,
	}
}

// ServeWS handles GET /ws?device_id=
func (h *SessionHandler) ServeWS(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	deviceID, ok := getDeviceID(c, "")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
	)

	conn, err := hub.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s, release := h.registry.Attach(userID, deviceID, func() *session.Session {
		return session.New(userID, deviceID, h.permissions.Load(ctx, userID, deviceID))
	})
	defer release()

	client := hub.NewClient(s.Key(), conn, h.logger)
	h.hub.Register(client)
	defer h.hub.Unregister(client)
	client.Enqueue(hub.Frame{Type: hub.FrameSession, Data: gin.H{"permission": s.Permission()}})

	log.Info("WebSocket session connected")
	client.Serve(ctx)
	log.Info("WebSocket session closed")
}
