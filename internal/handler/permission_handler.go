package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bizgrow/internal/model"
	"bizgrow/internal/permission"
	"bizgrow/internal/session"
)

type PermissionHandler struct {
	manager        *permission.Manager
	registry       *session.Registry
	vapidPublicKey string
	logger         *zap.Logger
}

func NewPermissionHandler(manager *permission.Manager, registry *session.Registry, vapidPublicKey string, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{
		manager:        manager,
		registry:       registry,
		vapidPublicKey: vapidPublicKey,
		logger:         logger,
	}
}

// sessionFor 优先使用在线会话，保证 relay 读到的是同一个对象
func (h *PermissionHandler) sessionFor(ctx context.Context, userID, deviceID string) *session.Session {
	if s, ok := h.registry.Get(userID, deviceID); ok {
		return s
	}
	return session.New(userID, deviceID, h.manager.Load(ctx, userID, deviceID))
}

// GetPermission handles GET /push/permission?device_id=
func (h *PermissionHandler) GetPermission(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	deviceID, ok := getDeviceID(c, "")
	if !ok {
		return
	}
	s := h.sessionFor(c.Request.Context(), userID, deviceID)
	c.JSON(http.StatusOK, permission.Result{Permission: s.Permission()})
}

// RequestPermission handles POST /push/permission
func (h *PermissionHandler) RequestPermission(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		DeviceID     string                  `json:"device_id"`
		Decision     string                  `json:"decision" binding:"required"`
		Subscription *model.PushSubscription `json:"subscription"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	deviceID, ok := getDeviceID(c, req.DeviceID)
	if !ok {
		return
	}

	s := h.sessionFor(c.Request.Context(), userID, deviceID)
	res, err := h.manager.Request(c.Request.Context(), s, session.Permission(req.Decision), req.Subscription)
	switch {
	case errors.Is(err, permission.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "permission": res.Permission})
	case errors.Is(err, permission.ErrInvalidDecision):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("Permission request failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// ResetPermission handles DELETE /push/permission?device_id=
func (h *PermissionHandler) ResetPermission(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	deviceID, ok := getDeviceID(c, "")
	if !ok {
		return
	}

	res, err := h.manager.Reset(c.Request.Context(), h.sessionFor(c.Request.Context(), userID, deviceID))
	if err != nil {
		h.logger.Error("Permission reset failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// SendTest handles POST /push/test
func (h *PermissionHandler) SendTest(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req struct {
		DeviceID string `json:"device_id"`
	}
	_ = c.ShouldBindJSON(&req)
	deviceID, ok := getDeviceID(c, req.DeviceID)
	if !ok {
		return
	}

	msg := h.manager.SendTest(c.Request.Context(), h.sessionFor(c.Request.Context(), userID, deviceID))
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// VAPIDKey handles GET /push/vapid-key
func (h *PermissionHandler) VAPIDKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidPublicKey})
}
