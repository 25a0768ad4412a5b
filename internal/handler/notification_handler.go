package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
)

type Inbox interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]dbcontracts.Notification, error)
	MarkAsRead(ctx context.Context, userID string, id int64) (bool, error)
}

type NotificationHandler struct {
	inbox  Inbox
	logger *zap.Logger
}

func NewNotificationHandler(inbox Inbox, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, logger: logger}
}

// List handles GET /notifications?limit=
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, 100)
	}

	items, err := h.inbox.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	found, err := h.inbox.MarkAsRead(c.Request.Context(), userID, id)
	if err != nil {
		h.logger.Error("Failed to mark notification read", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_read": true})
}
