package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bizgrow/internal/aigateway"
	"bizgrow/internal/service/ai"
	"bizgrow/pkg/logger"
)

// FunctionsHandler 三个 AI 接口
type FunctionsHandler struct {
	svc    *ai.Service
	logger *zap.Logger
}

func NewFunctionsHandler(svc *ai.Service, logger *zap.Logger) *FunctionsHandler {
	return &FunctionsHandler{svc: svc, logger: logger}
}

// AnalyzeSentiment handles POST /functions/analyze-sentiment
func (h *FunctionsHandler) AnalyzeSentiment(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}

	sentiment, err := h.svc.AnalyzeSentiment(c.Request.Context(), req.Text)
	if err != nil {
		h.writeError(c, "analyze-sentiment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sentiment": sentiment})
}

// GenerateContent handles POST /functions/generate-content
func (h *FunctionsHandler) GenerateContent(c *gin.Context) {
	var req ai.ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type and businessInfo are required"})
		return
	}

	content, err := h.svc.GenerateContent(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "generate-content", err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// SetGoal handles POST /functions/set-goal
func (h *FunctionsHandler) SetGoal(c *gin.Context) {
	var req ai.GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Goal is required"})
		return
	}

	roadmap, err := h.svc.SetGoal(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "set-goal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roadmap": roadmap})
}

func (h *FunctionsHandler) writeError(c *gin.Context, function string, err error) {
	switch {
	case ai.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, aigateway.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again later."})
	case errors.Is(err, aigateway.ErrQuotaExceeded):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "AI credits depleted. Please add credits to continue."})
	default:
		logger.WithTrace(c.Request.Context(), h.logger).Error("AI function failed",
			zap.String("function", function),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
