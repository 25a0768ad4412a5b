package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bizgrow/internal/handler"
	"bizgrow/pkg/otel"
)

// Pinger readyz 的依赖检查，*pgxpool.Pool 满足该接口
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Session       *handler.SessionHandler
	Permission    *handler.PermissionHandler
	Notifications *handler.NotificationHandler
	Functions     *handler.FunctionsHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, db Pinger, jwtSecret string) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), CORSMiddleware())

	r.GET("/healthz", healthz)
	r.HEAD("/healthz", healthz)
	r.GET("/readyz", readyz(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// AI functions 由网关 key 保护，不要求登录
	if h.Functions != nil {
		fn := r.Group("/functions")
		fn.POST("/analyze-sentiment", h.Functions.AnalyzeSentiment)
		fn.POST("/generate-content", h.Functions.GenerateContent)
		fn.POST("/set-goal", h.Functions.SetGoal)
	}

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		if h.Session != nil {
			auth.GET("/ws", h.Session.ServeWS)
		}
		if h.Permission != nil {
			auth.GET("/push/permission", h.Permission.GetPermission)
			auth.POST("/push/permission", h.Permission.RequestPermission)
			auth.DELETE("/push/permission", h.Permission.ResetPermission)
			auth.POST("/push/test", h.Permission.SendTest)
			auth.GET("/push/vapid-key", h.Permission.VAPIDKey)
		}
		if h.Notifications != nil {
			auth.GET("/notifications", h.Notifications.List)
			auth.POST("/notifications/:id/read", h.Notifications.MarkRead)
		}
	}

	return &Router{Engine: r}
}

func healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func readyz(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
