// Package hub fans toasts out to the websocket connections of a session.
package hub

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bizgrow/internal/model"
	"bizgrow/internal/session"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS 与 REST 接口一致，放开
	},
}

// Hub 按会话 key（user:device）索引的连接表，实现 presenter.ToastSink
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.key] == nil {
		h.clients[c.key] = make(map[*Client]struct{})
	}
	h.clients[c.key][c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[c.key], c)
	if len(h.clients[c.key]) == 0 {
		delete(h.clients, c.key)
	}
}

// Toast 发送给该会话的所有连接（同一浏览器 profile 的多个标签页）
func (h *Hub) Toast(_ context.Context, s *session.Session, t model.Toast) {
	h.Send(s.Key(), Frame{Type: FrameToast, Data: t})
}

// Send 返回成功入队的连接数
func (h *Hub) Send(key string, f Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients[key] {
		if c.enqueue(f) {
			sent++
			continue
		}
		h.logger.Warn("WebSocket client too slow, dropping frame",
			zap.String("session", key),
			zap.String("type", f.Type),
		)
	}
	return sent
}

func (h *Hub) IsConnected(key string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key]) > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
