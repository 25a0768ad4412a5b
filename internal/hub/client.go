package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Frame 服务端推给浏览器的消息
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	FrameToast   = "toast"
	FrameSession = "session"
)

// Client 一条 websocket 连接
type Client struct {
	key    string
	conn   *websocket.Conn
	send   chan Frame
	logger *zap.Logger
}

func NewClient(key string, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		key:    key,
		conn:   conn,
		send:   make(chan Frame, sendBuffer),
		logger: logger,
	}
}

// enqueue 缓冲满时丢弃，返回是否入队
func (c *Client) enqueue(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// Enqueue 只发给这一条连接，例如连接建立时的会话状态
func (c *Client) Enqueue(f Frame) bool {
	return c.enqueue(f)
}

// Serve 阻塞到连接断开或 ctx 结束，返回前关闭连接
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump()
	cancel()
	<-writerDone
	_ = c.conn.Close()
}

// readPump 浏览器不发送业务消息，这里只处理 pong 和关闭
func (c *Client) readPump() {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket read error", zap.String("session", c.key), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case f := <-c.send:
			raw, err := json.Marshal(f)
			if err != nil {
				c.logger.Error("Failed to encode frame", zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.logger.Debug("WebSocket write error", zap.String("session", c.key), zap.Error(err))
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
