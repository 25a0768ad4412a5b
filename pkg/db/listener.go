package db

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"bizgrow/pkg/metrics"
)

// ErrUnknownChannel 订阅了 Listener 没有 LISTEN 的 channel
var ErrUnknownChannel = errors.New("channel is not listened")

// Notification 一条 NOTIFY 消息
type Notification struct {
	Channel    string
	Payload    string
	ReceivedAt time.Time
}

// ListenConn LISTEN 所需的最小连接接口，*pgx.Conn 满足该接口
type ListenConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Connector 获取一条专用于 LISTEN 的连接
type Connector func(ctx context.Context) (ListenConn, error)

// PoolConnector 从连接池中劫持一条连接，劫持后连接不再归还连接池
func PoolConnector(pool *pgxpool.Pool) Connector {
	return func(ctx context.Context) (ListenConn, error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return c.Hijack(), nil
	}
}

// Listener 在一条专用连接上 LISTEN 一组固定的 channel，并把通知分发给进程内的订阅者。
// 断线后以指数退避重连；订阅者不需要关心重连。
type Listener struct {
	connect    Connector
	channels   map[string]struct{}
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.RWMutex
	subs   map[string]map[uint64]*Stream
	nextID uint64
}

// NewListener 创建 Listener，channels 在 Run 时统一 LISTEN
func NewListener(connect Connector, logger *zap.Logger, channels ...string) *Listener {
	set := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		set[ch] = struct{}{}
	}
	return &Listener{
		connect:    connect,
		channels:   set,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		subs:       make(map[string]map[uint64]*Stream),
	}
}

// WithBackoff 设置重连退避区间
func (l *Listener) WithBackoff(min, max time.Duration) *Listener {
	l.minBackoff = min
	l.maxBackoff = max
	return l
}

// Run 阻塞直到 ctx 结束
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		connected, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Change feed listener stopped")
			return nil
		}
		if connected {
			backoff = l.minBackoff
		}

		l.logger.Warn("Change feed connection lost, reconnecting",
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		metrics.ChangeFeedReconnects.Inc()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) (bool, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for ch := range l.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return false, fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	l.logger.Info("Change feed listening", zap.Int("channels", len(l.channels)))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		l.dispatch(Notification{
			Channel:    n.Channel,
			Payload:    n.Payload,
			ReceivedAt: time.Now(),
		})
	}
}

func (l *Listener) dispatch(n Notification) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.subs[n.Channel] {
		s.push(n)
	}
}

// Subscribe 注册一个订阅者。返回的 Stream 是惰性、不可重启、无界的通知序列。
func (l *Listener) Subscribe(channel string) (*Stream, error) {
	if _, ok := l.channels[channel]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	s := &Stream{
		id:      l.nextID,
		channel: channel,
		owner:   l,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[uint64]*Stream)
	}
	l.subs[channel][s.id] = s
	return s, nil
}

// Subscribers 返回某个 channel 当前的订阅者数量
func (l *Listener) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[channel])
}

func (l *Listener) remove(s *Stream) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs[s.channel], s.id)
}

// Stream 单个订阅者的邮箱
type Stream struct {
	id      uint64
	channel string
	owner   *Listener

	mu     sync.Mutex
	queue  []Notification
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *Stream) Channel() string { return s.channel }

func (s *Stream) push(n Notification) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next 阻塞直到有新通知；Stream 关闭或 ctx 结束时返回 false
func (s *Stream) Next(ctx context.Context) (Notification, bool) {
	for {
		select {
		case <-s.done:
			return Notification{}, false
		default:
		}

		s.mu.Lock()
		if len(s.queue) > 0 {
			n := s.queue[0]
			s.queue[0] = Notification{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return n, true
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-s.done:
			return Notification{}, false
		case <-ctx.Done():
			return Notification{}, false
		}
	}
}

// All 以 range-over-func 的方式遍历通知
func (s *Stream) All(ctx context.Context) iter.Seq[Notification] {
	return func(yield func(Notification) bool) {
		for {
			n, ok := s.Next(ctx)
			if !ok || !yield(n) {
				return
			}
		}
	}
}

// Close 取消订阅，幂等
func (s *Stream) Close() {
	s.once.Do(func() {
		s.owner.remove(s)
		close(s.done)
	})
}
