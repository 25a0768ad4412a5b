// Package changefeed turns store notifications into per-table INSERT event subscriptions.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"bizgrow/pkg/db"
	"bizgrow/pkg/metrics"
)

// ErrUnknownTable 订阅了不在监听列表中的表
var ErrUnknownTable = errors.New("changefeed: unknown table")

// Stream 单个订阅者的通知序列，*db.Stream 满足该接口
type Stream interface {
	Next(ctx context.Context) (db.Notification, bool)
	Close()
}

// Source 存储客户端层。断线重连由 Source 负责，Subscriber 不做重试。
type Source interface {
	Subscribe(channel string) (Stream, error)
}

type listenerSource struct {
	l *db.Listener
}

func (s listenerSource) Subscribe(channel string) (Stream, error) {
	return s.l.Subscribe(channel)
}

// FromListener 把 db.Listener 适配为 Source
func FromListener(l *db.Listener) Source {
	return listenerSource{l: l}
}

// Handler 处理一条事件。同一个订阅内按到达顺序串行调用。
type Handler func(ctx context.Context, ev Event)

type Subscriber struct {
	source Source
	tables []string
	logger *zap.Logger
}

func NewSubscriber(source Source, logger *zap.Logger, tables ...string) *Subscriber {
	if len(tables) == 0 {
		tables = Tables
	}
	return &Subscriber{
		source: source,
		tables: tables,
		logger: logger,
	}
}

// Subscription 一张表上的活动订阅
type Subscription struct {
	table  string
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) Table() string { return s.table }

// Done 在分发 goroutine 退出后关闭
func (s *Subscription) Done() <-chan struct{} { return s.done }

// OpenSubscription 订阅一张表的 INSERT 事件。onEvent 在专属 goroutine 中按顺序执行，
// 直到 Close 或 ctx 结束。
func (s *Subscriber) OpenSubscription(ctx context.Context, table string, onEvent Handler) (*Subscription, error) {
	if !slices.Contains(s.tables, table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	stream, err := s.source.Subscribe(table)
	if err != nil {
		if errors.Is(err, db.ErrUnknownChannel) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		table:  table,
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.drain(ctx, sub, onEvent)

	s.logger.Debug("Change feed subscription opened", zap.String("table", table))
	return sub, nil
}

func (s *Subscriber) drain(ctx context.Context, sub *Subscription, onEvent Handler) {
	defer close(sub.done)
	defer sub.stream.Close()

	for {
		n, ok := sub.stream.Next(ctx)
		if !ok {
			return
		}

		ev, err := DecodeEvent(n.Channel, n.Payload, n.ReceivedAt)
		if err != nil {
			s.logger.Warn("Dropping malformed change event",
				zap.String("table", sub.table),
				zap.Error(err),
			)
			metrics.IncClassification(sub.table, "malformed")
			continue
		}
		if ev.Operation != OperationInsert {
			s.logger.Debug("Ignoring non-insert change event",
				zap.String("table", ev.Table),
				zap.String("operation", ev.Operation),
			)
			continue
		}

		metrics.IncChangeEvent(ev.Table)
		onEvent(ctx, ev)
	}
}

// Close 关闭订阅，幂等。正在执行的 handler 可以跑完，之后不再有事件。
func (s *Subscriber) Close(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.cancel()
	sub.stream.Close()
	s.logger.Debug("Change feed subscription closed", zap.String("table", sub.table))
}
