// Package relay runs the change-feed to notification pipeline for one session.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bizgrow/internal/changefeed"
	"bizgrow/internal/model"
	"bizgrow/internal/session"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/metrics"
	"bizgrow/pkg/trace"
)

type Classifier interface {
	Classify(ctx context.Context, ev changefeed.Event, userID string) *model.Message
}

type Presenter interface {
	Present(ctx context.Context, s *session.Session, m model.Message)
}

type Relay struct {
	subscriber    *changefeed.Subscriber
	classifier    Classifier
	presenter     Presenter
	tables        []string
	lookupTimeout time.Duration
	logger        *zap.Logger
}

func New(subscriber *changefeed.Subscriber, classifier Classifier, presenter Presenter, logger *zap.Logger) *Relay {
	return &Relay{
		subscriber:    subscriber,
		classifier:    classifier,
		presenter:     presenter,
		tables:        changefeed.Tables,
		lookupTimeout: 5 * time.Second,
		logger:        logger,
	}
}

// Run 为会话打开全部订阅，阻塞到 ctx 结束，然后关闭订阅并等待分发 goroutine 退出。
func (r *Relay) Run(ctx context.Context, s *session.Session) error {
	ctx, _ = trace.Ensure(ctx)
	log := logger.WithTrace(ctx, r.logger).With(
		zap.String("user_id", s.UserID),
		zap.String("device_id", s.DeviceID),
	)

	subs := make([]*changefeed.Subscription, 0, len(r.tables))
	for _, table := range r.tables {
		sub, err := r.subscriber.OpenSubscription(ctx, table, r.handle(s, log))
		if err != nil {
			for _, opened := range subs {
				r.subscriber.Close(opened)
				<-opened.Done()
			}
			return err
		}
		subs = append(subs, sub)
	}

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	log.Info("Relay started", zap.Int("subscriptions", len(subs)))

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		g.Go(func() error {
			<-gctx.Done()
			r.subscriber.Close(sub)
			<-sub.Done()
			return nil
		})
	}
	err := g.Wait()

	log.Info("Relay stopped")
	return err
}

// Starter 把 relay 绑定到在线会话：会话第一次上线时在后台运行 Run，最后一个连接离开时取消并等待退出
func (r *Relay) Starter(ctx context.Context) session.Starter {
	return func(s *session.Session) func() {
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := r.Run(ctx, s); err != nil {
				r.logger.Error("Relay failed",
					zap.String("user_id", s.UserID),
					zap.String("device_id", s.DeviceID),
					zap.Error(err),
				)
			}
		}()
		return func() {
			cancel()
			<-done
		}
	}
}

func (r *Relay) handle(s *session.Session, log *zap.Logger) changefeed.Handler {
	return func(ctx context.Context, ev changefeed.Event) {
		// 会话结束时允许进行中的查询跑完，但结果丢弃
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		msg := r.classifier.Classify(lookupCtx, ev, s.UserID)
		cancel()

		if msg == nil {
			return
		}
		if ctx.Err() != nil {
			log.Debug("Session closed, discarding notification", zap.String("table", ev.Table))
			return
		}
		r.presenter.Present(ctx, s, *msg)
	}
}
