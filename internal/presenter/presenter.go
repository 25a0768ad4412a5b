// Package presenter shows a notification to the session user: always as an
// in-app toast, and as an OS notification when push is granted and registered.
package presenter

import (
	"context"

	"go.uber.org/zap"

	"bizgrow/internal/model"
	"bizgrow/internal/session"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/metrics"
)

// ToastSink 渲染应用内 toast
type ToastSink interface {
	Toast(ctx context.Context, s *session.Session, t model.Toast)
}

// Registrations 查询浏览器 profile 是否已有推送订阅
type Registrations interface {
	HasSubscription(ctx context.Context, userID, deviceID string) (bool, error)
}

// Pusher 发送系统级推送通知
type Pusher interface {
	Push(ctx context.Context, userID, deviceID string, m model.Message) error
}

// Recorder 把通知写入收件箱
type Recorder interface {
	Record(ctx context.Context, m model.Message) error
}

type Presenter struct {
	toasts        ToastSink
	registrations Registrations
	pusher        Pusher
	recorder      Recorder
	logger        *zap.Logger
}

type Option func(*Presenter)

// WithRecorder 启用收件箱记录
func WithRecorder(r Recorder) Option {
	return func(p *Presenter) { p.recorder = r }
}

func New(toasts ToastSink, registrations Registrations, pusher Pusher, logger *zap.Logger, opts ...Option) *Presenter {
	p := &Presenter{
		toasts:        toasts,
		registrations: registrations,
		pusher:        pusher,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Present toast 无条件展示且不去重；系统通知分支的任何失败只记录日志。
func (p *Presenter) Present(ctx context.Context, s *session.Session, m model.Message) {
	log := logger.WithTrace(ctx, p.logger).With(
		zap.String("user_id", s.UserID),
		zap.String("device_id", s.DeviceID),
		zap.String("tag", m.Tag),
	)

	p.toasts.Toast(ctx, s, model.ToastFrom(m))
	metrics.IncToast(m.Tag)

	p.push(ctx, log, s, m)

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, m); err != nil {
			log.Warn("Failed to record notification", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}

func (p *Presenter) push(ctx context.Context, log *zap.Logger, s *session.Session, m model.Message) {
	if s.Permission() != session.PermissionGranted || p.pusher == nil {
		metrics.IncPush("skipped")
		return
	}

	ok, err := p.registrations.HasSubscription(ctx, s.UserID, s.DeviceID)
	if err != nil {
		log.Warn("Push registration lookup failed", zap.Error(err))
		metrics.IncPush("failed")
		return
	}
	if !ok {
		log.Debug("No push registration for device")
		metrics.IncPush("skipped")
		return
	}

	if err := p.pusher.Push(ctx, s.UserID, s.DeviceID, m); err != nil {
		log.Warn("OS notification failed", zap.String("message_id", m.ID), zap.Error(err))
		metrics.IncPush("failed")
		return
	}
	metrics.IncPush("sent")
}
