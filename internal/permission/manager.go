// Package permission implements the push permission lifecycle of a browser profile.
package permission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizgrow/internal/model"
	"bizgrow/internal/session"
	"bizgrow/pkg/logger"
)

var (
	// ErrPermissionDenied 权限已被拒绝，只有显式 Reset 才能重新申请
	ErrPermissionDenied = errors.New("push permission denied")
	ErrInvalidDecision  = errors.New("decision must be granted or denied")
)

var (
	grantedToast = model.Toast{
		Title: "Notifications enabled!",
		Body:  "You'll receive updates even when the app is closed",
	}
	deniedToast = model.Toast{
		Title:   "Permission denied",
		Body:    "Please enable notifications in your browser settings",
		Variant: model.ToastVariantDestructive,
	}
)

type Store interface {
	Load(ctx context.Context, userID, deviceID string) (session.Permission, error)
	Save(ctx context.Context, userID, deviceID string, p session.Permission) error
}

// Subscriptions 服务端保存的推送订阅
type Subscriptions interface {
	Upsert(ctx context.Context, userID, deviceID string, sub model.PushSubscription) error
	DeleteDevice(ctx context.Context, userID, deviceID string) (int64, error)
}

type ToastSink interface {
	Toast(ctx context.Context, s *session.Session, t model.Toast)
}

type Presenter interface {
	Present(ctx context.Context, s *session.Session, m model.Message)
}

// Result 一次权限操作后的状态，Toast 为本次需要展示的提示
type Result struct {
	Permission session.Permission `json:"permission"`
	Toast      *model.Toast       `json:"toast,omitempty"`
}

type Manager struct {
	store     Store
	subs      Subscriptions
	toasts    ToastSink
	presenter Presenter
	logger    *zap.Logger
}

func NewManager(store Store, subs Subscriptions, toasts ToastSink, presenter Presenter, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		subs:      subs,
		toasts:    toasts,
		presenter: presenter,
		logger:    logger,
	}
}

// Load 会话启动时读取持久化的权限状态，读取失败按 default 处理
func (m *Manager) Load(ctx context.Context, userID, deviceID string) session.Permission {
	p, err := m.store.Load(ctx, userID, deviceID)
	if err != nil {
		m.logger.Warn("Failed to load push permission, assuming default",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return session.PermissionDefault
	}
	return p
}

// Request 处理用户的授权操作。
// default -> granted 保存订阅（尽力而为，失败不回滚）；default -> denied 提示一次；
// denied 状态下任何请求返回 ErrPermissionDenied。
func (m *Manager) Request(ctx context.Context, s *session.Session, decision session.Permission, sub *model.PushSubscription) (Result, error) {
	log := logger.WithTrace(ctx, m.logger).With(
		zap.String("user_id", s.UserID),
		zap.String("device_id", s.DeviceID),
		zap.String("decision", string(decision)),
	)

	if decision != session.PermissionGranted && decision != session.PermissionDenied {
		return Result{Permission: s.Permission()}, ErrInvalidDecision
	}

	switch s.Permission() {
	case session.PermissionDenied:
		return Result{Permission: session.PermissionDenied}, ErrPermissionDenied
	case session.PermissionGranted:
		if decision == session.PermissionGranted {
			m.registerSubscription(ctx, log, s, sub)
		} else {
			log.Info("Ignoring denial for an already granted profile")
		}
		return Result{Permission: session.PermissionGranted}, nil
	}

	if !s.CompareAndSetPermission(session.PermissionDefault, decision) {
		// 另一个标签页抢先完成了迁移
		return m.Request(ctx, s, decision, sub)
	}
	if err := m.store.Save(ctx, s.UserID, s.DeviceID, decision); err != nil {
		log.Warn("Failed to persist push permission", zap.Error(err))
	}
	log.Info("Push permission changed")

	toast := deniedToast
	if decision == session.PermissionGranted {
		m.registerSubscription(ctx, log, s, sub)
		toast = grantedToast
	}
	m.toasts.Toast(ctx, s, toast)
	return Result{Permission: decision, Toast: &toast}, nil
}

func (m *Manager) registerSubscription(ctx context.Context, log *zap.Logger, s *session.Session, sub *model.PushSubscription) {
	if sub == nil || !sub.Valid() {
		log.Warn("Granted without a usable push subscription")
		return
	}
	if err := m.subs.Upsert(ctx, s.UserID, s.DeviceID, *sub); err != nil {
		log.Warn("Failed to persist push subscription", zap.Error(err))
		return
	}
	log.Debug("Push subscription registered")
}

// Reset 用户在浏览器设置中重新开启通知后的显式操作：回到 default 并清理订阅
func (m *Manager) Reset(ctx context.Context, s *session.Session) (Result, error) {
	s.SetPermission(session.PermissionDefault)
	if err := m.store.Save(ctx, s.UserID, s.DeviceID, session.PermissionDefault); err != nil {
		return Result{Permission: session.PermissionDefault}, err
	}
	n, err := m.subs.DeleteDevice(ctx, s.UserID, s.DeviceID)
	if err != nil {
		m.logger.Warn("Failed to clear push subscriptions", zap.String("user_id", s.UserID), zap.Error(err))
	}
	m.logger.Info("Push permission reset",
		zap.String("user_id", s.UserID),
		zap.String("device_id", s.DeviceID),
		zap.Int64("subscriptions_removed", n),
	)
	return Result{Permission: session.PermissionDefault}, nil
}

// SendTest 走完整的展示流程发送一条测试通知
func (m *Manager) SendTest(ctx context.Context, s *session.Session) model.Message {
	msg := NewTestMessage(s.UserID)
	m.presenter.Present(ctx, s, msg)
	return msg
}

func NewTestMessage(userID string) model.Message {
	return model.Message{
		ID:           uuid.NewString(),
		Title:        "Test Notification",
		Body:         "This is a test push notification from SmartBizGrow!",
		Tag:          "test",
		TargetUserID: userID,
		URL:          "/",
		CreatedAt:    time.Now(),
	}
}
