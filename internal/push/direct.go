package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
	"bizgrow/internal/model"
	"bizgrow/pkg/config"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/metrics"
)

// ErrNoSubscription 该浏览器 profile 没有可用的推送订阅
var ErrNoSubscription = errors.New("no push subscription for device")

// DeliveryError 推送服务返回的非 2xx 响应
type DeliveryError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Retryable 429 和 5xx 可以重试
func (e *DeliveryError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Expired 订阅已失效，应当删除
func (e *DeliveryError) Expired() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// AllExpired 报告 Push 的失败是否全部来自已失效（404/410）的订阅
func AllExpired(err error) bool {
	switch e := err.(type) {
	case *DeliveryError:
		return e.Expired()
	case interface{ Unwrap() []error }:
		errs := e.Unwrap()
		if len(errs) == 0 {
			return false
		}
		for _, inner := range errs {
			if !AllExpired(inner) {
				return false
			}
		}
		return true
	case interface{ Unwrap() error }:
		return AllExpired(e.Unwrap())
	}
	return false
}

type SubscriptionStore interface {
	ListByDevice(ctx context.Context, userID, deviceID string) ([]dbcontracts.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// DirectPusher 使用 VAPID 直接调用浏览器厂商的推送服务
type DirectPusher struct {
	subs   SubscriptionStore
	cfg    config.PushConfig
	client webpush.HTTPClient
	logger *zap.Logger
}

func NewDirectPusher(subs SubscriptionStore, cfg config.PushConfig, client webpush.HTTPClient, logger *zap.Logger) *DirectPusher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * 60 * 24
	}
	return &DirectPusher{
		subs:   subs,
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Push 发送到该设备的所有订阅。失效订阅被删除；只要有一个端点成功就返回 nil。
func (p *DirectPusher) Push(ctx context.Context, userID, deviceID string, m model.Message) error {
	log := logger.WithTrace(ctx, p.logger).With(
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.String("message_id", m.ID),
	)

	subs, err := p.subs.ListByDevice(ctx, userID, deviceID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoSubscription
	}

	payload, err := BuildPayload(m, p.cfg.Icon)
	if err != nil {
		return err
	}

	var errs []error
	delivered := 0
	for _, s := range subs {
		err := p.send(ctx, payload, s, m.Tag)
		var de *DeliveryError
		switch {
		case err == nil:
			delivered++
		case errors.As(err, &de) && de.Expired():
			log.Info("Removing expired push subscription", zap.Int("status", de.StatusCode))
			metrics.IncPush("expired")
			if delErr := p.subs.DeleteByEndpoint(ctx, s.Endpoint); delErr != nil {
				log.Warn("Failed to delete expired subscription", zap.Error(delErr))
			}
			errs = append(errs, err)
		default:
			errs = append(errs, err)
		}
	}

	if delivered > 0 {
		return nil
	}
	return errors.Join(errs...)
}

func (p *DirectPusher) send(ctx context.Context, payload []byte, s dbcontracts.PushSubscription, tag string) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: s.Endpoint,
		Keys: webpush.Keys{
			P256dh: s.P256dh,
			Auth:   s.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.cfg.Subscriber,
		Topic:           topic(tag),
		TTL:             p.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{Endpoint: s.Endpoint, StatusCode: resp.StatusCode, Body: string(body)}
}

// topic 让推送服务对同 tag 未送达的消息只保留最新一条；Topic 最长 32 个 URL 安全字符
func topic(tag string) string {
	if len(tag) > 32 {
		return ""
	}
	for _, r := range tag {
		ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return ""
		}
	}
	return tag
}
