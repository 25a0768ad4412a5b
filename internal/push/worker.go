package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "bizgrow/contracts/mq"
	"bizgrow/internal/model"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/mq"
	"bizgrow/pkg/util"
)

const (
	handlerName = "notification_push"
	maxRetries  = 5
)

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, id string) bool
	Release(ctx context.Context, handler, id string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError, failedAt string) error
}

type Sender interface {
	Push(ctx context.Context, userID, deviceID string, m model.Message) error
}

// WorkerHandler 消费 notification.push。重投的消息通过 Redis 去重，
// 可重试的失败 nack 重新入队，超过次数或不可重试的转入 DLQ。
type WorkerHandler struct {
	sender  Sender
	deduper Deduper
	retries RetryCounter
	dlq     DeadLetterPublisher
	sleep   func(time.Duration)
	logger  *zap.Logger
}

func NewWorkerHandler(sender Sender, deduper Deduper, retries RetryCounter, dlq DeadLetterPublisher, logger *zap.Logger) *WorkerHandler {
	return &WorkerHandler{
		sender:  sender,
		deduper: deduper,
		retries: retries,
		dlq:     dlq,
		sleep:   time.Sleep,
		logger:  logger,
	}
}

// Handle 实现 mq.MessageHandler
func (h *WorkerHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.NotificationPushPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("message_id", p.MessageID),
		zap.String("user_id", p.UserID),
		zap.String("device_id", p.DeviceID),
	)

	id := DeliveryID(p.MessageID, p.DeviceID)
	if !h.deduper.AcquireOnce(ctx, handlerName, id) {
		return nil
	}

	err := h.sender.Push(ctx, p.UserID, p.DeviceID, model.Message{
		ID:           p.MessageID,
		Title:        p.Title,
		Body:         p.Body,
		Tag:          p.Tag,
		TargetUserID: p.UserID,
		URL:          p.URL,
		CreatedAt:    p.CreatedAt,
	})
	if errors.Is(err, ErrNoSubscription) {
		log.Info("Device has no push subscription, dropping")
		return nil
	}
	if AllExpired(err) {
		// 失效订阅已被删除，重投也不会成功
		log.Info("All push subscriptions expired, dropping", zap.Error(err))
		return nil
	}
	if err != nil {
		// 释放去重键，让重投的消息可以再次处理
		h.deduper.Release(ctx, handlerName, id)
		return err
	}

	if err := h.retries.Reset(ctx, util.FormatRetryKey(handlerName, id)); err != nil {
		log.Debug("Failed to reset retry counter", zap.Error(err))
	}
	log.Info("Push delivered")
	return nil
}

// OnFailure 实现 mq.FailureHandler，返回 true 表示重新入队
func (h *WorkerHandler) OnFailure(ctx context.Context, messageID string, body []byte, cause error) bool {
	retryable, errType := util.IsRetryableError(cause)
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("delivery_id", messageID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(cause),
	)

	retryCount, err := h.retries.IncrementAndGet(ctx, util.FormatRetryKey(handlerName, messageID))
	if err != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(err))
		retryCount = 1
	}

	if util.ShouldRetry(retryCount, maxRetries, retryable) {
		log.Warn("Push failed, requeueing", zap.Int64("retry_count", retryCount))
		h.sleep(backoff(retryCount))
		return true
	}

	if err := h.dlq.PublishToDLQ(ctx, mq.RoutingKeyNotificationPush, body, cause.Error(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		// DLQ 不可用时保留消息
		log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		return true
	}
	log.Error("Push sent to DLQ", zap.Int64("retry_count", retryCount))
	return false
}

func backoff(retryCount int64) time.Duration {
	d := time.Duration(retryCount) * 200 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
