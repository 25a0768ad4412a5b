package push

import (
	"context"
	"time"

	mqcontracts "bizgrow/contracts/mq"
	"bizgrow/internal/model"
	"bizgrow/pkg/mq"
	"bizgrow/pkg/trace"
)

type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey, messageID string, payload any) error
}

// QueuedPusher 把推送交给 pushworker 异步投递，relay 不等待推送服务
type QueuedPusher struct {
	publisher Publisher
}

func NewQueuedPusher(publisher Publisher) *QueuedPusher {
	return &QueuedPusher{publisher: publisher}
}

func (q *QueuedPusher) Push(ctx context.Context, userID, deviceID string, m model.Message) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	payload := mqcontracts.NotificationPushPayload{
		MessageID: m.ID,
		UserID:    userID,
		DeviceID:  deviceID,
		Title:     m.Title,
		Body:      m.Body,
		Tag:       m.Tag,
		URL:       m.URL,
		TraceID:   trace.FromContext(ctx),
		CreatedAt: created,
	}
	return q.publisher.PublishWithContext(ctx, mq.RoutingKeyNotificationPush, DeliveryID(m.ID, deviceID), payload)
}

// DeliveryID 同一条消息发往不同设备是不同的投递
func DeliveryID(messageID, deviceID string) string {
	return messageID + ":" + deviceID
}
