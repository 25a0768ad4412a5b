package mq

import "time"

// NotificationPushPayload notification.push 消息体：一条待投递到 OS 的推送
type NotificationPushPayload struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag"`
	URL       string    `json:"url"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
