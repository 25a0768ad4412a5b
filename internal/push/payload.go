// Package push delivers notifications to the operating system through Web Push.
package push

import (
	"encoding/json"

	"bizgrow/internal/model"
)

const (
	DefaultIcon = "/favicon.ico"
	DefaultURL  = "/"
)

// Payload service worker 在 push 事件里读取的 JSON
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Tag   string      `json:"tag"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
	URL   string      `json:"url"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	URL       string `json:"url"`
	MessageID string `json:"message_id,omitempty"`
}

// BuildPayload icon 和 badge 使用同一个图标
func BuildPayload(m model.Message, icon string) ([]byte, error) {
	if icon == "" {
		icon = DefaultIcon
	}
	url := m.URL
	if url == "" {
		url = DefaultURL
	}
	return json.Marshal(Payload{
		Title: m.Title,
		Body:  m.Body,
		Tag:   m.Tag,
		Icon:  icon,
		Badge: icon,
		URL:   url,
		Data:  PayloadData{URL: url, MessageID: m.ID},
	})
}
