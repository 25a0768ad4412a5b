package model

import "time"

// Message 由分类器生成、交给 presenter 展示的通知。创建后不再修改。
type Message struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Tag          string    `json:"tag"`
	TargetUserID string    `json:"target_user_id"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// Toast 应用内提示
type Toast struct {
	Title   string `json:"title"`
	Body    string `json:"description"`
	Tag     string `json:"tag,omitempty"`
	Variant string `json:"variant,omitempty"`
}

const ToastVariantDestructive = "destructive"

// ToastFrom 把通知转换成 toast
func ToastFrom(m Message) Toast {
	return Toast{Title: m.Title, Body: m.Body, Tag: m.Tag}
}

// PushSubscription 浏览器 pushManager.subscribe() 返回的订阅
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Valid 三个字段都必须存在
func (s PushSubscription) Valid() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}
