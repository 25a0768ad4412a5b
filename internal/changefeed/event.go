package changefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// 被监听的业务表，同时也是 NOTIFY 的 channel 名
const (
	TableLikes        = "community_likes"
	TablePosts        = "community_posts"
	TableTransactions = "transactions"
)

const OperationInsert = "insert"

// Tables 会话启动时订阅的全部表
var Tables = []string{TableLikes, TablePosts, TableTransactions}

// Event 一行插入产生的变更事件
type Event struct {
	Table      string
	Operation  string
	NewRow     json.RawMessage
	ReceivedAt time.Time
}

// wirePayload 触发器 bizgrow_notify_insert() 发出的 JSON
type wirePayload struct {
	Table     string          `json:"table"`
	Operation string          `json:"operation"`
	NewRow    json.RawMessage `json:"new_row"`
}

// DecodeEvent 解析 NOTIFY payload。payload 缺表名时使用 channel 名。
func DecodeEvent(channel, payload string, receivedAt time.Time) (Event, error) {
	var w wirePayload
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Event{}, fmt.Errorf("decode change payload: %w", err)
	}
	if len(w.NewRow) == 0 || string(w.NewRow) == "null" {
		return Event{}, fmt.Errorf("change payload on %s has no new_row", channel)
	}
	table := w.Table
	if table == "" {
		table = channel
	}
	return Event{
		Table:      table,
		Operation:  strings.ToLower(w.Operation),
		NewRow:     w.NewRow,
		ReceivedAt: receivedAt,
	}, nil
}
