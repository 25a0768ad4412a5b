package db

// 以下结构对应变更流中 new_row 的字段，只声明通知需要的列。
// 表本身由业务库维护，这里不做迁移。

// CommunityLike community_likes 行
type CommunityLike struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
	UserID string `json:"user_id"`
}

// CommunityPost community_posts 行
type CommunityPost struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Transaction transactions 行
type Transaction struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transaction_id"`
}
