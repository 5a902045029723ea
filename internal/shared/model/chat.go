package model

import "time"

// ChatMessage 站内私信
//
// 消息体不可变；唯一允许的变更是接收方查看后把 Read 置为 true。
type ChatMessage struct {
	ID         string    `json:"id" db:"id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Body       string    `json:"body" db:"body"`
	Read       bool      `json:"read" db:"is_read"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Conversation 会话摘要（按对端聚合）
type Conversation struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	UnreadCount int       `json:"unread_count"`
	LastAt      time.Time `json:"last_at"`
}
