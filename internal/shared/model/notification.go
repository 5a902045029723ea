package model

import "time"

// NotificationType 通知类型标签
type NotificationType string

const (
	NotificationRequestPending   NotificationType = "request_pending"
	NotificationRequestApproved  NotificationType = "request_approved"
	NotificationRequestRejected  NotificationType = "request_rejected"
	NotificationNewRequest       NotificationType = "new_request"
	NotificationVacationDeadline NotificationType = "vacation_deadline"
	NotificationGeneral          NotificationType = "general"
)

// ValidNotificationType 判断通知类型是否为已知取值
func ValidNotificationType(t NotificationType) bool {
	switch t {
	case NotificationRequestPending, NotificationRequestApproved,
		NotificationRequestRejected, NotificationNewRequest,
		NotificationVacationDeadline, NotificationGeneral:
		return true
	}
	return false
}

// Notification 站内通知
//
// 通知只由状态迁移的副作用或管理员广播产生，用户不能直接创建；
// 唯一允许的变更是把 Read 置为 true。
type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Read      bool             `json:"read" db:"is_read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
