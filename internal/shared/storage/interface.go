package storage

import (
	"context"
	"time"

	"leave-admin/internal/shared/model"
)

// LeaveFilter 请假记录列表过滤条件
type LeaveFilter struct {
	// UserID 非空时只返回该用户的记录
	UserID string
	// Status 非空时按审批状态过滤
	Status model.LeaveStatus
	Limit  int
	Offset int
}

// LeaveStats 审批统计投影（analytics 只读消费）
type LeaveStats struct {
	Kind          model.LeaveKind   `json:"kind"`
	CountByStatus map[string]int    `json:"count_by_status"`
	CountByMonth  map[string]int    `json:"count_by_month"`
	ApprovalRate  float64           `json:"approval_rate"`
	AvgLatency    time.Duration     `json:"-"`
	AvgLatencySec float64           `json:"avg_approval_latency_seconds"`
}

// PersistentStore 持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口（各 handler 再收窄到自己需要的子集）
//   - 具体实现在 repository/ 子包中，驱动在 driver/ 下
//   - 初始化时通过依赖注入传入实现
type PersistentStore interface {
	// === User ===
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserRole(ctx context.Context, id string, role model.UserRole) error
	SetUserActive(ctx context.Context, id string, active bool) error
	ListUsers(ctx context.Context, activeOnly bool) ([]*model.User, error)
	ListUsersByRole(ctx context.Context, roles ...model.UserRole) ([]*model.User, error)

	// === MedicalLeave / VacationPeriod / License ===
	CreateMedicalLeave(ctx context.Context, m *model.MedicalLeave) error
	GetMedicalLeave(ctx context.Context, id string) (*model.MedicalLeave, error)
	ListMedicalLeaves(ctx context.Context, f LeaveFilter) ([]*model.MedicalLeave, error)
	ReviewMedicalLeave(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error

	CreateVacationPeriod(ctx context.Context, v *model.VacationPeriod) error
	GetVacationPeriod(ctx context.Context, id string) (*model.VacationPeriod, error)
	ListVacationPeriods(ctx context.Context, f LeaveFilter) ([]*model.VacationPeriod, error)
	ReviewVacationPeriod(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason, seiNumber *string) error
	SetVacationMarkers(ctx context.Context, id string, isTaken, isExpired *bool) error

	CreateLicense(ctx context.Context, l *model.License) error
	GetLicense(ctx context.Context, id string) (*model.License, error)
	ListLicenses(ctx context.Context, f LeaveFilter) ([]*model.License, error)
	ReviewLicense(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error

	// === Chat ===
	CreateChatMessage(ctx context.Context, m *model.ChatMessage) error
	CreateChatMessages(ctx context.Context, msgs []*model.ChatMessage) error
	GetChatMessage(ctx context.Context, id string) (*model.ChatMessage, error)
	ListChatMessages(ctx context.Context, userID, otherUserID string, limit, offset int) ([]*model.ChatMessage, error)
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	MarkConversationRead(ctx context.Context, userID, otherUserID string) (int64, error)

	// === Notification ===
	CreateNotification(ctx context.Context, n *model.Notification) error
	CreateNotifications(ctx context.Context, ns []*model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)

	// === Analytics ===
	LeaveStats(ctx context.Context, kind model.LeaveKind) (*LeaveStats, error)

	Close() error
}
