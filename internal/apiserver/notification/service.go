// Package notification 站内通知：持久化扇出 + 实时推送
//
// 通知先落库再推送；推送是尽力而为的，离线用户下次拉取
// /api/notifications 时补齐。
package notification

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/containerd/errdefs"

	"leave-admin/internal/shared/model"
)

// Store 通知服务所需的存储接口
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	CreateNotifications(ctx context.Context, ns []*model.Notification) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]*model.User, error)
	ListUsersByRole(ctx context.Context, roles ...model.UserRole) ([]*model.User, error)
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// Pusher 实时推送接口（由 server.PushGateway 实现）
type Pusher interface {
	SendToUser(userID string, payload interface{})
}

// Metrics 通知计数指标
type Metrics interface {
	RecordNotification(notifType string)
}

// Service 通知服务
type Service struct {
	store   Store
	pusher  Pusher
	metrics Metrics
}

// NewService 创建通知服务
func NewService(store Store, pusher Pusher, metrics Metrics) *Service {
	return &Service{store: store, pusher: pusher, metrics: metrics}
}

// Notify 给单个用户创建通知并推送
func (s *Service) Notify(ctx context.Context, userID string, typ model.NotificationType, title, message string) (*model.Notification, error) {
	n := newNotification(userID, typ, title, message)
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	s.record(typ)
	s.push(n)
	return n, nil
}

// NotifyAll 给全部在职用户创建通知（单事务），返回创建条数
//
// excludeUserID 非空时跳过该用户（广播人自己不收通知）。
func (s *Service) NotifyAll(ctx context.Context, excludeUserID string, typ model.NotificationType, title, message string) (int, error) {
	users, err := s.store.ListUsers(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var ns []*model.Notification
	for _, u := range users {
		if u.ID == excludeUserID {
			continue
		}
		ns = append(ns, newNotification(u.ID, typ, title, message))
	}
	if err := s.store.CreateNotifications(ctx, ns); err != nil {
		return 0, fmt.Errorf("create notifications: %w", err)
	}

	s.record(typ)
	for _, n := range ns {
		s.push(n)
	}
	return len(ns), nil
}

// NotifySelected 给指定用户列表创建通知（单事务），返回创建条数
//
// 不存在的用户 ID 视为无效参数，整批拒绝。
func (s *Service) NotifySelected(ctx context.Context, userIDs []string, typ model.NotificationType, title, message string) (int, error) {
	var ns []*model.Notification
	for _, id := range userIDs {
		user, err := s.store.GetUserByID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("get user %s: %w", id, err)
		}
		if user == nil {
			return 0, fmt.Errorf("user %s: %w", id, errdefs.ErrNotFound)
		}
		ns = append(ns, newNotification(id, typ, title, message))
	}
	if err := s.store.CreateNotifications(ctx, ns); err != nil {
		return 0, fmt.Errorf("create notifications: %w", err)
	}

	s.record(typ)
	for _, n := range ns {
		s.push(n)
	}
	return len(ns), nil
}

// push 实时推送通知帧（尽力而为）
func (s *Service) push(n *model.Notification) {
	if s.pusher == nil {
		return
	}
	s.pusher.SendToUser(n.UserID, map[string]interface{}{
		"type":              "notification",
		"notification_id":   n.ID,
		"notification_type": n.Type,
		"title":             n.Title,
		"message":           n.Message,
		"created_at":        n.CreatedAt,
	})
}

func (s *Service) record(typ model.NotificationType) {
	if s.metrics != nil {
		s.metrics.RecordNotification(string(typ))
	}
}

var idSeq atomic.Uint64

// generateID 批量插入时纳秒时间戳可能相同，附加序号保证唯一
func generateID() string {
	return fmt.Sprintf("ntf-%d-%d", time.Now().UnixNano(), idSeq.Add(1))
}

func newNotification(userID string, typ model.NotificationType, title, message string) *model.Notification {
	return &model.Notification{
		ID:        generateID(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// 领域事件通知文案（审批工作流调用）
const (
	TitleRequestReceived = "Request received"
	TitleRequestApproved = "Request approved"
	TitleRequestRejected = "Request rejected"
	TitleNewRequest      = "New request pending review"
)

// NotifyRequestCreated 请假创建时的扇出：申请人回执 + 审批角色提醒
//
// 推送失败不影响返回；任何一步的存储错误都向上抛出。
func (s *Service) NotifyRequestCreated(ctx context.Context, ownerID string, kind model.LeaveKind, recordID string) error {
	if _, err := s.Notify(ctx, ownerID, model.NotificationRequestPending,
		TitleRequestReceived,
		fmt.Sprintf("Your %s request %s has been received and is pending approval", kindLabel(kind), recordID)); err != nil {
		return err
	}

	reviewers, err := listReviewers(ctx, s.store)
	if err != nil {
		return err
	}

	var ns []*model.Notification
	for _, u := range reviewers {
		if u.ID == ownerID {
			continue
		}
		ns = append(ns, newNotification(u.ID, model.NotificationNewRequest,
			TitleNewRequest,
			fmt.Sprintf("A new %s request %s is awaiting review", kindLabel(kind), recordID)))
	}
	if err := s.store.CreateNotifications(ctx, ns); err != nil {
		return fmt.Errorf("create reviewer notifications: %w", err)
	}
	for _, n := range ns {
		s.push(n)
	}
	return nil
}

// NotifyRequestReviewed 审批结果通知申请人
func (s *Service) NotifyRequestReviewed(ctx context.Context, ownerID string, kind model.LeaveKind, recordID string, status model.LeaveStatus, reason *string) error {
	typ := model.NotificationRequestApproved
	title := TitleRequestApproved
	message := fmt.Sprintf("Your %s request %s has been approved", kindLabel(kind), recordID)

	switch status {
	case model.LeaveStatusRejected:
		typ = model.NotificationRequestRejected
		title = TitleRequestRejected
		message = fmt.Sprintf("Your %s request %s has been rejected", kindLabel(kind), recordID)
		if reason != nil && *reason != "" {
			message += ": " + *reason
		}
	case model.LeaveStatusMedicalBoardRequired:
		typ = model.NotificationGeneral
		title = "Medical board review required"
		message = fmt.Sprintf("Your %s request %s requires a medical board evaluation", kindLabel(kind), recordID)
	}

	_, err := s.Notify(ctx, ownerID, typ, title, message)
	return err
}

func kindLabel(kind model.LeaveKind) string {
	switch kind {
	case model.LeaveKindMedical:
		return "medical leave"
	case model.LeaveKindVacation:
		return "vacation"
	case model.LeaveKindLicense:
		return "license"
	}
	return string(kind)
}

// listReviewers 取全部具备审批权限的用户
func listReviewers(ctx context.Context, store Store) ([]*model.User, error) {
	users, err := store.ListUsersByRole(ctx, model.UserRoleAdmin, model.UserRoleHR)
	if err != nil {
		return nil, fmt.Errorf("list reviewers: %w", err)
	}
	return users, nil
}
