// Package chat 站内私信与广播
//
// 所有消息先持久化再推送：推送丢失只影响实时性，不影响
// 历史记录的完整性。
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/containerd/errdefs"

	"leave-admin/internal/shared/model"
)

// Store 聊天服务所需的存储接口
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]*model.User, error)
	CreateChatMessage(ctx context.Context, m *model.ChatMessage) error
	CreateChatMessages(ctx context.Context, msgs []*model.ChatMessage) error
	ListChatMessages(ctx context.Context, userID, otherUserID string, limit, offset int) ([]*model.ChatMessage, error)
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	MarkConversationRead(ctx context.Context, userID, otherUserID string) (int64, error)
}

// Pusher 实时推送接口（由 server.PushGateway 实现）
type Pusher interface {
	SendToUser(userID string, payload interface{})
}

// Service 聊天服务
type Service struct {
	store  Store
	pusher Pusher
}

// NewService 创建聊天服务
func NewService(store Store, pusher Pusher) *Service {
	return &Service{store: store, pusher: pusher}
}

// AnnotatedMessage 历史消息的视图：附带方向与发送人名称
type AnnotatedMessage struct {
	*model.ChatMessage
	IsSentByMe bool   `json:"is_sent_by_me"`
	SenderName string `json:"sender_name"`
}

// SendDirect 发送私信：校验、落库、推送给接收方
func (s *Service) SendDirect(ctx context.Context, senderID, receiverID, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message body is empty: %w", errdefs.ErrInvalidArgument)
	}
	if receiverID == "" || receiverID == senderID {
		return nil, fmt.Errorf("invalid receiver: %w", errdefs.ErrInvalidArgument)
	}

	sender, err := s.store.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", err)
	}
	if sender == nil {
		return nil, fmt.Errorf("sender %s: %w", senderID, errdefs.ErrNotFound)
	}
	receiver, err := s.store.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("get receiver: %w", err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("receiver %s: %w", receiverID, errdefs.ErrNotFound)
	}

	msg := &model.ChatMessage{
		ID:         generateID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       text,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateChatMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create chat message: %w", err)
	}

	s.push(msg, sender.Username)
	return msg, nil
}

// SendBroadcast 给每个其他在职用户各发一条私信（单事务）
//
// 返回创建的消息条数：事务要么全部提交要么全部回滚，
// 计数始终等于落库行数。
func (s *Service) SendBroadcast(ctx context.Context, senderID, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("message body is empty: %w", errdefs.ErrInvalidArgument)
	}

	sender, err := s.store.GetUserByID(ctx, senderID)
	if err != nil {
		return 0, fmt.Errorf("get sender: %w", err)
	}
	if sender == nil {
		return 0, fmt.Errorf("sender %s: %w", senderID, errdefs.ErrNotFound)
	}

	users, err := s.store.ListUsers(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	now := time.Now()
	var msgs []*model.ChatMessage
	for _, u := range users {
		if u.ID == senderID {
			continue
		}
		msgs = append(msgs, &model.ChatMessage{
			ID:         generateID(),
			SenderID:   senderID,
			ReceiverID: u.ID,
			Body:       text,
			CreatedAt:  now,
		})
	}
	if err := s.store.CreateChatMessages(ctx, msgs); err != nil {
		return 0, fmt.Errorf("create broadcast messages: %w", err)
	}

	for _, msg := range msgs {
		s.push(msg, sender.Username)
	}
	return len(msgs), nil
}

// MarkRead 把对端发来的未读消息批量标记已读，幂等
func (s *Service) MarkRead(ctx context.Context, userID, otherUserID string) (int64, error) {
	return s.store.MarkConversationRead(ctx, userID, otherUserID)
}

// ListConversations 会话列表
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// History 与某用户的历史消息（时间倒序分页），附带方向和发送人名称
func (s *Service) History(ctx context.Context, userID, otherUserID string, limit, offset int) ([]*AnnotatedMessage, error) {
	other, err := s.store.GetUserByID(ctx, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if other == nil {
		return nil, fmt.Errorf("user %s: %w", otherUserID, errdefs.ErrNotFound)
	}

	self, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	selfName := userID
	if self != nil {
		selfName = self.Username
	}

	msgs, err := s.store.ListChatMessages(ctx, userID, otherUserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]*AnnotatedMessage, 0, len(msgs))
	for _, m := range msgs {
		name := other.Username
		if m.SenderID == userID {
			name = selfName
		}
		out = append(out, &AnnotatedMessage{
			ChatMessage: m,
			IsSentByMe:  m.SenderID == userID,
			SenderName:  name,
		})
	}
	return out, nil
}

// push 推送聊天帧给接收方（尽力而为）
func (s *Service) push(msg *model.ChatMessage, senderName string) {
	if s.pusher == nil {
		return
	}
	s.pusher.SendToUser(msg.ReceiverID, map[string]interface{}{
		"type":        "chat",
		"message_id":  msg.ID,
		"sender_id":   msg.SenderID,
		"sender_name": senderName,
		"message":     msg.Body,
		"created_at":  msg.CreatedAt,
	})
}

var idSeq atomic.Uint64

// generateID 广播批量生成时纳秒时间戳可能相同，附加序号保证唯一
func generateID() string {
	return fmt.Sprintf("msg-%d-%d", time.Now().UnixNano(), idSeq.Add(1))
}
