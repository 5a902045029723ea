package repository

import (
	"context"
	"database/sql"

	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage/dbutil"
)

const chatColumns = `id, sender_id, receiver_id, body, is_read, created_at`

// CreateChatMessage 持久化单条聊天消息
func (s *Store) CreateChatMessage(ctx context.Context, m *model.ChatMessage) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO chat_messages (id, sender_id, receiver_id, body, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		m.ID, m.SenderID, m.ReceiverID, m.Body, m.Read, m.CreatedAt)
	return err
}

// CreateChatMessages 在单个事务中批量持久化聊天消息
//
// 广播场景使用：要么全部落库要么全部回滚，返回的发送计数
// 始终等于实际提交的行数。
func (s *Store) CreateChatMessages(ctx context.Context, msgs []*model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(
		`INSERT INTO chat_messages (id, sender_id, receiver_id, body, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, query,
			m.ID, m.SenderID, m.ReceiverID, m.Body, m.Read, m.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChatMessage 获取单条聊天消息
func (s *Store) GetChatMessage(ctx context.Context, id string) (*model.ChatMessage, error) {
	m := &model.ChatMessage{}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+chatColumns+` FROM chat_messages WHERE id = $1`), id).
		Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Read, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListChatMessages 拉取两个用户之间的历史消息（时间倒序分页）
func (s *Store) ListChatMessages(ctx context.Context, userID, otherUserID string, limit, offset int) ([]*model.ChatMessage, error) {
	limit, offset = clampLimit(limit, offset)
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+chatColumns+` FROM chat_messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $3 AND receiver_id = $4)
		 ORDER BY created_at DESC LIMIT $5 OFFSET $6`),
		userID, otherUserID, otherUserID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListConversations 聚合该用户参与的全部会话
//
// 每个对端一行：未读数为对端发给自己且未读的消息数，
// last_at 为会话最近一条消息的时间，按其倒序排列。
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT peer.peer_id, COALESCE(u.username, ''),
		        SUM(CASE WHEN peer.sender_id = peer.peer_id AND peer.is_read = `+s.dialect.BooleanLiteral(false)+` THEN 1 ELSE 0 END),
		        MAX(peer.created_at)
		 FROM (
		   SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id,
		          sender_id, is_read, created_at
		   FROM chat_messages
		   WHERE sender_id = $2 OR receiver_id = $3
		 ) peer
		 LEFT JOIN users u ON u.id = peer.peer_id
		 GROUP BY peer.peer_id, u.username
		 ORDER BY MAX(peer.created_at) DESC`),
		userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		c := &model.Conversation{}
		var lastAt dbutil.ScanTime
		if err := rows.Scan(&c.UserID, &c.UserName, &c.UnreadCount, &lastAt); err != nil {
			return nil, err
		}
		c.LastAt = lastAt.Time
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkConversationRead 将对端发给该用户的全部未读消息标记为已读
//
// 返回被更新的行数，幂等：重复调用返回 0。
func (s *Store) MarkConversationRead(ctx context.Context, userID, otherUserID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE chat_messages SET is_read = `+s.dialect.BooleanLiteral(true)+`
		 WHERE receiver_id = $1 AND sender_id = $2 AND is_read = `+s.dialect.BooleanLiteral(false)),
		userID, otherUserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
