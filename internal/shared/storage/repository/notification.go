package repository

import (
	"context"

	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

const notificationColumns = `id, user_id, type, title, message, is_read, created_at`

// CreateNotification 持久化单条通知
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO notifications (id, user_id, type, title, message, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt)
	return err
}

// CreateNotifications 在单个事务中批量持久化通知
//
// 扇出场景使用：全部落库或全部回滚，对外报告的送达计数
// 始终等于实际提交的行数。
func (s *Store) CreateNotifications(ctx context.Context, ns []*model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(
		`INSERT INTO notifications (id, user_id, type, title, message, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	for _, n := range ns {
		if _, err := tx.ExecContext(ctx, query,
			n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListNotifications 列出该用户的通知（时间倒序分页）
func (s *Store) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error) {
	limit, offset = clampLimit(limit, offset)
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`),
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnreadNotifications 统计该用户的未读通知数
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM notifications
		 WHERE user_id = $1 AND is_read = `+s.dialect.BooleanLiteral(false)), userID).
		Scan(&count)
	return count, err
}

// MarkNotificationRead 将指定通知标记为已读
//
// 带 user_id 守卫：用户只能标记自己的通知，越权或不存在
// 时返回 storage.ErrNotFound。
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE notifications SET is_read = `+s.dialect.BooleanLiteral(true)+`
		 WHERE id = $1 AND user_id = $2`), id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead 将该用户全部未读通知标记为已读，返回更新行数
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE notifications SET is_read = `+s.dialect.BooleanLiteral(true)+`
		 WHERE user_id = $1 AND is_read = `+s.dialect.BooleanLiteral(false)), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
