package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"leave-admin/internal/shared/model"
)

const userColumns = `id, email, username, password_hash, role, active, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, email, username, password_hash, role, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.Role, user.Active, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetUserByEmail 通过邮箱查找用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE email = $1`), email))
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = $1`), id))
}

// UpdateUserPassword 更新用户密码
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET password_hash = $1, updated_at = `+s.now()+` WHERE id = $2`),
		passwordHash, id,
	)
	return err
}

// UpdateUserRole 更新用户角色（仅管理员调用）
func (s *Store) UpdateUserRole(ctx context.Context, id string, role model.UserRole) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET role = $1, updated_at = `+s.now()+` WHERE id = $2`),
		role, id,
	)
	return err
}

// SetUserActive 启用/停用用户（软删除，用户记录永不物理删除）
func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET active = $1, updated_at = `+s.now()+` WHERE id = $2`),
		active, id,
	)
	return err
}

// ListUsers 列出用户
func (s *Store) ListUsers(ctx context.Context, activeOnly bool) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if activeOnly {
		query += ` WHERE active = ` + s.dialect.BooleanLiteral(true)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
			&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListUsersByRole 按角色列出启用的用户（通知/推送按角色扇出时使用）
func (s *Store) ListUsersByRole(ctx context.Context, roles ...model.UserRole) ([]*model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roles))
	args := make([]interface{}, len(roles))
	for i, r := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = r
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE role IN (` +
		strings.Join(placeholders, ", ") + `) AND active = ` + s.dialect.BooleanLiteral(true) +
		` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
			&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
