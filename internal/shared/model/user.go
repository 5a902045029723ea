// Package model 定义核心数据模型
package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleHR    UserRole = "hr"
	UserRoleUser  UserRole = "user"
)

// ValidRole 校验角色取值
func ValidRole(r UserRole) bool {
	switch r {
	case UserRoleAdmin, UserRoleHR, UserRoleUser:
		return true
	}
	return false
}

// User 用户
//
// 用户只会被停用（Active=false），不会被物理删除，
// 历史请假记录和聊天记录始终能解析到发起人。
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"` // never expose in JSON
	Role         UserRole  `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
