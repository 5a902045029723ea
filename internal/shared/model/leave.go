// leave.go 包含请假/休假/执照许可相关的数据模型定义：
//   - MedicalLeave：病假记录
//   - VacationPeriod：休假周期
//   - License：许可假（资格性请假）
//   - LeaveStatus：审批状态枚举
//
// 三种记录共享同一套审批状态机：pending 为唯一可迁出状态，
// approved/rejected 为终态；病假额外允许迁入 medical_board_required
// （升级到医疗委员会，后续处理在系统之外）。
package model

import "time"

// LeaveStatus 审批状态
type LeaveStatus string

const (
	LeaveStatusPending              LeaveStatus = "pending"
	LeaveStatusApproved             LeaveStatus = "approved"
	LeaveStatusRejected             LeaveStatus = "rejected"
	LeaveStatusMedicalBoardRequired LeaveStatus = "medical_board_required"
)

// LeaveKind 请假记录类别
type LeaveKind string

const (
	LeaveKindMedical  LeaveKind = "medical_leave"
	LeaveKindVacation LeaveKind = "vacation_period"
	LeaveKindLicense  LeaveKind = "license"
)

// TransitionTargets 返回该类别允许的审批目标状态
//
// 所有迁移的起点都必须是 pending；该函数只约束终点取值。
func TransitionTargets(kind LeaveKind) []LeaveStatus {
	if kind == LeaveKindMedical {
		return []LeaveStatus{LeaveStatusApproved, LeaveStatusRejected, LeaveStatusMedicalBoardRequired}
	}
	return []LeaveStatus{LeaveStatusApproved, LeaveStatusRejected}
}

// ValidTarget 校验 status 是否为 kind 允许的审批目标
func ValidTarget(kind LeaveKind, status LeaveStatus) bool {
	for _, s := range TransitionTargets(kind) {
		if s == status {
			return true
		}
	}
	return false
}

// MedicalLeave 病假记录
type MedicalLeave struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	StartDate       time.Time   `json:"start_date" db:"start_date"`
	EndDate         time.Time   `json:"end_date" db:"end_date"`
	ReturnDate      *time.Time  `json:"return_date,omitempty" db:"return_date"`
	Status          LeaveStatus `json:"status" db:"status"`
	ReviewedBy      *string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason *string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	DocumentKey     *string     `json:"document_key,omitempty" db:"document_key"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// VacationPeriod 休假周期
//
// IsTaken 与 IsExpired 是审批通过后的两个独立标记，
// 仅当 Status == approved 时可修改；两者并不互斥，
// 是否互斥由调用方决定（原始系统未约束，这里保持两个独立布尔值）。
type VacationPeriod struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	StartDate       time.Time   `json:"start_date" db:"start_date"`
	EndDate         time.Time   `json:"end_date" db:"end_date"`
	Status          LeaveStatus `json:"status" db:"status"`
	IsTaken         bool        `json:"is_taken" db:"is_taken"`
	IsExpired       bool        `json:"is_expired" db:"is_expired"`
	SEINumber       *string     `json:"sei_number,omitempty" db:"sei_number"`
	ReviewedBy      *string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason *string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// Days 休假天数（含首尾两端）
func (v *VacationPeriod) Days() int {
	return int(v.EndDate.Sub(v.StartDate).Hours()/24) + 1
}

// License 许可假
type License struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	Type            string      `json:"type" db:"type"`
	StartDate       time.Time   `json:"start_date" db:"start_date"`
	EndDate         time.Time   `json:"end_date" db:"end_date"`
	Status          LeaveStatus `json:"status" db:"status"`
	ReviewedBy      *string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason *string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	DocumentKey     *string     `json:"document_key,omitempty" db:"document_key"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}
