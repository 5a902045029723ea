package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

// leaveListQuery 构建三种请假记录共用的列表查询
func leaveListQuery(table, columns string, f storage.LeaveFilter) (string, []interface{}) {
	query := `SELECT ` + columns + ` FROM ` + table
	var conds []string
	var args []interface{}

	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	limit, offset := clampLimit(f.Limit, f.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return query, args
}

// reviewUpdate 对 pending 记录执行守卫条件的审批更新
//
// WHERE status = 'pending' 防止并发审批互相覆盖；
// 未命中任何行时返回 storage.ErrConflict，由调用方区分具体原因。
func (s *Store) reviewUpdate(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// === MedicalLeave ===

const medicalLeaveColumns = `id, user_id, start_date, end_date, return_date, status,
	reviewed_by, reviewed_at, rejection_reason, document_key, created_at, updated_at`

func scanMedicalLeave(row interface{ Scan(...interface{}) error }) (*model.MedicalLeave, error) {
	m := &model.MedicalLeave{}
	err := row.Scan(&m.ID, &m.UserID, &m.StartDate, &m.EndDate, &m.ReturnDate, &m.Status,
		&m.ReviewedBy, &m.ReviewedAt, &m.RejectionReason, &m.DocumentKey, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// CreateMedicalLeave 创建病假记录
func (s *Store) CreateMedicalLeave(ctx context.Context, m *model.MedicalLeave) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO medical_leaves (id, user_id, start_date, end_date, return_date, status,
		 reviewed_by, reviewed_at, rejection_reason, document_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`),
		m.ID, m.UserID, m.StartDate, m.EndDate, m.ReturnDate, m.Status,
		m.ReviewedBy, m.ReviewedAt, m.RejectionReason, m.DocumentKey, m.CreatedAt, m.UpdatedAt)
	return err
}

// GetMedicalLeave 获取病假记录
func (s *Store) GetMedicalLeave(ctx context.Context, id string) (*model.MedicalLeave, error) {
	return scanMedicalLeave(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+medicalLeaveColumns+` FROM medical_leaves WHERE id = $1`), id))
}

// ListMedicalLeaves 列出病假记录
func (s *Store) ListMedicalLeaves(ctx context.Context, f storage.LeaveFilter) ([]*model.MedicalLeave, error) {
	query, args := leaveListQuery("medical_leaves", medicalLeaveColumns, f)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.MedicalLeave
	for rows.Next() {
		m := &model.MedicalLeave{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.StartDate, &m.EndDate, &m.ReturnDate, &m.Status,
			&m.ReviewedBy, &m.ReviewedAt, &m.RejectionReason, &m.DocumentKey, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReviewMedicalLeave 审批病假（仅 pending 可迁移）
func (s *Store) ReviewMedicalLeave(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error {
	return s.reviewUpdate(ctx,
		`UPDATE medical_leaves SET status = $1, reviewed_by = $2, reviewed_at = $3,
		 rejection_reason = $4, updated_at = `+s.now()+`
		 WHERE id = $5 AND status = 'pending'`,
		status, reviewerID, reviewedAt, reason, id)
}

// === VacationPeriod ===

const vacationColumns = `id, user_id, start_date, end_date, status, is_taken, is_expired,
	sei_number, reviewed_by, reviewed_at, rejection_reason, created_at, updated_at`

func scanVacation(row interface{ Scan(...interface{}) error }) (*model.VacationPeriod, error) {
	v := &model.VacationPeriod{}
	err := row.Scan(&v.ID, &v.UserID, &v.StartDate, &v.EndDate, &v.Status, &v.IsTaken, &v.IsExpired,
		&v.SEINumber, &v.ReviewedBy, &v.ReviewedAt, &v.RejectionReason, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// CreateVacationPeriod 创建休假周期
func (s *Store) CreateVacationPeriod(ctx context.Context, v *model.VacationPeriod) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO vacation_periods (id, user_id, start_date, end_date, status, is_taken, is_expired,
		 sei_number, reviewed_by, reviewed_at, rejection_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`),
		v.ID, v.UserID, v.StartDate, v.EndDate, v.Status, v.IsTaken, v.IsExpired,
		v.SEINumber, v.ReviewedBy, v.ReviewedAt, v.RejectionReason, v.CreatedAt, v.UpdatedAt)
	return err
}

// GetVacationPeriod 获取休假周期
func (s *Store) GetVacationPeriod(ctx context.Context, id string) (*model.VacationPeriod, error) {
	return scanVacation(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+vacationColumns+` FROM vacation_periods WHERE id = $1`), id))
}

// ListVacationPeriods 列出休假周期
func (s *Store) ListVacationPeriods(ctx context.Context, f storage.LeaveFilter) ([]*model.VacationPeriod, error) {
	query, args := leaveListQuery("vacation_periods", vacationColumns, f)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.VacationPeriod
	for rows.Next() {
		v := &model.VacationPeriod{}
		if err := rows.Scan(&v.ID, &v.UserID, &v.StartDate, &v.EndDate, &v.Status, &v.IsTaken, &v.IsExpired,
			&v.SEINumber, &v.ReviewedBy, &v.ReviewedAt, &v.RejectionReason, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ReviewVacationPeriod 审批休假（仅 pending 可迁移，可附带 SEI 流程编号）
func (s *Store) ReviewVacationPeriod(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason, seiNumber *string) error {
	return s.reviewUpdate(ctx,
		`UPDATE vacation_periods SET status = $1, reviewed_by = $2, reviewed_at = $3,
		 rejection_reason = $4, sei_number = COALESCE($5, sei_number), updated_at = `+s.now()+`
		 WHERE id = $6 AND status = 'pending'`,
		status, reviewerID, reviewedAt, reason, seiNumber, id)
}

// SetVacationMarkers 更新审批后的 is_taken/is_expired 标记
//
// 仅 approved 状态的记录可更新；nil 表示保持原值。
func (s *Store) SetVacationMarkers(ctx context.Context, id string, isTaken, isExpired *bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE vacation_periods SET
		 is_taken = COALESCE($1, is_taken),
		 is_expired = COALESCE($2, is_expired),
		 updated_at = `+s.now()+`
		 WHERE id = $3 AND status = 'approved'`),
		isTaken, isExpired, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// === License ===

const licenseColumns = `id, user_id, type, start_date, end_date, status,
	reviewed_by, reviewed_at, rejection_reason, document_key, created_at, updated_at`

func scanLicense(row interface{ Scan(...interface{}) error }) (*model.License, error) {
	l := &model.License{}
	err := row.Scan(&l.ID, &l.UserID, &l.Type, &l.StartDate, &l.EndDate, &l.Status,
		&l.ReviewedBy, &l.ReviewedAt, &l.RejectionReason, &l.DocumentKey, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// CreateLicense 创建许可假记录
func (s *Store) CreateLicense(ctx context.Context, l *model.License) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO licenses (id, user_id, type, start_date, end_date, status,
		 reviewed_by, reviewed_at, rejection_reason, document_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`),
		l.ID, l.UserID, l.Type, l.StartDate, l.EndDate, l.Status,
		l.ReviewedBy, l.ReviewedAt, l.RejectionReason, l.DocumentKey, l.CreatedAt, l.UpdatedAt)
	return err
}

// GetLicense 获取许可假记录
func (s *Store) GetLicense(ctx context.Context, id string) (*model.License, error) {
	return scanLicense(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+licenseColumns+` FROM licenses WHERE id = $1`), id))
}

// ListLicenses 列出许可假记录
func (s *Store) ListLicenses(ctx context.Context, f storage.LeaveFilter) ([]*model.License, error) {
	query, args := leaveListQuery("licenses", licenseColumns, f)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.License
	for rows.Next() {
		l := &model.License{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.Type, &l.StartDate, &l.EndDate, &l.Status,
			&l.ReviewedBy, &l.ReviewedAt, &l.RejectionReason, &l.DocumentKey, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReviewLicense 审批许可假（仅 pending 可迁移）
func (s *Store) ReviewLicense(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error {
	return s.reviewUpdate(ctx,
		`UPDATE licenses SET status = $1, reviewed_by = $2, reviewed_at = $3,
		 rejection_reason = $4, updated_at = `+s.now()+`
		 WHERE id = $5 AND status = 'pending'`,
		status, reviewerID, reviewedAt, reason, id)
}
