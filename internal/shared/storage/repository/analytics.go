package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
	"leave-admin/internal/shared/storage/dbutil"
)

// leaveTable 请假类型到表名的映射
func leaveTable(kind model.LeaveKind) (string, error) {
	switch kind {
	case model.LeaveKindMedical:
		return "medical_leaves", nil
	case model.LeaveKindVacation:
		return "vacation_periods", nil
	case model.LeaveKindLicense:
		return "licenses", nil
	default:
		return "", fmt.Errorf("unknown leave kind: %s", kind)
	}
}

// LeaveStats 聚合指定请假类型的审批统计
//
// 三个查询各自独立：按状态计数、按月计数、已审批记录的
// 平均审批延迟。审批率 = approved / (approved + rejected)。
func (s *Store) LeaveStats(ctx context.Context, kind model.LeaveKind) (*storage.LeaveStats, error) {
	table, err := leaveTable(kind)
	if err != nil {
		return nil, err
	}

	stats := &storage.LeaveStats{
		Kind:          kind,
		CountByStatus: make(map[string]int),
		CountByMonth:  make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM `+table+` GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.CountByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	monthExpr := dbutil.MonthExpr(s.dialect, "created_at")
	rows, err = s.db.QueryContext(ctx,
		`SELECT `+monthExpr+`, COUNT(*) FROM `+table+` GROUP BY `+monthExpr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var month string
		var count int
		if err := rows.Scan(&month, &count); err != nil {
			return nil, err
		}
		stats.CountByMonth[month] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avgSec sql.NullFloat64
	diffExpr := dbutil.EpochDiffExpr(s.dialect, "reviewed_at", "created_at")
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(`+diffExpr+`) FROM `+table+` WHERE reviewed_at IS NOT NULL`).
		Scan(&avgSec)
	if err != nil {
		return nil, err
	}
	if avgSec.Valid {
		stats.AvgLatencySec = avgSec.Float64
		stats.AvgLatency = time.Duration(avgSec.Float64 * float64(time.Second))
	}

	approved := stats.CountByStatus[string(model.LeaveStatusApproved)]
	rejected := stats.CountByStatus[string(model.LeaveStatusRejected)]
	if approved+rejected > 0 {
		stats.ApprovalRate = float64(approved) / float64(approved+rejected)
	}
	return stats, nil
}
