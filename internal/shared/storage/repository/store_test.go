// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证 repository 层所有存储接口的正确性。
// 无需外部数据库依赖，可在任何环境下运行。
package repository

import (
	"context"
	"testing"
	"time"

	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
	"leave-admin/internal/shared/storage/dbutil"
	sqlitedriver "leave-admin/internal/shared/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

// insertUser 插入测试用户
func insertUser(t *testing.T, s *Store, id, email string, role model.UserRole) *model.User {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	u := &model.User{
		ID:           id,
		Email:        email,
		Username:     "User " + id,
		PasswordHash: "$2a$12$fake",
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// ============================================================================
// Dialect 基础测试
// ============================================================================

func TestDialectTypes(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Equal(t, "datetime('now')", d.CurrentTimestamp())
	assert.Equal(t, "1", d.BooleanLiteral(true))
	assert.Equal(t, "0", d.BooleanLiteral(false))
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		d.Rebind("SELECT * FROM t WHERE id = $1 AND name = $2"))
	// 应去除 PG 类型转换
	assert.Equal(t, "UPDATE t SET status = ? WHERE id = ?",
		d.Rebind("UPDATE t SET status = $1::varchar WHERE id = $2"))
}

// ============================================================================
// User 测试
// ============================================================================

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	// Get by ID
	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, model.UserRoleUser, got.Role)
	assert.True(t, got.Active)

	// Get by email
	got, err = s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	// 不存在的用户返回 nil, nil
	got, err = s.GetUserByID(ctx, "usr-nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Update role
	require.NoError(t, s.UpdateUserRole(ctx, u.ID, model.UserRoleHR))
	got, _ = s.GetUserByID(ctx, u.ID)
	assert.Equal(t, model.UserRoleHR, got.Role)

	// Update password
	require.NoError(t, s.UpdateUserPassword(ctx, u.ID, "$2a$12$new"))
	got, _ = s.GetUserByID(ctx, u.ID)
	assert.Equal(t, "$2a$12$new", got.PasswordHash)

	// 停用后 activeOnly 列表不可见
	require.NoError(t, s.SetUserActive(ctx, u.ID, false))
	users, err := s.ListUsers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, users, 0)

	users, err = s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestListUsersByRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertUser(t, s, "usr-a", "admin@example.com", model.UserRoleAdmin)
	insertUser(t, s, "usr-h", "hr@example.com", model.UserRoleHR)
	insertUser(t, s, "usr-u", "user@example.com", model.UserRoleUser)

	// 停用的用户不参与角色扇出
	inactive := insertUser(t, s, "usr-x", "gone@example.com", model.UserRoleHR)
	require.NoError(t, s.SetUserActive(ctx, inactive.ID, false))

	reviewers, err := s.ListUsersByRole(ctx, model.UserRoleAdmin, model.UserRoleHR)
	require.NoError(t, err)
	assert.Len(t, reviewers, 2)

	// 无角色参数返回空
	none, err := s.ListUsersByRole(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// ============================================================================
// MedicalLeave 测试
// ============================================================================

func newMedicalLeave(id, userID string) *model.MedicalLeave {
	now := time.Now().Truncate(time.Second)
	return &model.MedicalLeave{
		ID:        id,
		UserID:    userID,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 5),
		Status:    model.LeaveStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMedicalLeaveCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	m := newMedicalLeave("ml-001", "usr-001")
	require.NoError(t, s.CreateMedicalLeave(ctx, m))

	got, err := s.GetMedicalLeave(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.LeaveStatusPending, got.Status)
	assert.Nil(t, got.ReviewedBy)

	// 不存在返回 nil, nil
	got, err = s.GetMedicalLeave(ctx, "ml-nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	// List by user
	list, err := s.ListMedicalLeaves(ctx, storage.LeaveFilter{UserID: "usr-001"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListMedicalLeaves(ctx, storage.LeaveFilter{UserID: "usr-other"})
	require.NoError(t, err)
	assert.Len(t, list, 0)

	// List by status
	list, err = s.ListMedicalLeaves(ctx, storage.LeaveFilter{Status: model.LeaveStatusApproved})
	require.NoError(t, err)
	assert.Len(t, list, 0)
}

func TestReviewMedicalLeave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	m := newMedicalLeave("ml-001", "usr-001")
	require.NoError(t, s.CreateMedicalLeave(ctx, m))

	reviewedAt := time.Now().Truncate(time.Second)
	require.NoError(t, s.ReviewMedicalLeave(ctx, m.ID, model.LeaveStatusApproved, "usr-admin", reviewedAt, nil))

	got, err := s.GetMedicalLeave(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeaveStatusApproved, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "usr-admin", *got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	// 已审批记录再次审批：守卫条件未命中，返回 ErrConflict
	err = s.ReviewMedicalLeave(ctx, m.ID, model.LeaveStatusRejected, "usr-admin", reviewedAt, strPtr("no"))
	assert.ErrorIs(t, err, storage.ErrConflict)

	// 状态保持不变
	got, _ = s.GetMedicalLeave(ctx, m.ID)
	assert.Equal(t, model.LeaveStatusApproved, got.Status)
}

func TestReviewMedicalLeaveRejection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	m := newMedicalLeave("ml-001", "usr-001")
	require.NoError(t, s.CreateMedicalLeave(ctx, m))

	require.NoError(t, s.ReviewMedicalLeave(ctx, m.ID, model.LeaveStatusRejected,
		"usr-hr", time.Now(), strPtr("missing certificate")))

	got, _ := s.GetMedicalLeave(ctx, m.ID)
	assert.Equal(t, model.LeaveStatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "missing certificate", *got.RejectionReason)
}

// ============================================================================
// VacationPeriod 测试
// ============================================================================

func newVacation(id, userID string) *model.VacationPeriod {
	now := time.Now().Truncate(time.Second)
	return &model.VacationPeriod{
		ID:        id,
		UserID:    userID,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 14),
		Status:    model.LeaveStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReviewVacationPeriod(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	v := newVacation("vac-001", "usr-001")
	require.NoError(t, s.CreateVacationPeriod(ctx, v))

	// 批准并写入 SEI 流程编号
	require.NoError(t, s.ReviewVacationPeriod(ctx, v.ID, model.LeaveStatusApproved,
		"usr-admin", time.Now(), nil, strPtr("SEI-2026-0042")))

	got, err := s.GetVacationPeriod(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeaveStatusApproved, got.Status)
	require.NotNil(t, got.SEINumber)
	assert.Equal(t, "SEI-2026-0042", *got.SEINumber)
	assert.False(t, got.IsTaken)
	assert.False(t, got.IsExpired)
}

func TestSetVacationMarkers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	v := newVacation("vac-001", "usr-001")
	require.NoError(t, s.CreateVacationPeriod(ctx, v))

	// pending 状态不可打标记
	err := s.SetVacationMarkers(ctx, v.ID, boolPtr(true), nil)
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, s.ReviewVacationPeriod(ctx, v.ID, model.LeaveStatusApproved,
		"usr-admin", time.Now(), nil, nil))

	// 只更新 is_taken，is_expired 保持原值
	require.NoError(t, s.SetVacationMarkers(ctx, v.ID, boolPtr(true), nil))
	got, _ := s.GetVacationPeriod(ctx, v.ID)
	assert.True(t, got.IsTaken)
	assert.False(t, got.IsExpired)

	// 只更新 is_expired
	require.NoError(t, s.SetVacationMarkers(ctx, v.ID, nil, boolPtr(true)))
	got, _ = s.GetVacationPeriod(ctx, v.ID)
	assert.True(t, got.IsTaken)
	assert.True(t, got.IsExpired)
}

// ============================================================================
// License 测试
// ============================================================================

func TestLicenseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	now := time.Now().Truncate(time.Second)
	l := &model.License{
		ID:        "lic-001",
		UserID:    "usr-001",
		Type:      "maternity",
		StartDate: now,
		EndDate:   now.AddDate(0, 4, 0),
		Status:    model.LeaveStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateLicense(ctx, l))

	got, err := s.GetLicense(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "maternity", got.Type)

	require.NoError(t, s.ReviewLicense(ctx, l.ID, model.LeaveStatusApproved, "usr-hr", time.Now(), nil))
	got, _ = s.GetLicense(ctx, l.ID)
	assert.Equal(t, model.LeaveStatusApproved, got.Status)

	// 终态不可再迁移
	err = s.ReviewLicense(ctx, l.ID, model.LeaveStatusRejected, "usr-hr", time.Now(), nil)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

// ============================================================================
// Chat 测试
// ============================================================================

func newChatMessage(id, sender, receiver, body string, at time.Time) *model.ChatMessage {
	return &model.ChatMessage{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  at,
	}
}

func TestChatMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-a", "a@example.com", model.UserRoleUser)
	insertUser(t, s, "usr-b", "b@example.com", model.UserRoleUser)

	base := time.Now().Truncate(time.Second)
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-1", "usr-a", "usr-b", "hello", base)))
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-2", "usr-b", "usr-a", "hi", base.Add(time.Second))))
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-3", "usr-a", "usr-b", "how are you", base.Add(2*time.Second))))

	// 双向消息都在会话历史里，按时间倒序
	msgs, err := s.ListChatMessages(ctx, "usr-a", "usr-b", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg-3", msgs[0].ID)
	assert.Equal(t, "msg-1", msgs[2].ID)

	// 第三方看不到
	msgs, err = s.ListChatMessages(ctx, "usr-a", "usr-c", 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 0)
}

func TestChatMessagesBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-a", "a@example.com", model.UserRoleAdmin)
	insertUser(t, s, "usr-b", "b@example.com", model.UserRoleUser)
	insertUser(t, s, "usr-c", "c@example.com", model.UserRoleUser)

	now := time.Now().Truncate(time.Second)
	batch := []*model.ChatMessage{
		newChatMessage("msg-1", "usr-a", "usr-b", "announcement", now),
		newChatMessage("msg-2", "usr-a", "usr-c", "announcement", now),
	}
	require.NoError(t, s.CreateChatMessages(ctx, batch))

	msgs, err := s.ListChatMessages(ctx, "usr-a", "usr-b", 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msgs, err = s.ListChatMessages(ctx, "usr-a", "usr-c", 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-a", "a@example.com", model.UserRoleUser)
	insertUser(t, s, "usr-b", "b@example.com", model.UserRoleUser)
	insertUser(t, s, "usr-c", "c@example.com", model.UserRoleUser)

	base := time.Now().Truncate(time.Second)
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-1", "usr-b", "usr-a", "from b", base)))
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-2", "usr-b", "usr-a", "again", base.Add(time.Second))))
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-3", "usr-c", "usr-a", "from c", base.Add(2*time.Second))))
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-4", "usr-a", "usr-b", "reply", base.Add(3*time.Second))))

	convs, err := s.ListConversations(ctx, "usr-a")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	// 最近活跃的会话排在前面（usr-b 有 msg-4）
	assert.Equal(t, "usr-b", convs[0].UserID)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "usr-c", convs[1].UserID)
	assert.Equal(t, 1, convs[1].UnreadCount)

	// 自己发出的消息不计入未读
	convsB, err := s.ListConversations(ctx, "usr-b")
	require.NoError(t, err)
	require.Len(t, convsB, 1)
	assert.Equal(t, 1, convsB[0].UnreadCount)
}

func TestMarkConversationRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-a", "a@example.com", model.UserRoleUser)
	insertUser(t, s, "usr-b", "b@example.com", model.UserRoleUser)

	base := time.Now().Truncate(time.Second)
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-1", "usr-b", "usr-a", "one", base)))
	require.NoError(t, s.CreateChatMessage(ctx, newChatMessage("msg-2", "usr-b", "usr-a", "two", base.Add(time.Second))))

	n, err := s.MarkConversationRead(ctx, "usr-a", "usr-b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 幂等：重复调用影响 0 行，不报错
	n, err = s.MarkConversationRead(ctx, "usr-a", "usr-b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	convs, _ := s.ListConversations(ctx, "usr-a")
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)
}

// ============================================================================
// Notification 测试
// ============================================================================

func newNotification(id, userID string, at time.Time) *model.Notification {
	return &model.Notification{
		ID:        id,
		UserID:    userID,
		Type:      model.NotificationGeneral,
		Title:     "Test",
		Message:   "test message",
		CreatedAt: at,
	}
}

func TestNotificationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-a", "a@example.com", model.UserRoleUser)

	base := time.Now().Truncate(time.Second)
	require.NoError(t, s.CreateNotification(ctx, newNotification("ntf-1", "usr-a", base)))
	require.NoError(t, s.CreateNotifications(ctx, []*model.Notification{
		newNotification("ntf-2", "usr-a", base.Add(time.Second)),
		newNotification("ntf-3", "usr-a", base.Add(2*time.Second)),
	}))

	list, err := s.ListNotifications(ctx, "usr-a", 50, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "ntf-3", list[0].ID)

	count, err := s.CountUnreadNotifications(ctx, "usr-a")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// 标记单条已读
	require.NoError(t, s.MarkNotificationRead(ctx, "ntf-1", "usr-a"))
	count, _ = s.CountUnreadNotifications(ctx, "usr-a")
	assert.Equal(t, 2, count)

	// 他人的通知不可标记
	err = s.MarkNotificationRead(ctx, "ntf-2", "usr-other")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 全部已读
	n, err := s.MarkAllNotificationsRead(ctx, "usr-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	count, _ = s.CountUnreadNotifications(ctx, "usr-a")
	assert.Equal(t, 0, count)
}

// ============================================================================
// Analytics 测试
// ============================================================================

func TestLeaveStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "usr-001", "alice@example.com", model.UserRoleUser)

	for _, id := range []string{"ml-1", "ml-2", "ml-3"} {
		require.NoError(t, s.CreateMedicalLeave(ctx, newMedicalLeave(id, "usr-001")))
	}
	require.NoError(t, s.ReviewMedicalLeave(ctx, "ml-1", model.LeaveStatusApproved, "usr-adm", time.Now(), nil))
	require.NoError(t, s.ReviewMedicalLeave(ctx, "ml-2", model.LeaveStatusRejected, "usr-adm", time.Now(), strPtr("no")))

	stats, err := s.LeaveStats(ctx, model.LeaveKindMedical)
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Equal(t, model.LeaveKindMedical, stats.Kind)
	assert.Equal(t, 1, stats.CountByStatus["approved"])
	assert.Equal(t, 1, stats.CountByStatus["rejected"])
	assert.Equal(t, 1, stats.CountByStatus["pending"])
	assert.InDelta(t, 0.5, stats.ApprovalRate, 0.001)

	month := time.Now().UTC().Format("2006-01")
	assert.Equal(t, 3, stats.CountByMonth[month])

	// 空表不报错
	empty, err := s.LeaveStats(ctx, model.LeaveKindLicense)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.ApprovalRate)
	assert.Len(t, empty.CountByStatus, 0)
}

func TestLeaveStatsUnknownKind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LeaveStats(context.Background(), model.LeaveKind("bogus"))
	assert.Error(t, err)
}
