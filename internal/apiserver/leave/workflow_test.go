// Package leave 审批工作流单元测试
//
// 使用内存 mock 存储验证状态机约束：
//   - 创建：日期校验、代他人创建的权限、通知扇出
//   - 迁移：角色门槛、目标状态合法性、pending-only、并发冲突映射
//   - 休假标记：approved-only、归属人/审批角色可操作
package leave

import (
	"context"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

// ============================================================================
// Mock 实现
// ============================================================================

// mockStore 内存版工作流存储
type mockStore struct {
	users     map[string]*model.User
	medical   map[string]*model.MedicalLeave
	vacations map[string]*model.VacationPeriod
	licenses  map[string]*model.License
}

func newMockStore() *mockStore {
	return &mockStore{
		users:     make(map[string]*model.User),
		medical:   make(map[string]*model.MedicalLeave),
		vacations: make(map[string]*model.VacationPeriod),
		licenses:  make(map[string]*model.License),
	}
}

func (m *mockStore) addUser(id string, role model.UserRole) {
	m.users[id] = &model.User{ID: id, Email: id + "@example.com", Username: id, Role: role, Active: true}
}

func (m *mockStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockStore) CreateMedicalLeave(_ context.Context, rec *model.MedicalLeave) error {
	m.medical[rec.ID] = rec
	return nil
}

func (m *mockStore) GetMedicalLeave(_ context.Context, id string) (*model.MedicalLeave, error) {
	return m.medical[id], nil
}

func (m *mockStore) ReviewMedicalLeave(_ context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error {
	rec, ok := m.medical[id]
	if !ok || rec.Status != model.LeaveStatusPending {
		return storage.ErrConflict
	}
	rec.Status = status
	rec.ReviewedBy = &reviewerID
	rec.ReviewedAt = &reviewedAt
	rec.RejectionReason = reason
	return nil
}

func (m *mockStore) CreateVacationPeriod(_ context.Context, rec *model.VacationPeriod) error {
	m.vacations[rec.ID] = rec
	return nil
}

func (m *mockStore) GetVacationPeriod(_ context.Context, id string) (*model.VacationPeriod, error) {
	return m.vacations[id], nil
}

func (m *mockStore) ReviewVacationPeriod(_ context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason, seiNumber *string) error {
	rec, ok := m.vacations[id]
	if !ok || rec.Status != model.LeaveStatusPending {
		return storage.ErrConflict
	}
	rec.Status = status
	rec.ReviewedBy = &reviewerID
	rec.ReviewedAt = &reviewedAt
	rec.RejectionReason = reason
	if seiNumber != nil {
		rec.SEINumber = seiNumber
	}
	return nil
}

func (m *mockStore) SetVacationMarkers(_ context.Context, id string, isTaken, isExpired *bool) error {
	rec, ok := m.vacations[id]
	if !ok || rec.Status != model.LeaveStatusApproved {
		return storage.ErrConflict
	}
	if isTaken != nil {
		rec.IsTaken = *isTaken
	}
	if isExpired != nil {
		rec.IsExpired = *isExpired
	}
	return nil
}

func (m *mockStore) CreateLicense(_ context.Context, rec *model.License) error {
	m.licenses[rec.ID] = rec
	return nil
}

func (m *mockStore) GetLicense(_ context.Context, id string) (*model.License, error) {
	return m.licenses[id], nil
}

func (m *mockStore) ReviewLicense(_ context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error {
	rec, ok := m.licenses[id]
	if !ok || rec.Status != model.LeaveStatusPending {
		return storage.ErrConflict
	}
	rec.Status = status
	rec.ReviewedBy = &reviewerID
	rec.ReviewedAt = &reviewedAt
	rec.RejectionReason = reason
	return nil
}

// mockNotifier 记录扇出调用
type mockNotifier struct {
	created  []string
	reviewed []string
}

func (m *mockNotifier) NotifyRequestCreated(_ context.Context, ownerID string, kind model.LeaveKind, recordID string) error {
	m.created = append(m.created, recordID)
	return nil
}

func (m *mockNotifier) NotifyRequestReviewed(_ context.Context, ownerID string, kind model.LeaveKind, recordID string, status model.LeaveStatus, reason *string) error {
	m.reviewed = append(m.reviewed, recordID)
	return nil
}

// mockMetrics 记录迁移计数调用
type mockMetrics struct {
	transitions []string
}

func (m *mockMetrics) RecordLeaveTransition(kind, status string) {
	m.transitions = append(m.transitions, kind+":"+status)
}

func newTestWorkflow() (*Workflow, *mockStore, *mockNotifier, *mockMetrics) {
	store := newMockStore()
	store.addUser("usr-admin", model.UserRoleAdmin)
	store.addUser("usr-hr", model.UserRoleHR)
	store.addUser("usr-alice", model.UserRoleUser)
	store.addUser("usr-bob", model.UserRoleUser)

	notifier := &mockNotifier{}
	metrics := &mockMetrics{}
	return NewWorkflow(store, notifier, metrics), store, notifier, metrics
}

func actor(id string, role model.UserRole) *auth.AuthUser {
	return &auth.AuthUser{ID: id, Email: id + "@example.com", Role: role}
}

func datesInput() CreateInput {
	now := time.Now()
	return CreateInput{StartDate: now, EndDate: now.AddDate(0, 0, 5)}
}

// ============================================================================
// 创建测试
// ============================================================================

func TestCreateMedicalLeave(t *testing.T) {
	wf, store, notifier, _ := newTestWorkflow()
	ctx := context.Background()

	m, err := wf.CreateMedicalLeave(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "usr-alice", m.UserID)
	assert.Equal(t, model.LeaveStatusPending, m.Status)
	assert.NotEmpty(t, m.ID)
	assert.NotNil(t, store.medical[m.ID])

	// 创建扇出已触发
	require.Len(t, notifier.created, 1)
	assert.Equal(t, m.ID, notifier.created[0])
}

func TestCreateInvalidDates(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()
	ctx := context.Background()
	alice := actor("usr-alice", model.UserRoleUser)

	// 缺日期
	_, err := wf.CreateMedicalLeave(ctx, alice, CreateInput{})
	assert.True(t, errdefs.IsInvalidArgument(err))

	// 结束早于开始
	now := time.Now()
	_, err = wf.CreateVacationPeriod(ctx, alice, CreateInput{StartDate: now, EndDate: now.AddDate(0, 0, -1)})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestCreateOnBehalf(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()
	ctx := context.Background()

	// 普通用户不能代他人创建
	in := datesInput()
	in.UserID = "usr-bob"
	_, err := wf.CreateMedicalLeave(ctx, actor("usr-alice", model.UserRoleUser), in)
	assert.True(t, errdefs.IsPermissionDenied(err))

	// hr 可以
	m, err := wf.CreateMedicalLeave(ctx, actor("usr-hr", model.UserRoleHR), in)
	require.NoError(t, err)
	assert.Equal(t, "usr-bob", m.UserID)

	// 归属人必须存在
	in.UserID = "usr-ghost"
	_, err = wf.CreateMedicalLeave(ctx, actor("usr-hr", model.UserRoleHR), in)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestCreateLicenseDefaultType(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()

	l, err := wf.CreateLicense(context.Background(), actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)
	assert.Equal(t, "general", l.Type)
}

// ============================================================================
// 迁移测试
// ============================================================================

func TestTransitionApprove(t *testing.T) {
	wf, store, notifier, metrics := newTestWorkflow()
	ctx := context.Background()

	m, err := wf.CreateMedicalLeave(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)

	err = wf.Transition(ctx, actor("usr-hr", model.UserRoleHR), model.LeaveKindMedical, m.ID,
		TransitionInput{Status: model.LeaveStatusApproved})
	require.NoError(t, err)

	got := store.medical[m.ID]
	assert.Equal(t, model.LeaveStatusApproved, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "usr-hr", *got.ReviewedBy)

	// 审批扇出 + 指标
	require.Len(t, notifier.reviewed, 1)
	assert.Equal(t, []string{"medical_leave:approved"}, metrics.transitions)
}

func TestTransitionRequiresReviewer(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()
	ctx := context.Background()

	m, err := wf.CreateMedicalLeave(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)

	err = wf.Transition(ctx, actor("usr-alice", model.UserRoleUser), model.LeaveKindMedical, m.ID,
		TransitionInput{Status: model.LeaveStatusApproved})
	assert.True(t, errdefs.IsPermissionDenied(err))

	err = wf.Transition(ctx, nil, model.LeaveKindMedical, m.ID,
		TransitionInput{Status: model.LeaveStatusApproved})
	assert.True(t, errdefs.IsPermissionDenied(err))
}

func TestTransitionTargetValidation(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()
	ctx := context.Background()
	hr := actor("usr-hr", model.UserRoleHR)

	v, err := wf.CreateVacationPeriod(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)

	// pending 不是合法审批终点
	err = wf.Transition(ctx, hr, model.LeaveKindVacation, v.ID,
		TransitionInput{Status: model.LeaveStatusPending})
	assert.True(t, errdefs.IsInvalidArgument(err))

	// medical_board_required 只对病假开放
	err = wf.Transition(ctx, hr, model.LeaveKindVacation, v.ID,
		TransitionInput{Status: model.LeaveStatusMedicalBoardRequired})
	assert.True(t, errdefs.IsInvalidArgument(err))

	m, err := wf.CreateMedicalLeave(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)
	err = wf.Transition(ctx, hr, model.LeaveKindMedical, m.ID,
		TransitionInput{Status: model.LeaveStatusMedicalBoardRequired})
	assert.NoError(t, err)
}

func TestTransitionPendingOnly(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()
	ctx := context.Background()
	hr := actor("usr-hr", model.UserRoleHR)

	m, err := wf.CreateMedicalLeave(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)

	require.NoError(t, wf.Transition(ctx, hr, model.LeaveKindMedical, m.ID,
		TransitionInput{Status: model.LeaveStatusApproved}))

	// 终态不可再迁移
	err = wf.Transition(ctx, hr, model.LeaveKindMedical, m.ID,
		TransitionInput{Status: model.LeaveStatusRejected})
	assert.True(t, errdefs.IsFailedPrecondition(err))
}

func TestTransitionNotFound(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()

	err := wf.Transition(context.Background(), actor("usr-hr", model.UserRoleHR),
		model.LeaveKindLicense, "lic-ghost", TransitionInput{Status: model.LeaveStatusApproved})
	assert.True(t, errdefs.IsNotFound(err))
}

func TestTransitionVacationSEINumber(t *testing.T) {
	wf, store, _, _ := newTestWorkflow()
	ctx := context.Background()

	v, err := wf.CreateVacationPeriod(ctx, actor("usr-alice", model.UserRoleUser), datesInput())
	require.NoError(t, err)

	sei := "SEI-2026-0042"
	require.NoError(t, wf.Transition(ctx, actor("usr-admin", model.UserRoleAdmin),
		model.LeaveKindVacation, v.ID,
		TransitionInput{Status: model.LeaveStatusApproved, SEINumber: &sei}))

	got := store.vacations[v.ID]
	require.NotNil(t, got.SEINumber)
	assert.Equal(t, sei, *got.SEINumber)
}

// ============================================================================
// 休假标记测试
// ============================================================================

func TestUpdateVacationMarkers(t *testing.T) {
	wf, _, _, _ := newTestWorkflow()
	ctx := context.Background()
	alice := actor("usr-alice", model.UserRoleUser)
	taken := true

	v, err := wf.CreateVacationPeriod(ctx, alice, datesInput())
	require.NoError(t, err)

	// approved 之前不可打标记
	_, err = wf.UpdateVacationMarkers(ctx, alice, v.ID, &taken, nil)
	assert.True(t, errdefs.IsFailedPrecondition(err))

	require.NoError(t, wf.Transition(ctx, actor("usr-hr", model.UserRoleHR),
		model.LeaveKindVacation, v.ID, TransitionInput{Status: model.LeaveStatusApproved}))

	// 归属人可以打标记
	got, err := wf.UpdateVacationMarkers(ctx, alice, v.ID, &taken, nil)
	require.NoError(t, err)
	assert.True(t, got.IsTaken)
	assert.False(t, got.IsExpired)

	// 他人不可
	_, err = wf.UpdateVacationMarkers(ctx, actor("usr-bob", model.UserRoleUser), v.ID, &taken, nil)
	assert.True(t, errdefs.IsPermissionDenied(err))

	// 两个标记都缺失
	_, err = wf.UpdateVacationMarkers(ctx, alice, v.ID, nil, nil)
	assert.True(t, errdefs.IsInvalidArgument(err))

	// 记录不存在
	_, err = wf.UpdateVacationMarkers(ctx, alice, "vac-ghost", &taken, nil)
	assert.True(t, errdefs.IsNotFound(err))
}
