// Package leave 请假记录的创建与审批状态机
//
// 三种记录（病假/休假/许可假）共享同一套审批语义：
// pending 为唯一可迁出状态，审批动作由 admin/hr 执行，
// 每次迁移都给申请人落一条通知并尽力推送。
package leave

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/containerd/errdefs"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

// Store 审批工作流所需的存储接口
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	CreateMedicalLeave(ctx context.Context, m *model.MedicalLeave) error
	GetMedicalLeave(ctx context.Context, id string) (*model.MedicalLeave, error)
	ReviewMedicalLeave(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error

	CreateVacationPeriod(ctx context.Context, v *model.VacationPeriod) error
	GetVacationPeriod(ctx context.Context, id string) (*model.VacationPeriod, error)
	ReviewVacationPeriod(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason, seiNumber *string) error
	SetVacationMarkers(ctx context.Context, id string, isTaken, isExpired *bool) error

	CreateLicense(ctx context.Context, l *model.License) error
	GetLicense(ctx context.Context, id string) (*model.License, error)
	ReviewLicense(ctx context.Context, id string, status model.LeaveStatus, reviewerID string, reviewedAt time.Time, reason *string) error
}

// Notifier 审批事件的通知扇出（由 notification.Service 实现）
type Notifier interface {
	NotifyRequestCreated(ctx context.Context, ownerID string, kind model.LeaveKind, recordID string) error
	NotifyRequestReviewed(ctx context.Context, ownerID string, kind model.LeaveKind, recordID string, status model.LeaveStatus, reason *string) error
}

// Metrics 审批迁移计数
type Metrics interface {
	RecordLeaveTransition(kind, status string)
}

// Workflow 审批工作流
type Workflow struct {
	store    Store
	notifier Notifier
	metrics  Metrics
}

// NewWorkflow 创建审批工作流
func NewWorkflow(store Store, notifier Notifier, metrics Metrics) *Workflow {
	return &Workflow{store: store, notifier: notifier, metrics: metrics}
}

// CreateInput 三种记录创建的公共字段
type CreateInput struct {
	UserID     string     `json:"user_id"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"` // 病假专用
	Type       string     `json:"type,omitempty"`        // 许可假专用
	DocumentKey *string   `json:"document_key,omitempty"`
}

// resolveOwner 确定记录归属人：普通用户只能为自己创建，
// 审批角色可代他人创建
func (wf *Workflow) resolveOwner(ctx context.Context, actor *auth.AuthUser, requested string) (string, error) {
	ownerID := actor.ID
	if requested != "" && requested != actor.ID {
		if !auth.CanReview(actor.Role) {
			return "", fmt.Errorf("cannot create requests for other users: %w", errdefs.ErrPermissionDenied)
		}
		ownerID = requested
	}

	owner, err := wf.store.GetUserByID(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("get owner: %w", err)
	}
	if owner == nil {
		return "", fmt.Errorf("user %s: %w", ownerID, errdefs.ErrNotFound)
	}
	return ownerID, nil
}

func validateDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("start_date and end_date are required: %w", errdefs.ErrInvalidArgument)
	}
	if end.Before(start) {
		return fmt.Errorf("end_date before start_date: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}

// CreateMedicalLeave 创建病假申请（pending）并触发通知扇出
func (wf *Workflow) CreateMedicalLeave(ctx context.Context, actor *auth.AuthUser, in CreateInput) (*model.MedicalLeave, error) {
	ownerID, err := wf.resolveOwner(ctx, actor, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	now := time.Now()
	m := &model.MedicalLeave{
		ID:          fmt.Sprintf("ml-%d", now.UnixNano()),
		UserID:      ownerID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		ReturnDate:  in.ReturnDate,
		Status:      model.LeaveStatusPending,
		DocumentKey: in.DocumentKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := wf.store.CreateMedicalLeave(ctx, m); err != nil {
		return nil, fmt.Errorf("create medical leave: %w", err)
	}

	wf.fanOutCreated(ctx, ownerID, model.LeaveKindMedical, m.ID)
	return m, nil
}

// CreateVacationPeriod 创建休假申请（pending）并触发通知扇出
func (wf *Workflow) CreateVacationPeriod(ctx context.Context, actor *auth.AuthUser, in CreateInput) (*model.VacationPeriod, error) {
	ownerID, err := wf.resolveOwner(ctx, actor, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	now := time.Now()
	v := &model.VacationPeriod{
		ID:        fmt.Sprintf("vac-%d", now.UnixNano()),
		UserID:    ownerID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    model.LeaveStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := wf.store.CreateVacationPeriod(ctx, v); err != nil {
		return nil, fmt.Errorf("create vacation period: %w", err)
	}

	wf.fanOutCreated(ctx, ownerID, model.LeaveKindVacation, v.ID)
	return v, nil
}

// CreateLicense 创建许可假申请（pending）并触发通知扇出
func (wf *Workflow) CreateLicense(ctx context.Context, actor *auth.AuthUser, in CreateInput) (*model.License, error) {
	ownerID, err := wf.resolveOwner(ctx, actor, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = "general"
	}

	now := time.Now()
	l := &model.License{
		ID:          fmt.Sprintf("lic-%d", now.UnixNano()),
		UserID:      ownerID,
		Type:        in.Type,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Status:      model.LeaveStatusPending,
		DocumentKey: in.DocumentKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := wf.store.CreateLicense(ctx, l); err != nil {
		return nil, fmt.Errorf("create license: %w", err)
	}

	wf.fanOutCreated(ctx, ownerID, model.LeaveKindLicense, l.ID)
	return l, nil
}

// TransitionInput 审批迁移参数
type TransitionInput struct {
	Status    model.LeaveStatus
	Reason    *string
	SEINumber *string // 休假专用
}

// Transition 执行审批状态迁移
//
// 约束（顺序即检查顺序）：
//  1. 操作人必须具备审批权限
//  2. 目标状态必须是该类别允许的审批终点
//  3. 记录必须存在且当前为 pending
//
// 并发审批时存储层守卫更新兜底：后到者拿到冲突错误。
func (wf *Workflow) Transition(ctx context.Context, actor *auth.AuthUser, kind model.LeaveKind, id string, in TransitionInput) error {
	if actor == nil || !auth.CanReview(actor.Role) {
		return fmt.Errorf("review requires hr or admin role: %w", errdefs.ErrPermissionDenied)
	}
	if !model.ValidTarget(kind, in.Status) {
		return fmt.Errorf("invalid target status %q for %s: %w", in.Status, kind, errdefs.ErrInvalidArgument)
	}

	ownerID, status, err := wf.currentState(ctx, kind, id)
	if err != nil {
		return err
	}
	if status != model.LeaveStatusPending {
		return fmt.Errorf("record %s is %s, only pending records can transition: %w", id, status, errdefs.ErrFailedPrecondition)
	}

	reviewedAt := time.Now()
	switch kind {
	case model.LeaveKindMedical:
		err = wf.store.ReviewMedicalLeave(ctx, id, in.Status, actor.ID, reviewedAt, in.Reason)
	case model.LeaveKindVacation:
		err = wf.store.ReviewVacationPeriod(ctx, id, in.Status, actor.ID, reviewedAt, in.Reason, in.SEINumber)
	case model.LeaveKindLicense:
		err = wf.store.ReviewLicense(ctx, id, in.Status, actor.ID, reviewedAt, in.Reason)
	default:
		return fmt.Errorf("unknown leave kind %q: %w", kind, errdefs.ErrInvalidArgument)
	}
	if err != nil {
		if err == storage.ErrConflict {
			return fmt.Errorf("record %s was reviewed concurrently: %w", id, errdefs.ErrFailedPrecondition)
		}
		return fmt.Errorf("review %s: %w", id, err)
	}

	if wf.metrics != nil {
		wf.metrics.RecordLeaveTransition(string(kind), string(in.Status))
	}
	log.Printf("[leave] %s %s -> %s by %s", kind, id, in.Status, actor.ID)

	if wf.notifier != nil {
		if err := wf.notifier.NotifyRequestReviewed(ctx, ownerID, kind, id, in.Status, in.Reason); err != nil {
			log.Printf("[leave] Review notification for %s failed: %v", id, err)
		}
	}
	return nil
}

// UpdateVacationMarkers 更新已批准休假的 is_taken/is_expired 标记
//
// 仅记录归属人或审批角色可操作，且记录必须处于 approved 状态。
func (wf *Workflow) UpdateVacationMarkers(ctx context.Context, actor *auth.AuthUser, id string, isTaken, isExpired *bool) (*model.VacationPeriod, error) {
	if isTaken == nil && isExpired == nil {
		return nil, fmt.Errorf("is_taken or is_expired is required: %w", errdefs.ErrInvalidArgument)
	}

	v, err := wf.store.GetVacationPeriod(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get vacation period: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("vacation period %s: %w", id, errdefs.ErrNotFound)
	}
	if actor == nil || (v.UserID != actor.ID && !auth.CanReview(actor.Role)) {
		return nil, fmt.Errorf("not allowed to update this record: %w", errdefs.ErrPermissionDenied)
	}
	if v.Status != model.LeaveStatusApproved {
		return nil, fmt.Errorf("markers are mutable only while approved: %w", errdefs.ErrFailedPrecondition)
	}

	if err := wf.store.SetVacationMarkers(ctx, id, isTaken, isExpired); err != nil {
		if err == storage.ErrConflict {
			return nil, fmt.Errorf("record %s changed concurrently: %w", id, errdefs.ErrFailedPrecondition)
		}
		return nil, fmt.Errorf("set markers: %w", err)
	}

	return wf.store.GetVacationPeriod(ctx, id)
}

// currentState 按类别取记录归属人和当前状态
func (wf *Workflow) currentState(ctx context.Context, kind model.LeaveKind, id string) (string, model.LeaveStatus, error) {
	switch kind {
	case model.LeaveKindMedical:
		m, err := wf.store.GetMedicalLeave(ctx, id)
		if err != nil {
			return "", "", fmt.Errorf("get medical leave: %w", err)
		}
		if m == nil {
			return "", "", fmt.Errorf("medical leave %s: %w", id, errdefs.ErrNotFound)
		}
		return m.UserID, m.Status, nil
	case model.LeaveKindVacation:
		v, err := wf.store.GetVacationPeriod(ctx, id)
		if err != nil {
			return "", "", fmt.Errorf("get vacation period: %w", err)
		}
		if v == nil {
			return "", "", fmt.Errorf("vacation period %s: %w", id, errdefs.ErrNotFound)
		}
		return v.UserID, v.Status, nil
	case model.LeaveKindLicense:
		l, err := wf.store.GetLicense(ctx, id)
		if err != nil {
			return "", "", fmt.Errorf("get license: %w", err)
		}
		if l == nil {
			return "", "", fmt.Errorf("license %s: %w", id, errdefs.ErrNotFound)
		}
		return l.UserID, l.Status, nil
	}
	return "", "", fmt.Errorf("unknown leave kind %q: %w", kind, errdefs.ErrInvalidArgument)
}

// fanOutCreated 创建后的通知扇出，失败只记录日志（记录已落库）
func (wf *Workflow) fanOutCreated(ctx context.Context, ownerID string, kind model.LeaveKind, id string) {
	if wf.notifier == nil {
		return
	}
	if err := wf.notifier.NotifyRequestCreated(ctx, ownerID, kind, id); err != nil {
		log.Printf("[leave] Creation notification for %s failed: %v", id, err)
	}
}
