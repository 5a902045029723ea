package leave

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/containerd/errdefs"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

// ListStore 列表/详情查询所需的存储接口
type ListStore interface {
	GetMedicalLeave(ctx context.Context, id string) (*model.MedicalLeave, error)
	ListMedicalLeaves(ctx context.Context, f storage.LeaveFilter) ([]*model.MedicalLeave, error)
	GetVacationPeriod(ctx context.Context, id string) (*model.VacationPeriod, error)
	ListVacationPeriods(ctx context.Context, f storage.LeaveFilter) ([]*model.VacationPeriod, error)
	GetLicense(ctx context.Context, id string) (*model.License, error)
	ListLicenses(ctx context.Context, f storage.LeaveFilter) ([]*model.License, error)
}

// Handler 请假 HTTP 处理器
type Handler struct {
	store    ListStore
	workflow *Workflow
}

// NewHandler 创建请假处理器
func NewHandler(store ListStore, workflow *Workflow) *Handler {
	return &Handler{store: store, workflow: workflow}
}

// RegisterRoutes 注册请假相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/medical-leaves", h.CreateMedicalLeave)
	mux.HandleFunc("GET /api/medical-leaves", h.ListMedicalLeaves)
	mux.HandleFunc("GET /api/medical-leaves/{id}", h.GetMedicalLeave)
	mux.HandleFunc("PATCH /api/medical-leaves/{id}/status", h.ReviewMedicalLeave)

	mux.HandleFunc("POST /api/vacation-periods", h.CreateVacationPeriod)
	mux.HandleFunc("GET /api/vacation-periods", h.ListVacationPeriods)
	mux.HandleFunc("GET /api/vacation-periods/{id}", h.GetVacationPeriod)
	mux.HandleFunc("PATCH /api/vacation-periods/{id}", h.PatchVacationPeriod)

	mux.HandleFunc("POST /api/licenses", h.CreateLicense)
	mux.HandleFunc("GET /api/licenses", h.ListLicenses)
	mux.HandleFunc("GET /api/licenses/{id}", h.GetLicense)
	mux.HandleFunc("PATCH /api/licenses/{id}/status", h.ReviewLicense)
	// 与前端既有调用兼容的别名
	mux.HandleFunc("PATCH /api/licenses/{id}", h.ReviewLicense)
}

// patchRequest 审批/标记更新的统一请求体
type patchRequest struct {
	Status          *model.LeaveStatus `json:"status,omitempty"`
	RejectionReason *string            `json:"rejection_reason,omitempty"`
	SEINumber       *string            `json:"sei_number,omitempty"`
	IsTaken         *bool              `json:"is_taken,omitempty"`
	IsExpired       *bool              `json:"is_expired,omitempty"`
}

// ============================================================================
// MedicalLeave
// ============================================================================

func (h *Handler) CreateMedicalLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.workflow.CreateMedicalLeave(r.Context(), actor, in)
	if err != nil {
		log.Printf("[leave.medical] create error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) ListMedicalLeaves(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	list, err := h.store.ListMedicalLeaves(r.Context(), listFilter(r, actor))
	if err != nil {
		log.Printf("[leave.medical] list error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*model.MedicalLeave{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetMedicalLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	m, err := h.store.GetMedicalLeave(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[leave.medical] get error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "medical leave not found")
		return
	}
	if !canSee(actor, m.UserID) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) ReviewMedicalLeave(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, model.LeaveKindMedical, func(ctx context.Context) (interface{}, error) {
		return h.store.GetMedicalLeave(ctx, r.PathValue("id"))
	})
}

// ============================================================================
// VacationPeriod
// ============================================================================

func (h *Handler) CreateVacationPeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.workflow.CreateVacationPeriod(r.Context(), actor, in)
	if err != nil {
		log.Printf("[leave.vacation] create error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) ListVacationPeriods(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	list, err := h.store.ListVacationPeriods(r.Context(), listFilter(r, actor))
	if err != nil {
		log.Printf("[leave.vacation] list error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*model.VacationPeriod{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetVacationPeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	v, err := h.store.GetVacationPeriod(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[leave.vacation] get error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "vacation period not found")
		return
	}
	if !canSee(actor, v.UserID) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// PatchVacationPeriod 状态迁移或标记更新，按请求体字段区分
func (h *Handler) PatchVacationPeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")

	// 状态迁移优先；否则按标记更新处理
	if req.Status != nil {
		err := h.workflow.Transition(r.Context(), actor, model.LeaveKindVacation, id, TransitionInput{
			Status:    *req.Status,
			Reason:    req.RejectionReason,
			SEINumber: req.SEINumber,
		})
		if err != nil {
			log.Printf("[leave.vacation] review error: %v", err)
			writeServiceError(w, err)
			return
		}
		v, err := h.store.GetVacationPeriod(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	v, err := h.workflow.UpdateVacationMarkers(r.Context(), actor, id, req.IsTaken, req.IsExpired)
	if err != nil {
		log.Printf("[leave.vacation] markers error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ============================================================================
// License
// ============================================================================

func (h *Handler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l, err := h.workflow.CreateLicense(r.Context(), actor, in)
	if err != nil {
		log.Printf("[leave.license] create error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	list, err := h.store.ListLicenses(r.Context(), listFilter(r, actor))
	if err != nil {
		log.Printf("[leave.license] list error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*model.License{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	l, err := h.store.GetLicense(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[leave.license] get error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "license not found")
		return
	}
	if !canSee(actor, l.UserID) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) ReviewLicense(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, model.LeaveKindLicense, func(ctx context.Context) (interface{}, error) {
		return h.store.GetLicense(ctx, r.PathValue("id"))
	})
}

// ============================================================================
// 共用逻辑
// ============================================================================

// review 病假/许可假的状态迁移处理
func (h *Handler) review(w http.ResponseWriter, r *http.Request, kind model.LeaveKind, reload func(context.Context) (interface{}, error)) {
	actor, ok := currentActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == nil {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	err := h.workflow.Transition(r.Context(), actor, kind, r.PathValue("id"), TransitionInput{
		Status: *req.Status,
		Reason: req.RejectionReason,
	})
	if err != nil {
		log.Printf("[leave.%s] review error: %v", kind, err)
		writeServiceError(w, err)
		return
	}

	record, err := reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// listFilter 列表过滤：普通用户只能看自己的记录，
// 审批角色默认看全部，可用 user_id 参数过滤
func listFilter(r *http.Request, actor *auth.AuthUser) storage.LeaveFilter {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	f := storage.LeaveFilter{
		Status: model.LeaveStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if auth.CanReview(actor.Role) {
		f.UserID = r.URL.Query().Get("user_id")
	} else {
		f.UserID = actor.ID
	}
	return f
}

// canSee 详情可见性：本人或审批角色
func canSee(actor *auth.AuthUser, ownerID string) bool {
	return actor.ID == ownerID || auth.CanReview(actor.Role)
}

// currentActor 取当前操作人
//
// 无认证模式（开发环境）下由 user_id/role 查询参数充当身份，
// 默认给审批权限方便本地调试。
func currentActor(r *http.Request) (*auth.AuthUser, bool) {
	if u := auth.GetAuthUser(r.Context()); u != nil {
		return u, true
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		role := model.UserRole(r.URL.Query().Get("role"))
		if !model.ValidRole(role) {
			role = model.UserRoleAdmin
		}
		return &auth.AuthUser{ID: id, Role: role}, true
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError 领域错误到 HTTP 状态码的映射
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errdefs.IsInvalidArgument(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errdefs.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errdefs.IsPermissionDenied(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errdefs.IsFailedPrecondition(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
