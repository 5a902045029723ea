package analytics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

// Store 统计查询所需的存储接口
type Store interface {
	LeaveStats(ctx context.Context, kind model.LeaveKind) (*storage.LeaveStats, error)
}

// Handler 审批统计 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建统计处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册统计路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/analytics/leaves", auth.ReviewerOnly(h.LeaveStats))
}

var statKinds = []model.LeaveKind{
	model.LeaveKindMedical,
	model.LeaveKindVacation,
	model.LeaveKindLicense,
}

// LeaveStats 按请假类型返回审批统计
//
// kind 参数指定单一类型；缺省时返回全部三类。
func (h *Handler) LeaveStats(w http.ResponseWriter, r *http.Request) {
	kinds := statKinds
	if k := r.URL.Query().Get("kind"); k != "" {
		kind := model.LeaveKind(k)
		if !validKind(kind) {
			writeError(w, http.StatusBadRequest, "unknown leave kind: "+k)
			return
		}
		kinds = []model.LeaveKind{kind}
	}

	stats := make([]*storage.LeaveStats, 0, len(kinds))
	for _, kind := range kinds {
		s, err := h.store.LeaveStats(r.Context(), kind)
		if err != nil {
			log.Printf("[analytics] stats error for %s: %v", kind, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		stats = append(stats, s)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

func validKind(k model.LeaveKind) bool {
	for _, known := range statKinds {
		if k == known {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
