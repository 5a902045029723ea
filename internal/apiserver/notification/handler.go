package notification

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/containerd/errdefs"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
	"leave-admin/internal/shared/storage"
)

// Handler 通知 HTTP 处理器
type Handler struct {
	svc   *Service
	store Store
}

// NewHandler 创建通知处理器
func NewHandler(svc *Service, store Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// RegisterRoutes 注册通知路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/notifications/send", auth.ReviewerOnly(h.Send))
	mux.HandleFunc("GET /api/notifications", h.List)
	mux.HandleFunc("PATCH /api/notifications/read-all", h.MarkAllRead)
	mux.HandleFunc("PATCH /api/notifications/{id}/read", h.MarkRead)
}

type sendRequest struct {
	UserIDs []string               `json:"user_ids"`
	Type    model.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
}

// Send 管理员/HR 发送通知：user_ids 为空表示发给全部在职用户
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetAuthUser(r.Context())

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "title and message are required")
		return
	}
	if req.Type == "" {
		req.Type = model.NotificationGeneral
	}
	if !model.ValidNotificationType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid notification type")
		return
	}

	var (
		count int
		err   error
	)
	if len(req.UserIDs) == 0 {
		exclude := ""
		if actor != nil {
			exclude = actor.ID
		}
		count, err = h.svc.NotifyAll(r.Context(), exclude, req.Type, req.Title, req.Message)
	} else {
		count, err = h.svc.NotifySelected(r.Context(), req.UserIDs, req.Type, req.Title, req.Message)
	}
	if err != nil {
		log.Printf("[notification.send] error: %v", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "notifications sent",
		"count":   count,
	})
}

// List 当前用户的通知列表与未读计数
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	notifications, err := h.store.ListNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("[notification.list] error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	unread, err := h.store.CountUnreadNotifications(r.Context(), userID)
	if err != nil {
		log.Printf("[notification.list] count error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if notifications == nil {
		notifications = []*model.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkRead 把自己的一条通知标记为已读
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id := r.PathValue("id")
	if err := h.store.MarkNotificationRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Printf("[notification.read] error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "notification marked as read"})
}

// MarkAllRead 把自己的全部通知标记为已读
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	count, err := h.store.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		log.Printf("[notification.read-all] error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "all notifications marked as read",
		"count":   count,
	})
}

// currentUserID 取当前用户；无认证模式下退回 query 参数（开发调试用）
func currentUserID(r *http.Request) (string, bool) {
	if u := auth.GetAuthUser(r.Context()); u != nil {
		return u.ID, true
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id, true
	}
	return "", false
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
