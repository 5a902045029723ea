package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/containerd/errdefs"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
)

// Handler 聊天 HTTP 处理器
type Handler struct {
	svc *Service
}

// NewHandler 创建聊天处理器
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册聊天路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat", h.Conversations)
	mux.HandleFunc("POST /api/chat/broadcast", auth.ReviewerOnly(h.Broadcast))
	mux.HandleFunc("GET /api/chat/{userId}", h.History)
	mux.HandleFunc("POST /api/chat/{userId}", h.Send)
	mux.HandleFunc("PATCH /api/chat/{userId}/read", h.MarkRead)
}

type sendRequest struct {
	Message string `json:"message"`
}

// Conversations 会话列表
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	conversations, err := h.svc.ListConversations(r.Context(), userID)
	if err != nil {
		log.Printf("[chat.conversations] error: %v", err)
		writeServiceError(w, err)
		return
	}
	if conversations == nil {
		conversations = []*model.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

// History 与某用户的历史消息
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	otherID := r.PathValue("userId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	msgs, err := h.svc.History(r.Context(), userID, otherID, limit, offset)
	if err != nil {
		log.Printf("[chat.history] error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// Send 发送私信
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.svc.SendDirect(r.Context(), userID, r.PathValue("userId"), req.Message)
	if err != nil {
		log.Printf("[chat.send] error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Broadcast 给全部其他用户广播私信
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := h.svc.SendBroadcast(r.Context(), userID, req.Message)
	if err != nil {
		log.Printf("[chat.broadcast] error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "broadcast sent",
		"count":   count,
	})
}

// MarkRead 标记与某用户的会话已读
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	count, err := h.svc.MarkRead(r.Context(), userID, r.PathValue("userId"))
	if err != nil {
		log.Printf("[chat.read] error: %v", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "conversation marked as read",
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
