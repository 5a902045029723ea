// Package server 路由配置与核心基础设施
//
// 本包保留与连接生命周期强相关的模块：
//   - registry.go: 连接注册表
//   - gateway.go: 推送网关（本地直投 + 事件总线扇出）
//   - websocket.go: WebSocket 入口与认证
//   - metrics.go: Prometheus 指标
//
// 各领域 HTTP 接口在 apiserver/ 下的独立包中实现。
package server

import (
	"encoding/json"
	"net/http"

	"leave-admin/internal/apiserver/analytics"
	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/apiserver/chat"
	"leave-admin/internal/apiserver/document"
	"leave-admin/internal/apiserver/leave"
	"leave-admin/internal/apiserver/notification"
	"leave-admin/internal/shared/eventbus"
	"leave-admin/internal/shared/objstore"
	"leave-admin/internal/shared/storage"
)

// Handler API Server 顶层处理器：持有基础设施并组装领域服务
type Handler struct {
	store    storage.PersistentStore
	registry *ConnectionRegistry
	gateway  *PushGateway
	ws       *WSHandler
	metrics  *Metrics
	authCfg  auth.Config

	// docs 为 nil 时文档接口返回 501
	docs *objstore.Client

	notifSvc *notification.Service
	chatSvc  *chat.Service
	workflow *leave.Workflow
}

// NewHandler 创建顶层处理器并完成领域服务装配
//
// bus 为 nil 表示单副本部署，推送走本地直投。
func NewHandler(store storage.PersistentStore, authCfg auth.Config, bus eventbus.Bus, docs *objstore.Client, maxConnsPerUser int) *Handler {
	metrics := NewMetrics("leave_admin")
	registry := NewConnectionRegistry(maxConnsPerUser)
	gateway := NewPushGateway(registry, store, bus, metrics)
	ws := NewWSHandler(registry, authCfg, metrics)

	notifSvc := notification.NewService(store, gateway, metrics)
	chatSvc := chat.NewService(store, gateway)
	workflow := leave.NewWorkflow(store, notifSvc, metrics)

	ws.SetChatSender(chatSvc)

	return &Handler{
		store:    store,
		registry: registry,
		gateway:  gateway,
		ws:       ws,
		metrics:  metrics,
		authCfg:  authCfg,
		docs:     docs,
		notifSvc: notifSvc,
		chatSvc:  chatSvc,
		workflow: workflow,
	}
}

// Gateway 返回推送网关（main 启动总线消费循环用）
func (h *Handler) Gateway() *PushGateway {
	return h.gateway
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health
//
// 聊天 (Chat):
//   - GET    /api/chat                    - 会话列表
//   - GET    /api/chat/{userId}           - 与某用户的历史消息
//   - POST   /api/chat/{userId}           - 发送私信
//   - POST   /api/chat/broadcast          - 广播消息
//   - PATCH  /api/chat/{userId}/read      - 标记会话已读
//
// 审批 (Leave):
//   - POST/GET /api/medical-leaves        - 创建/列出病假
//   - GET    /api/medical-leaves/{id}
//   - PATCH  /api/medical-leaves/{id}/status
//   - POST/GET /api/vacation-periods      - 创建/列出休假
//   - GET    /api/vacation-periods/{id}
//   - PATCH  /api/vacation-periods/{id}   - 状态迁移或标记更新
//   - POST/GET /api/licenses              - 创建/列出许可假
//   - GET    /api/licenses/{id}
//   - PATCH  /api/licenses/{id}/status
//   - PATCH  /api/licenses/{id}
//
// 通知 (Notification):
//   - POST   /api/notifications/send      - 管理员/HR 定向或全员通知
//   - GET    /api/notifications           - 自己的通知
//   - PATCH  /api/notifications/{id}/read
//   - PATCH  /api/notifications/read-all
//
// 统计与文档:
//   - GET    /api/analytics/leaves
//   - POST   /api/documents
//   - GET    /api/documents/{key}
//
// WebSocket:
//   - GET    /ws/chat                     - 实时推送通道
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// Auth 与用户管理路由
	authHandler := auth.NewHandler(h.store, h.authCfg)
	authHandler.RegisterRoutes(mux)

	// 聊天接口
	chatHandler := chat.NewHandler(h.chatSvc)
	chatHandler.RegisterRoutes(mux)

	// 审批接口
	leaveHandler := leave.NewHandler(h.store, h.workflow)
	leaveHandler.RegisterRoutes(mux)

	// 通知接口
	notifHandler := notification.NewHandler(h.notifSvc, h.store)
	notifHandler.RegisterRoutes(mux)

	// 统计接口
	analyticsHandler := analytics.NewHandler(h.store)
	analyticsHandler.RegisterRoutes(mux)

	// 文档接口（MinIO 未配置时降级为 501）
	docHandler := document.NewHandler(h.docs)
	docHandler.RegisterRoutes(mux)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	authedHandler := auth.Middleware(h.authCfg)(apiHandler)

	// 应用 CORS 中间件
	corsHandler := corsMiddleware(authedHandler)

	// 顶层路由：WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/chat", h.ws.HandleWebSocket)
	topMux.Handle("/", corsHandler)

	return topMux
}

// Health 服务健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": h.registry.Count(),
	})
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
