package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
)

const (
	readLimit      = 4096
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// upgrader WebSocket 升级器配置
//
// 配置说明：
//   - ReadBufferSize: 读缓冲区大小
//   - WriteBufferSize: 写缓冲区大小
//   - CheckOrigin: 跨域检查（当前允许所有来源，生产环境应限制）
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChatSender 网关处理入站聊天帧所需的最小接口
//
// 由 chat.Service 实现；接口定义在消费方避免包循环。
type ChatSender interface {
	SendDirect(ctx context.Context, senderID, receiverID, text string) (*model.ChatMessage, error)
	MarkRead(ctx context.Context, userID, otherUserID string) (int64, error)
}

// WSHandler WebSocket 入口处理器
//
// 连接生命周期：
//  1. 升级后处于未认证状态，只接受 auth 帧
//  2. auth 帧校验 JWT（无认证模式下接受 user_id 直连）
//  3. 认证成功后登记到注册表，开始接收推送和入站消息
//  4. 读错误即断开，注册表清理
type WSHandler struct {
	registry *ConnectionRegistry
	authCfg  auth.Config
	chat     ChatSender
	metrics  *Metrics
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(registry *ConnectionRegistry, authCfg auth.Config, metrics *Metrics) *WSHandler {
	return &WSHandler{registry: registry, authCfg: authCfg, metrics: metrics}
}

// SetChatSender 注入聊天服务（构造顺序上晚于网关，单独注入）
func (h *WSHandler) SetChatSender(chat ChatSender) {
	h.chat = chat
}

// 入站帧
type inboundFrame struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	ReceiverID string `json:"receiver_id,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/chat
//
// 客户端消息：
//
//	认证：{"type": "auth", "token": "<jwt>"} -> {"type": "auth_ok", "user_id": "..."}
//	心跳：{"type": "ping"} -> {"type": "pong"}
//	发消息：{"type": "chat", "receiver_id": "...", "message": "..."}
//	标记已读：{"type": "mark_read", "sender_id": "..."}
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] Upgrade error: %v", err)
		return
	}

	conn := &Connection{conn: wsConn, CreatedAt: time.Now()}
	defer wsConn.Close()

	if h.metrics != nil {
		h.metrics.WSConnectionOpened()
		defer h.metrics.WSConnectionClosed()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.pingLoop(ctx, conn)

	h.readPump(ctx, conn)

	if conn.UserID != "" {
		h.registry.Unregister(conn.UserID, conn)
		log.Printf("[ws] User %s disconnected", conn.UserID)
	}
}

// readPump 读取并分发客户端消息，读错误即返回
func (h *WSHandler) readPump(ctx context.Context, conn *Connection) {
	ws := conn.conn
	ws.SetReadLimit(readLimit)
	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] Read error: %v", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		var frame inboundFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			log.Printf("[ws] Malformed frame ignored: %v", err)
			continue
		}

		if h.metrics != nil {
			h.metrics.RecordWSMessage("inbound", frame.Type)
		}

		switch frame.Type {
		case "ping":
			conn.WriteJSON(map[string]string{"type": "pong"})
		case "auth":
			h.handleAuth(conn, &frame)
		case "chat":
			h.handleChat(ctx, conn, &frame)
		case "mark_read":
			h.handleMarkRead(ctx, conn, &frame)
		default:
			log.Printf("[ws] Unknown frame type %q ignored", frame.Type)
		}
	}
}

// handleAuth 处理认证帧并登记连接
func (h *WSHandler) handleAuth(conn *Connection, frame *inboundFrame) {
	if conn.UserID != "" {
		// 重复认证：忽略
		return
	}

	var userID string
	switch {
	case frame.Token != "" && h.authCfg.Enabled():
		claims, err := auth.ParseToken(h.authCfg, frame.Token)
		if err != nil || claims.Type != "access" {
			log.Printf("[ws] Auth failed: %v", err)
			conn.WriteJSON(map[string]string{"type": "error", "error": "invalid token"})
			return
		}
		userID = claims.Subject
	case frame.UserID != "" && !h.authCfg.Enabled():
		// 开发模式：无 JWT 密钥时允许 user_id 直连
		userID = frame.UserID
	default:
		conn.WriteJSON(map[string]string{"type": "error", "error": "authentication required"})
		return
	}

	conn.UserID = userID
	h.registry.Register(userID, conn)
	conn.WriteJSON(map[string]string{"type": "auth_ok", "user_id": userID})
	log.Printf("[ws] User %s connected (%d total connections)", userID, h.registry.Count())
}

// handleChat 认证后的入站聊天帧：走聊天服务落库并推送
func (h *WSHandler) handleChat(ctx context.Context, conn *Connection, frame *inboundFrame) {
	if conn.UserID == "" {
		log.Printf("[ws] Chat frame before auth ignored")
		return
	}
	if h.chat == nil {
		return
	}

	if _, err := h.chat.SendDirect(ctx, conn.UserID, frame.ReceiverID, frame.Message); err != nil {
		log.Printf("[ws] Chat send from %s failed: %v", conn.UserID, err)
		conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
	}
}

// handleMarkRead 认证后的已读帧
func (h *WSHandler) handleMarkRead(ctx context.Context, conn *Connection, frame *inboundFrame) {
	if conn.UserID == "" {
		log.Printf("[ws] Mark-read frame before auth ignored")
		return
	}
	if h.chat == nil || frame.SenderID == "" {
		return
	}

	if _, err := h.chat.MarkRead(ctx, conn.UserID, frame.SenderID); err != nil {
		log.Printf("[ws] Mark read for %s failed: %v", conn.UserID, err)
	}
}

// pingLoop 周期性发送 ping 保活，写失败即退出
func (h *WSHandler) pingLoop(ctx context.Context, conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}
