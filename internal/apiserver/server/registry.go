package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection 网关持有的单个 WebSocket 连接
//
// 写操作必须经过 Send/写锁串行化：gorilla/websocket 不允许
// 并发写同一连接。
type Connection struct {
	UserID    string
	CreatedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Send 序列化后的推送帧写入连接（带写超时）
func (c *Connection) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// WriteJSON 控制消息（auth_ok、pong、error）直接写 JSON
func (c *Connection) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// Ping 发送 ping 控制帧
func (c *Connection) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close 关闭底层连接
func (c *Connection) Close() error {
	return c.conn.Close()
}

// ConnectionRegistry 按用户索引的在线连接表
//
// 同一用户允许多个并发连接（多标签页/多设备），每个连接
// 独立接收推送。用户没有任何连接即视为离线。
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string][]*Connection

	// maxPerUser 单用户连接数上限，超出时淘汰最旧连接
	maxPerUser int
}

// NewConnectionRegistry 创建连接注册表
func NewConnectionRegistry(maxPerUser int) *ConnectionRegistry {
	if maxPerUser <= 0 {
		maxPerUser = 8
	}
	return &ConnectionRegistry{
		connections: make(map[string][]*Connection),
		maxPerUser:  maxPerUser,
	}
}

// Register 登记已完成认证的连接
//
// 达到单用户上限时关闭并移除最旧的连接。
func (r *ConnectionRegistry) Register(userID string, conn *Connection) {
	var evicted *Connection

	r.mu.Lock()
	conns := append(r.connections[userID], conn)
	if len(conns) > r.maxPerUser {
		evicted = conns[0]
		conns = conns[1:]
	}
	r.connections[userID] = conns
	r.mu.Unlock()

	if evicted != nil {
		log.Printf("[ws] Connection limit reached for user %s, evicting oldest", userID)
		evicted.Close()
	}
}

// Unregister 移除连接（断开时调用），最后一个连接移除后清理整个条目
func (r *ConnectionRegistry) Unregister(userID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.connections[userID]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.connections, userID)
	} else {
		r.connections[userID] = conns
	}
}

// Connections 返回该用户当前连接的快照
func (r *ConnectionRegistry) Connections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Connection(nil), r.connections[userID]...)
}

// OnlineUserIDs 返回当前至少有一个连接的用户列表
func (r *ConnectionRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	return ids
}

// Count 当前连接总数
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.connections {
		n += len(conns)
	}
	return n
}
