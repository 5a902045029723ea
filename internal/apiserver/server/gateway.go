package server

import (
	"context"
	"encoding/json"
	"log"

	"leave-admin/internal/shared/eventbus"
	"leave-admin/internal/shared/model"
)

// GatewayUserStore 网关解析角色所需的最小用户存储接口
type GatewayUserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// PushGateway 实时推送网关
//
// 投递是尽力而为的：没有在线连接时丢弃（业务数据已先落库），
// 单个连接写失败只摘除该连接，不影响其余投递。
//
// 配置了事件总线（多副本部署）时，SendToUser/BroadcastToRole
// 只负责发布事件；实际投递发生在各副本的总线消费循环里，
// 发布方自己也通过消费循环向本地连接投递。
type PushGateway struct {
	registry *ConnectionRegistry
	users    GatewayUserStore
	bus      eventbus.Bus // nil 表示单副本本地直投
	metrics  *Metrics
}

// NewPushGateway 创建推送网关
func NewPushGateway(registry *ConnectionRegistry, users GatewayUserStore, bus eventbus.Bus, metrics *Metrics) *PushGateway {
	return &PushGateway{
		registry: registry,
		users:    users,
		bus:      bus,
		metrics:  metrics,
	}
}

// StartBusConsumer 启动事件总线消费循环（bus 为 nil 时不做任何事）
func (g *PushGateway) StartBusConsumer(ctx context.Context) error {
	if g.bus == nil {
		return nil
	}
	return g.bus.Subscribe(ctx, func(ev *eventbus.PushEvent) {
		if ev.UserID != "" {
			g.deliverToUser(ev.UserID, ev.Payload)
			return
		}
		if len(ev.Roles) > 0 {
			g.deliverToRoles(ev.Roles, ev.Payload)
		}
	})
}

// SendToUser 序列化一次后向该用户的所有在线连接投递
//
// 用户离线时仅记录日志，不返回错误。
func (g *PushGateway) SendToUser(userID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[push] Failed to marshal payload for user %s: %v", userID, err)
		return
	}

	if g.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := g.bus.Publish(ctx, &eventbus.PushEvent{UserID: userID, Payload: data}); err != nil {
			log.Printf("[push] Bus publish failed, falling back to local delivery: %v", err)
			g.deliverToUser(userID, data)
		}
		return
	}

	g.deliverToUser(userID, data)
}

// BroadcastToRole 向指定角色的全部在线用户投递
func (g *PushGateway) BroadcastToRole(role model.UserRole, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[push] Failed to marshal broadcast payload: %v", err)
		return
	}

	if g.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := g.bus.Publish(ctx, &eventbus.PushEvent{Roles: []string{string(role)}, Payload: data}); err != nil {
			log.Printf("[push] Bus publish failed, falling back to local delivery: %v", err)
			g.deliverToRoles([]string{string(role)}, data)
		}
		return
	}

	g.deliverToRoles([]string{string(role)}, data)
}

// deliverToUser 向本副本持有的该用户连接逐一写入
func (g *PushGateway) deliverToUser(userID string, data []byte) {
	conns := g.registry.Connections(userID)
	if len(conns) == 0 {
		log.Printf("[push] User %s offline, message dropped", userID)
		return
	}

	for _, conn := range conns {
		if err := conn.Send(data); err != nil {
			log.Printf("[push] Write to user %s failed, dropping connection: %v", userID, err)
			g.registry.Unregister(userID, conn)
			conn.Close()
			continue
		}
		if g.metrics != nil {
			g.metrics.RecordPush("user")
		}
	}
}

// deliverToRoles 角色过滤后投递
//
// 只查本副本在线用户的角色，离线用户不产生任何存储查询。
func (g *PushGateway) deliverToRoles(roles []string, data []byte) {
	wanted := make(map[string]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	for _, userID := range g.registry.OnlineUserIDs() {
		user, err := g.users.GetUserByID(ctx, userID)
		if err != nil {
			log.Printf("[push] Failed to resolve role for user %s: %v", userID, err)
			continue
		}
		if user == nil || !wanted[string(user.Role)] {
			continue
		}
		g.deliverToUser(userID, data)
	}
}
