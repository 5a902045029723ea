// Package eventbus 定义跨副本推送事件总线的抽象
//
// 单副本部署不需要总线（Bus 为 nil 时网关走本地直推）；
// 多副本部署通过 Redis Pub/Sub 把推送事件广播到所有副本，
// 各副本只向自己持有连接的用户投递。
package eventbus

import (
	"context"
	"encoding/json"
)

// PushEvent 跨副本推送事件
//
// Payload 是已序列化完成的推送帧，消费方原样投递，
// 避免每个副本重复序列化。
type PushEvent struct {
	// UserID 非空时定向投递给单个用户
	UserID string `json:"user_id,omitempty"`
	// Roles 非空时按角色广播（与 UserID 互斥）
	Roles   []string        `json:"roles,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Bus 推送事件总线
type Bus interface {
	// Publish 发布推送事件到所有副本（包括自己）
	Publish(ctx context.Context, ev *PushEvent) error

	// Subscribe 订阅推送事件，handler 在总线自己的 goroutine 中被调用，
	// 直到 ctx 取消为止
	Subscribe(ctx context.Context, handler func(*PushEvent)) error

	Close() error
}
