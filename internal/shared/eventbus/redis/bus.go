// Package redis 基于 Redis Pub/Sub 的推送事件总线实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"leave-admin/internal/shared/eventbus"
)

// pushChannel 所有副本共享的推送频道
const pushChannel = "leave-admin:push"

// Bus Redis Pub/Sub 事件总线
type Bus struct {
	client *redis.Client
}

var _ eventbus.Bus = (*Bus)(nil)

// NewBus 从 URL 创建事件总线并校验连通性
func NewBus(redisURL string) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[EventBus/Redis] Connected to %s", opts.Addr)
	return &Bus{client: client}, nil
}

// NewBusFromClient 复用已有客户端创建事件总线
func NewBusFromClient(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish 发布推送事件
func (b *Bus) Publish(ctx context.Context, ev *eventbus.PushEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal push event: %w", err)
	}
	if err := b.client.Publish(ctx, pushChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish push event: %w", err)
	}
	return nil
}

// Subscribe 订阅推送事件直到 ctx 取消
//
// 解析失败的消息只记录日志后跳过，不中断订阅循环。
func (b *Bus) Subscribe(ctx context.Context, handler func(*eventbus.PushEvent)) error {
	sub := b.client.Subscribe(ctx, pushChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("failed to subscribe push channel: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev := &eventbus.PushEvent{}
				if err := json.Unmarshal([]byte(msg.Payload), ev); err != nil {
					log.Printf("[EventBus/Redis] Failed to unmarshal push event: %v", err)
					continue
				}
				handler(ev)
			}
		}
	}()
	return nil
}

// Close 关闭 Redis 连接
func (b *Bus) Close() error {
	return b.client.Close()
}
