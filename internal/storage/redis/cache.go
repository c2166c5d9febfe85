package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache 以 JSON 形式缓存实体的 Redis 实现
type Cache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewCache 创建 Redis 缓存实例
func NewCache(client goredis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Get 读取缓存，未命中时返回 false
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// 格式损坏的缓存视为未命中
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Set 写入缓存
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping 测试 Redis 连接
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}

// ========== 缓存键 ==========

// ContactReplyKey 联系人缓存键（按回复地址）
func ContactReplyKey(replyEmail string) string {
	return fmt.Sprintf("contact:reply:%s", strings.ToLower(replyEmail))
}
