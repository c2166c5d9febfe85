package hybrid

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
	"aliasrelay/backend/internal/storage/redis"
)

// Cache 缓存层需要提供的能力
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store 混合存储实现：数据库为准，Redis 做读穿透缓存。
//
// 只缓存按回复地址查找联系人：映射的别名、通信方和回复地址生成后不再变化，
// 唯一可变的展示值只由本服务在 Atomic 中写入并失效。用户、别名、邮箱、目录和
// 自定义域名可能被控制台直接修改，套餐、启用状态和授权发件人必须每次回源数据库。
// 未命中的查询不缓存。
type Store struct {
	storage.Store
	cache Cache
	group singleflight.Group
	log   *zap.Logger
}

// NewStore 创建混合存储实例
func NewStore(db storage.Store, cache Cache, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{Store: db, cache: cache, log: log}
}

// readThrough 先查缓存，未命中时合并并发请求回源数据库，再写回缓存。
func readThrough[T any](ctx context.Context, s *Store, key string, load func(context.Context) (*T, error)) (*T, error) {
	var cached T
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, loaded); err != nil {
			s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight 的结果被多个调用方共享，返回副本
	cp := *(v.(*T))
	return &cp, nil
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// ========== 读穿透 ==========

// GetContactByReplyEmail 根据回复地址获取联系人
func (s *Store) GetContactByReplyEmail(ctx context.Context, replyEmail string) (*domain.Contact, error) {
	return readThrough(ctx, s, redis.ContactReplyKey(replyEmail), func(ctx context.Context) (*domain.Contact, error) {
		return s.Store.GetContactByReplyEmail(ctx, replyEmail)
	})
}

// ========== 事务与缓存失效 ==========

// trackingTx 记录事务内修改过的联系人，提交后统一失效缓存
type trackingTx struct {
	storage.Tx
	touched []string
}

func (t *trackingTx) UpdateContactWebsiteFrom(ctx context.Context, contactID, websiteFrom string) error {
	if err := t.Tx.UpdateContactWebsiteFrom(ctx, contactID, websiteFrom); err != nil {
		return err
	}
	t.touched = append(t.touched, contactID)
	return nil
}

// Atomic 在底层事务中执行 fn，提交成功后失效被修改联系人的缓存
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	var touched []string
	err := s.Store.Atomic(ctx, func(tx storage.Tx) error {
		tracking := &trackingTx{Tx: tx}
		if err := fn(tracking); err != nil {
			return err
		}
		touched = tracking.touched
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range touched {
		contact, err := s.Store.GetContact(ctx, id)
		if err != nil {
			if !errors.Is(err, storage.ErrContactNotFound) {
				s.log.Warn("failed to load contact for invalidation", zap.String("contact_id", id), zap.Error(err))
			}
			continue
		}
		s.invalidate(ctx, redis.ContactReplyKey(contact.ReplyEmail))
	}
	return nil
}

// ========== 工具方法 ==========

// Health 同时检查数据库与缓存
func (s *Store) Health() error {
	if err := s.Store.Health(); err != nil {
		return err
	}
	return s.cache.Ping(context.Background())
}

// Close 关闭数据库与缓存连接
func (s *Store) Close() error {
	dbErr := s.Store.Close()
	cacheErr := s.cache.Close()
	return errors.Join(dbErr, cacheErr)
}
