package memory

import (
	"context"
	"time"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// memTx 缓冲写操作，提交时在同一把锁内一次性应用。
type memTx struct {
	ops     []func(s *Store) error
	touched []string // 被修改的联系人 ID，用于回滚快照
}

// UpdateContactWebsiteFrom 更新联系人的展示用 From 头。
func (t *memTx) UpdateContactWebsiteFrom(_ context.Context, contactID, websiteFrom string) error {
	t.touched = append(t.touched, contactID)
	t.ops = append(t.ops, func(s *Store) error {
		c, ok := s.contacts[contactID]
		if !ok {
			return storage.ErrContactNotFound
		}
		c.WebsiteFrom = websiteFrom
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
	return nil
}

// CreateActivity 追加活动记录。
func (t *memTx) CreateActivity(_ context.Context, entry *domain.ActivityLog) error {
	cp := *entry
	t.ops = append(t.ops, func(s *Store) error {
		if _, ok := s.contacts[cp.ContactID]; !ok {
			return storage.ErrContactNotFound
		}
		s.activities = append(s.activities, &cp)
		return nil
	})
	return nil
}

// Atomic 执行 fn 并原子提交其写操作。
//
// 提交前先逐一校验，任一失败则不应用任何写操作。
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 回滚快照只覆盖本事务修改的联系人与活动切片长度
	backup := make(map[string]domain.Contact, len(tx.touched))
	for _, id := range tx.touched {
		if c, ok := s.contacts[id]; ok {
			backup[id] = *c
		}
	}
	activityLen := len(s.activities)

	for _, op := range tx.ops {
		if err := op(s); err != nil {
			for id, c := range backup {
				*s.contacts[id] = c
			}
			s.activities = s.activities[:activityLen]
			return err
		}
	}
	return nil
}
