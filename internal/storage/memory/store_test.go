package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContact(id, aliasID, website, reply string) *domain.Contact {
	return &domain.Contact{
		ID:           id,
		AliasID:      aliasID,
		WebsiteEmail: website,
		WebsiteFrom:  website,
		ReplyEmail:   reply,
		CreatedAt:    time.Now(),
	}
}

func TestMemoryStore_AliasOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	alias := &domain.Alias{ID: "alias-1", UserID: "user-1", Address: "Shop@Relay.Example", Enabled: true}
	require.NoError(t, store.CreateAlias(ctx, alias))

	// 地址大小写不敏感
	got, err := store.GetAliasByAddress(ctx, "shop@relay.example")
	require.NoError(t, err)
	assert.Equal(t, "alias-1", got.ID)

	err = store.CreateAlias(ctx, &domain.Alias{ID: "alias-2", UserID: "user-1", Address: "shop@relay.example"})
	assert.ErrorIs(t, err, storage.ErrAliasExists)

	require.NoError(t, store.SetAliasEnabled(ctx, "alias-1", false))
	got, err = store.GetAlias(ctx, "alias-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	n, err := store.CountAliasesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.GetAlias(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	assert.ErrorIs(t, store.SetAliasEnabled(ctx, "missing", true), storage.ErrAliasNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.CreateAlias(ctx, &domain.Alias{ID: "alias-1", Address: "a@relay.example", Enabled: true}))

	got, err := store.GetAlias(ctx, "alias-1")
	require.NoError(t, err)
	got.Enabled = false

	again, err := store.GetAlias(ctx, "alias-1")
	require.NoError(t, err)
	assert.True(t, again.Enabled)
}

func TestMemoryStore_ContactUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateContact(ctx, newContact("c1", "alias-1", "jane@biz.example", "reply+aaa@relay.example")))

	err := store.CreateContact(ctx, newContact("c2", "alias-1", "jane@biz.example", "reply+bbb@relay.example"))
	assert.ErrorIs(t, err, storage.ErrContactExists)

	err = store.CreateContact(ctx, newContact("c3", "alias-2", "jane@biz.example", "reply+aaa@relay.example"))
	assert.ErrorIs(t, err, storage.ErrReplyEmailExists)

	// 同一通信方在不同别名下可以各有一条映射
	require.NoError(t, store.CreateContact(ctx, newContact("c4", "alias-2", "jane@biz.example", "reply+ccc@relay.example")))

	exists, err := store.ReplyEmailExists(ctx, "REPLY+AAA@relay.example")
	require.NoError(t, err)
	assert.True(t, exists)

	c, err := store.GetContactByReplyEmail(ctx, "reply+ccc@relay.example")
	require.NoError(t, err)
	assert.Equal(t, "c4", c.ID)

	c, err = store.GetContactByAliasAndWebsite(ctx, "alias-1", "jane@biz.example")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	_, err = store.GetContactByAliasAndWebsite(ctx, "alias-3", "jane@biz.example")
	assert.ErrorIs(t, err, storage.ErrContactNotFound)
}

func TestMemoryStore_ConcurrentContactCreate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.CreateContact(ctx, newContact(fmt.Sprintf("c%d", i), "alias-1", "jane@biz.example", fmt.Sprintf("reply+%d@relay.example", i)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.Is(err, storage.ErrContactExists) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 19, conflicts)
}

func TestMemoryStore_Atomic(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.CreateContact(ctx, newContact("c1", "alias-1", "jane@biz.example", "reply+aaa@relay.example")))

	t.Run("commit applies every write", func(t *testing.T) {
		err := store.Atomic(ctx, func(tx storage.Tx) error {
			if err := tx.UpdateContactWebsiteFrom(ctx, "c1", "Jane <jane@biz.example>"); err != nil {
				return err
			}
			return tx.CreateActivity(ctx, &domain.ActivityLog{ID: "log-1", ContactID: "c1", CreatedAt: time.Now()})
		})
		require.NoError(t, err)

		c, err := store.GetContact(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Jane <jane@biz.example>", c.WebsiteFrom)
		assert.Len(t, store.Activities(), 1)
	})

	t.Run("fn error discards buffered writes", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Atomic(ctx, func(tx storage.Tx) error {
			_ = tx.UpdateContactWebsiteFrom(ctx, "c1", "Other <jane@biz.example>")
			_ = tx.CreateActivity(ctx, &domain.ActivityLog{ID: "log-2", ContactID: "c1"})
			return boom
		})
		assert.ErrorIs(t, err, boom)

		c, _ := store.GetContact(ctx, "c1")
		assert.Equal(t, "Jane <jane@biz.example>", c.WebsiteFrom)
		assert.Len(t, store.Activities(), 1)
	})

	t.Run("failing write rolls back earlier ones", func(t *testing.T) {
		err := store.Atomic(ctx, func(tx storage.Tx) error {
			_ = tx.UpdateContactWebsiteFrom(ctx, "c1", "Changed <jane@biz.example>")
			_ = tx.CreateActivity(ctx, &domain.ActivityLog{ID: "log-3", ContactID: "c1"})
			return tx.CreateActivity(ctx, &domain.ActivityLog{ID: "log-4", ContactID: "missing"})
		})
		assert.ErrorIs(t, err, storage.ErrContactNotFound)

		c, _ := store.GetContact(ctx, "c1")
		assert.Equal(t, "Jane <jane@biz.example>", c.WebsiteFrom)
		assert.Len(t, store.Activities(), 1)
	})
}

func TestMemoryStore_AtomicRollbackLeavesOtherContacts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.CreateContact(ctx, newContact("c1", "alias-1", "jane@biz.example", "reply+aaa@relay.example")))
	require.NoError(t, store.CreateContact(ctx, newContact("c2", "alias-2", "bob@biz.example", "reply+bbb@relay.example")))

	touched := store.contacts["c1"]
	untouched := store.contacts["c2"]

	err := store.Atomic(ctx, func(tx storage.Tx) error {
		_ = tx.UpdateContactWebsiteFrom(ctx, "c1", "Changed <jane@biz.example>")
		return tx.CreateActivity(ctx, &domain.ActivityLog{ID: "log-1", ContactID: "missing"})
	})
	assert.ErrorIs(t, err, storage.ErrContactNotFound)

	assert.Same(t, touched, store.contacts["c1"])
	assert.Same(t, untouched, store.contacts["c2"])
	assert.Equal(t, "jane@biz.example", store.contacts["c1"].WebsiteFrom)
	assert.Empty(t, store.Activities())
}

func TestMemoryStore_ActivitiesAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.CreateContact(ctx, newContact("c1", "alias-1", "jane@biz.example", "reply+aaa@relay.example")))
	require.NoError(t, store.CreateContact(ctx, newContact("c2", "alias-2", "bob@biz.example", "reply+bbb@relay.example")))

	logs := []*domain.ActivityLog{
		{ID: "l1", ContactID: "c1"},
		{ID: "l2", ContactID: "c1", Blocked: true},
		{ID: "l3", ContactID: "c1", IsReply: true},
		{ID: "l4", ContactID: "c1"},
		{ID: "l5", ContactID: "c2"},
	}
	for _, l := range logs {
		l := l
		require.NoError(t, store.Atomic(ctx, func(tx storage.Tx) error {
			return tx.CreateActivity(ctx, l)
		}))
	}

	rows, err := store.ListAliasActivities(ctx, "alias-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "l4", rows[0].Log.ID)
	assert.Equal(t, "l3", rows[1].Log.ID)
	assert.Equal(t, "jane@biz.example", rows[0].Contact.WebsiteEmail)

	rows, err = store.ListAliasActivities(ctx, "alias-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "l1", rows[1].Log.ID)

	rows, err = store.ListAliasActivities(ctx, "alias-1", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	stats, err := store.AliasStats(ctx, "alias-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Forwarded)
	assert.EqualValues(t, 1, stats.Blocked)
	assert.EqualValues(t, 1, stats.Replied)
}

func TestMemoryStore_DirectoryAndDomains(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.SaveDirectory(ctx, &domain.Directory{ID: "dir-1", UserID: "user-1", Name: "Sales"}))
	require.NoError(t, store.SaveCustomDomain(ctx, &domain.CustomDomain{ID: "cd-1", Domain: "Mine.Example"}))

	dir, err := store.GetDirectoryByName(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, "dir-1", dir.ID)

	cd, err := store.GetCustomDomainByDomain(ctx, "mine.example")
	require.NoError(t, err)
	assert.Equal(t, "cd-1", cd.ID)

	_, err = store.GetDirectoryByName(ctx, "other")
	assert.ErrorIs(t, err, storage.ErrDirectoryNotFound)
	_, err = store.GetCustomDomainByDomain(ctx, "other.example")
	assert.ErrorIs(t, err, storage.ErrCustomDomainNotFound)
}
