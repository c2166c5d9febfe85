package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

func TestAliasService_DeliveryTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, TokenConfig{})
	f.user(t, "u1", domain.TierFree)

	t.Run("未绑定邮箱时使用所有者默认邮箱", func(t *testing.T) {
		a := f.alias(t, "a1", "u1", "shop@relay.example")
		target, err := f.aliases.DeliveryTarget(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "u1@mailbox.example", target)
	})

	t.Run("绑定邮箱优先", func(t *testing.T) {
		require.NoError(t, f.store.SaveMailbox(ctx, &domain.Mailbox{ID: "mb1", UserID: "u1", Email: "work@mailbox.example"}))
		mbID := "mb1"
		a := &domain.Alias{ID: "a2", UserID: "u1", Address: "work@relay.example", MailboxID: &mbID}
		require.NoError(t, f.store.CreateAlias(ctx, a))

		target, err := f.aliases.DeliveryTarget(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "work@mailbox.example", target)
	})

	t.Run("邮箱丢失时返回错误", func(t *testing.T) {
		missing := "gone"
		_, err := f.aliases.DeliveryTarget(ctx, &domain.Alias{ID: "a3", UserID: "u1", MailboxID: &missing})
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})
}

func TestAliasService_ResolveCaseInsensitive(t *testing.T) {
	f := newFixture(t, TokenConfig{})
	f.alias(t, "a1", "u1", "shop@relay.example")

	a, err := f.aliases.Resolve(context.Background(), " <Shop@Relay.Example>")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
}

func TestAliasService_ToggleAndDisable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, TokenConfig{})
	f.alias(t, "a1", "u1", "shop@relay.example")

	t.Run("他人别名不可切换", func(t *testing.T) {
		_, err := f.aliases.Toggle(ctx, "u2", "a1")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("切换启用状态", func(t *testing.T) {
		enabled, err := f.aliases.Toggle(ctx, "u1", "a1")
		require.NoError(t, err)
		assert.False(t, enabled)

		enabled, err = f.aliases.Toggle(ctx, "u1", "a1")
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("退订可重复调用", func(t *testing.T) {
		a, err := f.aliases.Disable(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, a.Enabled)

		a, err = f.aliases.Disable(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, a.Enabled)
	})

	t.Run("未知别名", func(t *testing.T) {
		_, err := f.aliases.Disable(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	})
}

func TestAliasService_IsServiceDomain(t *testing.T) {
	f := newFixture(t, TokenConfig{})
	assert.True(t, f.aliases.IsServiceDomain("alias.example"))
	assert.True(t, f.aliases.IsServiceDomain("RELAY.example"))
	assert.False(t, f.aliases.IsServiceDomain("mine.example"))
}
