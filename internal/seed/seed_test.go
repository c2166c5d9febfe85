package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage/memory"
)

func TestRun(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	opts := Options{
		OwnerEmail:     "Owner@Mailbox.example",
		OwnerName:      "Owner",
		Mailbox:        "work@mailbox.example",
		Directory:      "Sales",
		CatchAllDomain: "Catch.example",
		AliasAddress:   "hello@catch.example",
		Premium:        true,
	}

	res, err := Run(ctx, store, opts)
	require.NoError(t, err)

	user, err := store.GetUser(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner@mailbox.example", user.Email)
	assert.Equal(t, domain.TierLifetime, user.Tier)

	dir, err := store.GetDirectoryByName(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, dir.UserID)

	cd, err := store.GetCustomDomainByDomain(ctx, "catch.example")
	require.NoError(t, err)
	assert.True(t, cd.IsCatchAll())

	alias, err := store.GetAliasByAddress(ctx, "hello@catch.example")
	require.NoError(t, err)
	require.NotNil(t, alias.MailboxID)
	assert.Equal(t, res.Mailbox.ID, *alias.MailboxID)
	require.NotNil(t, alias.CustomDomainID)
	assert.Equal(t, cd.ID, *alias.CustomDomainID)

	again, err := Run(ctx, store, opts)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)
	assert.Equal(t, res.Alias.ID, again.Alias.ID)

	n, err := store.CountAliasesByUser(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRun_InvalidOwner(t *testing.T) {
	_, err := Run(context.Background(), memory.NewStore(), Options{OwnerEmail: "nope"})
	assert.Error(t, err)
}
