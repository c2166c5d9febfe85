package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/storage/memory"
)

// recordingNotifier 记录所有通知
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

// seqReader 第 k 次读取时全部填充字节 k，用来制造可预测的回复地址
type seqReader struct {
	mu sync.Mutex
	k  byte
}

func (r *seqReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p {
		p[i] = r.k
	}
	r.k++
	return len(p), nil
}

// zeroReader 始终返回 0
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type fixture struct {
	store       *memory.Store
	cfg         *config.RelayConfig
	notifier    *recordingNotifier
	aliases     *AliasService
	entitlement *EntitlementService
	provisioner *Provisioner
	tokens      *TokenGenerator
	contacts    *ContactService
	activities  *ActivityService
}

func newFixture(t *testing.T, tokenCfg TokenConfig) *fixture {
	t.Helper()
	store := memory.NewStore()
	cfg := &config.RelayConfig{
		EmailDomain:      "relay.example",
		AliasDomains:     []string{"relay.example", "alias.example"},
		URL:              "https://app.relay.example",
		TokenLength:      30,
		TokenMaxAttempts: 10,
		FreeAliasQuota:   2,
	}
	if tokenCfg.Domain == "" {
		tokenCfg.Domain = cfg.EmailDomain
	}
	if tokenCfg.MaxAttempts == 0 {
		tokenCfg.MaxAttempts = cfg.TokenMaxAttempts
	}

	n := &recordingNotifier{}
	aliases := NewAliasService(store, store, cfg)
	entitlement := NewEntitlementService(store, store, cfg.FreeAliasQuota)
	tokens := NewTokenGenerator(store, tokenCfg)
	return &fixture{
		store:       store,
		cfg:         cfg,
		notifier:    n,
		aliases:     aliases,
		entitlement: entitlement,
		provisioner: NewProvisioner(store, store, store, entitlement, n, aliases, nil),
		tokens:      tokens,
		contacts:    NewContactService(store, aliases, tokens, nil),
		activities:  NewActivityService(store, aliases),
	}
}

func (f *fixture) user(t *testing.T, id string, tier domain.UserTier) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@mailbox.example", Name: "User " + id, Tier: tier, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, f.store.SaveUser(context.Background(), u))
	return u
}

func (f *fixture) alias(t *testing.T, id, userID, address string) *domain.Alias {
	t.Helper()
	a := &domain.Alias{ID: id, UserID: userID, Address: address, Enabled: true, CreatedAt: time.Now()}
	require.NoError(t, f.store.CreateAlias(context.Background(), a))
	return a
}
