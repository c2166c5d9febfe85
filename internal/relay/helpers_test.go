package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/service"
	"aliasrelay/backend/internal/storage/memory"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []*delivery.Outbound
	err  error
}

func (t *fakeTransport) Send(_ context.Context, msg *delivery.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) all() []*delivery.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*delivery.Outbound(nil), t.sent...)
}

func (t *fakeTransport) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

type fakeSigner struct {
	mu      sync.Mutex
	domains []string
}

func (s *fakeSigner) Sign(_ context.Context, raw []byte, d string) ([]byte, error) {
	s.mu.Lock()
	s.domains = append(s.domains, d)
	s.mu.Unlock()
	return append([]byte("DKIM-Signature: d="+d+"\r\n"), raw...), nil
}

func (s *fakeSigner) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.domains...)
}

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

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]domain.AliasActivity
}

func (p *recordingPublisher) PublishActivity(userID string, a domain.AliasActivity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]domain.AliasActivity)
	}
	p.events[userID] = append(p.events[userID], a)
}

type recordingRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (r *recordingRecorder) RecordRelay(_ string, _ Outcome, code int, _ time.Duration) {
	r.mu.Lock()
	r.codes = append(r.codes, code)
	r.mu.Unlock()
}

type fixture struct {
	store     *memory.Store
	cfg       *config.RelayConfig
	transport *fakeTransport
	signer    *fakeSigner
	notifier  *recordingNotifier
	publisher *recordingPublisher
	recorder  *recordingRecorder
	contacts  *service.ContactService
	logs      *observer.ObservedLogs
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
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

	f := &fixture{
		store:     store,
		cfg:       cfg,
		transport: &fakeTransport{},
		signer:    &fakeSigner{},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		recorder:  &recordingRecorder{},
	}

	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs

	aliases := service.NewAliasService(store, store, cfg)
	entitlement := service.NewEntitlementService(store, store, cfg.FreeAliasQuota)
	tokens := service.NewTokenGenerator(store, service.TokenConfig{
		Domain:      cfg.EmailDomain,
		Length:      cfg.TokenLength,
		MaxAttempts: cfg.TokenMaxAttempts,
	})
	f.contacts = service.NewContactService(store, aliases, tokens, nil)

	f.engine = NewEngine(Deps{
		Config:      cfg,
		Aliases:     aliases,
		Provisioner: service.NewProvisioner(store, store, store, entitlement, f.notifier, aliases, nil),
		Contacts:    f.contacts,
		Activities:  service.NewActivityService(store, aliases),
		Domains:     store,
		Tx:          store,
		Notifier:    f.notifier,
		Signer:      f.signer,
		Transport:   delivery.WithTimeout(f.transport, time.Second),
		Publisher:   f.publisher,
		Recorder:    f.recorder,
		Logger:      zap.New(core),
	})
	return f
}

func (f *fixture) user(t *testing.T, id string, tier domain.UserTier) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@mailbox.example", Name: "User " + id, Tier: tier, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, f.store.SaveUser(context.Background(), u))
	return u
}

func (f *fixture) alias(t *testing.T, id, userID, address string, enabled bool) *domain.Alias {
	t.Helper()
	a := &domain.Alias{ID: id, UserID: userID, Address: address, Enabled: enabled, CreatedAt: time.Now()}
	require.NoError(t, f.store.CreateAlias(context.Background(), a))
	return a
}

func (f *fixture) handle(from, rcpt string, data string) Result {
	return f.engine.Handle(context.Background(), &Envelope{
		Sender:     from,
		Recipients: []string{rcpt},
		Data:       []byte(data),
	})
}

func mail(headers ...string) string {
	return strings.Join(headers, "\r\n") + "\r\n\r\nHello there.\r\n"
}

var errRefused = errors.New("connection refused")
