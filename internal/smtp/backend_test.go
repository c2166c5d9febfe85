package smtp

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/relay"
)

type fakeHandler struct {
	mu     sync.Mutex
	envs   []*relay.Envelope
	result relay.Result
}

func (h *fakeHandler) Handle(_ context.Context, env *relay.Envelope) relay.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envs = append(h.envs, env)
	return h.result
}

func (h *fakeHandler) all() []*relay.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*relay.Envelope(nil), h.envs...)
}

func testConfig() config.SMTPConfig {
	return config.SMTPConfig{
		BindAddr:        "127.0.0.1:0",
		Domain:          "mx.relay.example",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxMessageBytes: 1 << 20,
		MaxSessions:     10,
	}
}

func startServer(t *testing.T, h Handler, limiter *ConnectionLimiter) string {
	t.Helper()
	cfg := testConfig()
	return serve(t, NewBackend(h, limiter, cfg, nil), cfg)
}

func serve(t *testing.T, be *Backend, cfg config.SMTPConfig) string {
	t.Helper()
	srv := NewServer(be, cfg, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return l.Addr().String()
}

func dial(t *testing.T, addr string) *gosmtp.Client {
	t.Helper()
	c, err := gosmtp.Dial(addr)
	require.NoError(t, err)
	require.NoError(t, c.Hello("client.example"))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendData(t *testing.T, c *gosmtp.Client, body string) error {
	t.Helper()
	w, err := c.Data()
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	return w.Close()
}

var accepted = relay.ResultFor(relay.OutcomeForwarded, nil)

func TestSession_DeliversEnvelope(t *testing.T) {
	h := &fakeHandler{result: accepted}
	c := dial(t, startServer(t, h, nil))

	require.NoError(t, c.Mail("boss@biz.example", &gosmtp.MailOptions{UTF8: true, Body: gosmtp.Body8BitMIME}))
	require.NoError(t, c.Rcpt("<Shop@Relay.Example>", nil))
	require.NoError(t, sendData(t, c, "From: boss@biz.example\r\nSubject: hi\r\n\r\nbody\r\n"))

	envs := h.all()
	require.Len(t, envs, 1)
	env := envs[0]
	assert.Equal(t, "boss@biz.example", env.Sender)
	assert.Equal(t, []string{"shop@relay.example"}, env.Recipients)
	assert.True(t, env.UTF8)
	assert.True(t, env.EightBit)
	assert.Contains(t, string(env.Data), "Subject: hi")
}

func TestSession_OneRecipientPerTransaction(t *testing.T) {
	h := &fakeHandler{result: accepted}
	c := dial(t, startServer(t, h, nil))

	require.NoError(t, c.Mail("boss@biz.example", nil))
	require.NoError(t, c.Rcpt("a@relay.example", nil))

	err := c.Rcpt("b@relay.example", nil)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 452, smtpErr.Code)
	assert.Equal(t, gosmtp.EnhancedCode{4, 5, 3}, smtpErr.EnhancedCode)

	// 第一个收件人仍然有效
	require.NoError(t, sendData(t, c, "From: boss@biz.example\r\n\r\nbody\r\n"))
	require.Len(t, h.all(), 1)
	assert.Equal(t, []string{"a@relay.example"}, h.all()[0].Recipients)
}

func TestSession_InvalidRecipient(t *testing.T) {
	c := dial(t, startServer(t, &fakeHandler{result: accepted}, nil))
	require.NoError(t, c.Mail("boss@biz.example", nil))

	err := c.Rcpt("not-an-address", nil)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 501, smtpErr.Code)
	assert.Equal(t, gosmtp.EnhancedCode{5, 1, 3}, smtpErr.EnhancedCode)
}

func TestSession_ResultBecomesReply(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"永久拒绝", relay.ErrUnknownAlias, 550},
		{"临时失败", relay.ErrTransport, 451},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{result: relay.ResultFor(relay.OutcomeRejected, tt.err)}
			c := dial(t, startServer(t, h, nil))
			require.NoError(t, c.Mail("boss@biz.example", nil))
			require.NoError(t, c.Rcpt("nobody@relay.example", nil))

			err := sendData(t, c, "From: boss@biz.example\r\n\r\nbody\r\n")
			var smtpErr *gosmtp.SMTPError
			require.ErrorAs(t, err, &smtpErr)
			assert.Equal(t, tt.code, smtpErr.Code)
			assert.True(t, strings.TrimSpace(smtpErr.Message) != "")
		})
	}
}

func TestSession_LimiterRefusesSessions(t *testing.T) {
	limiter := NewConnectionLimiter(1, 0, 0)
	cfg := testConfig()
	be := NewBackend(&fakeHandler{result: accepted}, limiter, cfg, nil)
	var rejected int
	var mu sync.Mutex
	be.OnReject(func() {
		mu.Lock()
		rejected++
		mu.Unlock()
	})
	addr := serve(t, be, cfg)

	first := dial(t, addr)
	require.NoError(t, first.Noop())
	assert.Equal(t, 1, limiter.Current())

	second, err := gosmtp.Dial(addr)
	if err == nil {
		err = second.Hello("client.example")
		_ = second.Close()
	}
	require.Error(t, err)

	mu.Lock()
	assert.Equal(t, 1, rejected)
	mu.Unlock()

	require.NoError(t, first.Quit())
	assert.Eventually(t, func() bool { return limiter.Current() == 0 }, time.Second, 10*time.Millisecond)
}
