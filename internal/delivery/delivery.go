// Package delivery 出站投递：DKIM 签名与下游传输通道。
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

var (
	// ErrTimeout 出站投递超时，属于临时失败
	ErrTimeout = errors.New("outbound transport timed out")
	// ErrNoRecipient 出站邮件没有收件人
	ErrNoRecipient = errors.New("outbound message has no recipient")
)

// Outbound 一封待投递的邮件。
type Outbound struct {
	From       string // 信封发件人
	Recipients []string
	Data       []byte
	UTF8       bool // 入站会话声明了 SMTPUTF8
	EightBit   bool // 入站会话声明了 8BITMIME
}

// Transport 出站传输通道。
type Transport interface {
	Send(ctx context.Context, msg *Outbound) error
}

// TransportFunc 函数形式的 Transport
type TransportFunc func(ctx context.Context, msg *Outbound) error

// Send 实现 Transport
func (f TransportFunc) Send(ctx context.Context, msg *Outbound) error { return f(ctx, msg) }

// Signer 以 signingDomain 的身份为原始邮件签名。
type Signer interface {
	Sign(ctx context.Context, raw []byte, signingDomain string) ([]byte, error)
}

// NopSigner 不签名，原样返回
type NopSigner struct{}

// Sign 实现 Signer
func (NopSigner) Sign(_ context.Context, raw []byte, _ string) ([]byte, error) { return raw, nil }

type timeoutTransport struct {
	next    Transport
	timeout time.Duration
}

// WithTimeout 为每次投递设置超时，超时统一转换为 ErrTimeout。
func WithTimeout(next Transport, timeout time.Duration) Transport {
	if timeout <= 0 {
		return next
	}
	return &timeoutTransport{next: next, timeout: timeout}
}

func (t *timeoutTransport) Send(ctx context.Context, msg *Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.next.Send(ctx, msg)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, t.timeout, err)
	}
	return err
}

// IsPermanent 判断下游是否明确以 5xx 拒绝了邮件
func IsPermanent(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code >= 500
	}
	return false
}
