package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/domain"
)

// Mailer 把通知渲染成邮件，以服务域名签名后同步投递。
type Mailer struct {
	from      string
	transport delivery.Transport
	signer    delivery.Signer
	log       *zap.Logger
	now       func() time.Time
}

// NewMailer 创建同步通知发送器，from 为 noreply 地址。
func NewMailer(from string, transport delivery.Transport, signer delivery.Signer, log *zap.Logger) *Mailer {
	if signer == nil {
		signer = delivery.NopSigner{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		from:      from,
		transport: transport,
		signer:    signer,
		log:       log.Named("notify"),
		now:       time.Now,
	}
}

// Notify 实现 Notifier。
func (m *Mailer) Notify(ctx context.Context, n Notification) error {
	subject, body, err := Render(n)
	if err != nil {
		return err
	}

	raw, err := m.compose(n.To, subject, body)
	if err != nil {
		return fmt.Errorf("compose %s: %w", n.Kind, err)
	}

	signed, err := m.signer.Sign(ctx, raw, domain.DomainOf(m.from))
	if err != nil {
		return fmt.Errorf("sign %s: %w", n.Kind, err)
	}

	if err := m.transport.Send(ctx, &delivery.Outbound{
		From:       m.from,
		Recipients: []string{n.To},
		Data:       signed,
		UTF8:       true,
	}); err != nil {
		return fmt.Errorf("send %s to %s: %w", n.Kind, n.To, err)
	}

	m.log.Info("notification sent", zap.String("kind", string(n.Kind)), zap.String("to", n.To))
	return nil
}

func (m *Mailer) compose(to, subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{{Address: m.from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
