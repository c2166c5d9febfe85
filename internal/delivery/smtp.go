package delivery

import (
	"context"
	"fmt"
	"net"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPTransport 把邮件交给下游 MTA（通常是本机 Postfix）。
type SMTPTransport struct {
	addr string
	helo string
	log  *zap.Logger
}

// NewSMTPTransport 创建 SMTP 出站通道，addr 格式为 "host:port"。
func NewSMTPTransport(addr, helo string, log *zap.Logger) *SMTPTransport {
	if helo == "" {
		helo = "localhost"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPTransport{addr: addr, helo: helo, log: log.Named("smtp_transport")}
}

// Send 实现 Transport。
func (t *SMTPTransport) Send(ctx context.Context, msg *Outbound) error {
	if len(msg.Recipients) == 0 {
		return ErrNoRecipient
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c := gosmtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(t.helo); err != nil {
		return fmt.Errorf("helo: %w", err)
	}

	opts := &gosmtp.MailOptions{}
	if msg.UTF8 {
		if ok, _ := c.Extension("SMTPUTF8"); ok {
			opts.UTF8 = true
		}
	}
	if msg.EightBit {
		if ok, _ := c.Extension("8BITMIME"); ok {
			opts.Body = gosmtp.Body8BitMIME
		}
	}

	if err := c.Mail(msg.From, opts); err != nil {
		return fmt.Errorf("mail from %s: %w", msg.From, err)
	}
	for _, rcpt := range msg.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish data: %w", err)
	}

	if err := c.Quit(); err != nil {
		t.log.Debug("quit failed", zap.Error(err))
	}
	t.log.Debug("message handed off",
		zap.String("mail_from", msg.From),
		zap.Strings("rcpt", msg.Recipients),
		zap.Int("size", len(msg.Data)),
	)
	return nil
}
