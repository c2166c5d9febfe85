// Package relay 转发/回复中继引擎：对每个信封做分类、解析别名与映射、改写头部并交给出站通道。
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/message"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/service"
	"aliasrelay/backend/internal/storage"
)

// Envelope 一次 SMTP 事务
type Envelope struct {
	Sender     string
	Recipients []string
	Data       []byte
	UTF8       bool // MAIL FROM 带 SMTPUTF8
	EightBit   bool // MAIL FROM 带 BODY=8BITMIME
}

// Provisioner 即时创建别名
type Provisioner interface {
	Provision(ctx context.Context, address string) (*domain.Alias, error)
}

// ActivityPublisher 活动提交后的实时推送
type ActivityPublisher interface {
	PublishActivity(userID string, activity domain.AliasActivity)
}

// Recorder 处理结果统计
type Recorder interface {
	RecordRelay(direction string, outcome Outcome, code int, elapsed time.Duration)
}

// Deps 引擎依赖，Publisher 与 Recorder 可为空。
type Deps struct {
	Config      *config.RelayConfig
	Aliases     *service.AliasService
	Provisioner Provisioner
	Contacts    *service.ContactService
	Activities  *service.ActivityService
	Domains     storage.DirectoryRepository
	Tx          storage.Transactor
	Notifier    notify.Notifier
	Signer      delivery.Signer
	Transport   delivery.Transport
	Publisher   ActivityPublisher
	Recorder    Recorder
	Logger      *zap.Logger
}

// Engine 中继引擎，除共享存储外不保存跨信封状态，可并发调用。
type Engine struct {
	cfg         *config.RelayConfig
	aliases     *service.AliasService
	provisioner Provisioner
	contacts    *service.ContactService
	activities  *service.ActivityService
	domains     storage.DirectoryRepository
	tx          storage.Transactor
	notifier    notify.Notifier
	signer      delivery.Signer
	transport   delivery.Transport
	publisher   ActivityPublisher
	recorder    Recorder
	log         *zap.Logger
}

// NewEngine 创建中继引擎。
func NewEngine(d Deps) *Engine {
	if d.Notifier == nil {
		d.Notifier = notify.Nop
	}
	if d.Signer == nil {
		d.Signer = delivery.NopSigner{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Engine{
		cfg:         d.Config,
		aliases:     d.Aliases,
		provisioner: d.Provisioner,
		contacts:    d.Contacts,
		activities:  d.Activities,
		domains:     d.Domains,
		tx:          d.Tx,
		notifier:    d.Notifier,
		signer:      d.Signer,
		transport:   d.Transport,
		publisher:   d.Publisher,
		recorder:    d.Recorder,
		log:         d.Logger.Named("relay"),
	}
}

// Handle 处理一个信封并返回 SMTP 状态。
func (e *Engine) Handle(ctx context.Context, env *Envelope) Result {
	start := time.Now()
	direction := "forward"

	out, err := func() (Outcome, error) {
		switch len(env.Recipients) {
		case 0:
			return OutcomeRejected, ErrNoRecipient
		case 1:
		default:
			return OutcomeRejected, ErrTooManyRecipients
		}
		rcpt := domain.NormalizeAddress(env.Recipients[0])

		msg, err := message.Parse(env.Data)
		if err != nil {
			return OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}

		if domain.ClassifyRecipient(rcpt) != domain.TokenKindNone {
			direction = "reply"
			return e.reply(ctx, env, rcpt, msg)
		}
		return e.forward(ctx, env, rcpt, msg)
	}()

	res := ResultFor(out, err)
	fields := []zap.Field{
		zap.String("direction", direction),
		zap.Strings("rcpt", env.Recipients),
		zap.String("mail_from", env.Sender),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("code", res.Code),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch {
	case err == nil:
		e.log.Info("message processed", fields...)
	case res.Temporary():
		e.log.Error("message temporarily rejected", append(fields, zap.Error(err))...)
	default:
		e.log.Warn("message rejected", append(fields, zap.Error(err))...)
	}

	if e.recorder != nil {
		e.recorder.RecordRelay(direction, res.Outcome, res.Code, time.Since(start))
	}
	return res
}

// commit 在一个原子单元中写入活动记录与待更新的展示值
func (e *Engine) commit(ctx context.Context, alias *domain.Alias, contact *domain.Contact, displayChanged, isReply, blocked bool) error {
	var entry *domain.ActivityLog
	err := e.tx.Atomic(ctx, func(tx storage.Tx) error {
		if displayChanged {
			if err := tx.UpdateContactWebsiteFrom(ctx, contact.ID, contact.WebsiteFrom); err != nil {
				return err
			}
		}
		var err error
		entry, err = e.activities.Append(ctx, tx, contact.ID, isReply, blocked)
		return err
	})
	if err != nil {
		return fmt.Errorf("commit activity: %w", err)
	}

	if e.publisher != nil {
		e.publisher.PublishActivity(alias.UserID, service.ToAliasActivity(alias.Address, *entry, *contact))
	}
	return nil
}

// send 签名并投递，失败统一归为 ErrTransport，超时保留 ErrTimeout
func (e *Engine) send(ctx context.Context, raw []byte, signingDomain string, out *delivery.Outbound) error {
	if signingDomain != "" {
		signed, err := e.signer.Sign(ctx, raw, signingDomain)
		if err != nil {
			return fmt.Errorf("%w: sign: %v", ErrTransport, err)
		}
		raw = signed
	}
	out.Data = raw

	if err := e.transport.Send(ctx, out); err != nil {
		if errors.Is(err, delivery.ErrTimeout) {
			return err
		}
		// 下游 5xx 仍按临时失败返回
		if delivery.IsPermanent(err) {
			e.log.Warn("downstream refused message permanently",
				zap.String("from", out.From),
				zap.Strings("recipients", out.Recipients),
				zap.Error(err),
			)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// notifyQuietly 通知失败不影响处理结果
func (e *Engine) notifyQuietly(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.Error("failed to send notification",
			zap.String("kind", string(n.Kind)),
			zap.String("to", n.To),
			zap.Error(err),
		)
	}
}
