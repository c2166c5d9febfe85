package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/message"
	"aliasrelay/backend/internal/service"
	"aliasrelay/backend/internal/storage"
)

// forward 通信方写给别名：转发到用户邮箱，From 改为该通信方的回复地址。
func (e *Engine) forward(ctx context.Context, env *Envelope, rcpt string, msg *message.Message) (Outcome, error) {
	alias, err := e.resolveAlias(ctx, rcpt)
	if err != nil {
		return OutcomeRejected, err
	}

	target, err := e.aliases.DeliveryTarget(ctx, alias)
	if err != nil {
		return OutcomeRejected, err
	}

	res, err := e.contacts.GetOrCreate(ctx, alias, msg.Header.Get("From"))
	if err != nil {
		if errors.Is(err, message.ErrNoSender) {
			return OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return OutcomeRejected, err
	}
	contact := res.Contact

	if !alias.Enabled {
		e.log.Info("alias disabled, drop message",
			zap.String("alias", alias.Address),
			zap.String("contact_id", contact.ID),
		)
		if err := e.commit(ctx, alias, contact, res.DisplayChanged, false, true); err != nil {
			return OutcomeRejected, err
		}
		return OutcomeDropped, nil
	}

	h, err := message.ForwardHeaders(msg.Header, message.ForwardParams{
		ReplyAddress:   contact.ReplyEmail,
		UnsubscribeURL: message.UnsubscribeURL(e.cfg.URL, alias.ID),
	})
	if err != nil {
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	raw, err := msg.WithHeader(h).Bytes()
	if err != nil {
		return OutcomeRejected, fmt.Errorf("serialize forward: %w", err)
	}

	err = e.send(ctx, raw, e.cfg.EmailDomain, &delivery.Outbound{
		From:       contact.ReplyEmail,
		Recipients: []string{target},
		UTF8:       env.UTF8,
		EightBit:   env.EightBit,
	})
	if err != nil {
		return OutcomeRejected, err
	}

	e.log.Debug("forwarded",
		zap.String("alias", alias.Address),
		zap.String("contact_id", contact.ID),
		zap.String("website_email", contact.WebsiteEmail),
	)
	e.commitDelivered(ctx, alias, contact, res.DisplayChanged, false)
	return OutcomeForwarded, nil
}

// resolveAlias 精确查找别名，找不到时尝试即时创建
func (e *Engine) resolveAlias(ctx context.Context, rcpt string) (*domain.Alias, error) {
	alias, err := e.aliases.Resolve(ctx, rcpt)
	if err == nil {
		return alias, nil
	}
	if !errors.Is(err, storage.ErrAliasNotFound) {
		return nil, err
	}

	e.log.Debug("alias not found, try to provision", zap.String("alias", rcpt))
	alias, err = e.provisioner.Provision(ctx, rcpt)
	switch {
	case err == nil:
		return alias, nil
	case errors.Is(err, service.ErrEntitlementDenied):
		return nil, fmt.Errorf("%w: %s", ErrEntitlementDenied, rcpt)
	case errors.Is(err, service.ErrNoProvisioningPath):
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, rcpt)
	default:
		return nil, err
	}
}

// commitDelivered 邮件已经投递，写入失败时只记录日志；返回临时失败会让对端重投造成重复
func (e *Engine) commitDelivered(ctx context.Context, alias *domain.Alias, contact *domain.Contact, displayChanged, isReply bool) {
	if err := e.commit(ctx, alias, contact, displayChanged, isReply, false); err != nil {
		e.log.Error("message delivered but activity not recorded",
			zap.String("alias", alias.Address),
			zap.String("contact_id", contact.ID),
			zap.Bool("is_reply", isReply),
			zap.Error(err),
		)
	}
}
