package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/message"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/storage"
)

// reply 用户从邮箱回复：以别名身份发给通信方，真实邮箱不出现在邮件中。
func (e *Engine) reply(ctx context.Context, env *Envelope, rcpt string, msg *message.Message) (Outcome, error) {
	if domain.DomainOf(rcpt) != strings.ToLower(e.cfg.EmailDomain) {
		return OutcomeRejected, fmt.Errorf("%w: %s", ErrWrongReplyDomain, rcpt)
	}

	contact, err := e.contacts.GetByReplyEmail(ctx, rcpt)
	if err != nil {
		if errors.Is(err, storage.ErrContactNotFound) {
			return OutcomeRejected, fmt.Errorf("%w: %s", ErrUnknownReplyToken, rcpt)
		}
		return OutcomeRejected, err
	}

	alias, err := e.aliases.Get(ctx, contact.AliasID)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("load alias of contact %s: %w", contact.ID, err)
	}

	signingDomain, err := e.replySigningDomain(ctx, alias)
	if err != nil {
		return OutcomeRejected, err
	}

	mailbox, err := e.aliases.DeliveryTarget(ctx, alias)
	if err != nil {
		return OutcomeRejected, err
	}
	if !strings.EqualFold(domain.NormalizeAddress(env.Sender), mailbox) {
		e.rejectSender(ctx, env.Sender, alias, mailbox, rcpt)
		return OutcomeRejected, fmt.Errorf("%w: %s", ErrUnauthorizedSender, env.Sender)
	}

	h := message.ReplyHeaders(msg.Header, message.ReplyParams{
		AliasAddress:   alias.Address,
		WebsiteEmail:   contact.WebsiteEmail,
		UnsubscribeURL: message.UnsubscribeURL(e.cfg.URL, alias.ID),
	})
	raw, err := msg.WithHeader(h).Bytes()
	if err != nil {
		return OutcomeRejected, fmt.Errorf("serialize reply: %w", err)
	}
	// 邮件客户端常在引用中带出回复地址，签名前替换为别名
	raw = message.ReplaceAddress(raw, rcpt, alias.Address)

	err = e.send(ctx, raw, signingDomain, &delivery.Outbound{
		From:       alias.Address,
		Recipients: []string{contact.WebsiteEmail},
		UTF8:       env.UTF8,
		EightBit:   env.EightBit,
	})
	if err != nil {
		return OutcomeRejected, err
	}

	e.log.Debug("replied",
		zap.String("alias", alias.Address),
		zap.String("contact_id", contact.ID),
		zap.String("website_email", contact.WebsiteEmail),
	)
	e.commitDelivered(ctx, alias, contact, false, true)
	return OutcomeForwarded, nil
}

// replySigningDomain 服务域名下的别名以别名域名签名；自定义域名仅在 DKIM 已验证时签名，返回空串表示不签名。
func (e *Engine) replySigningDomain(ctx context.Context, alias *domain.Alias) (string, error) {
	aliasDomain := alias.Domain()
	if e.aliases.IsServiceDomain(aliasDomain) {
		return aliasDomain, nil
	}

	cd, err := e.domains.GetCustomDomainByDomain(ctx, aliasDomain)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrCustomDomainNotFound) && alias.CustomDomainID != nil:
		return "", fmt.Errorf("%w: alias %s references %s", ErrCustomDomainMissing, alias.Address, *alias.CustomDomainID)
	case errors.Is(err, storage.ErrCustomDomainNotFound):
		return "", fmt.Errorf("%w: %s", ErrAliasNotRecognized, alias.Address)
	default:
		return "", err
	}

	if cd.DKIMVerified {
		return aliasDomain, nil
	}
	return "", nil
}

// rejectSender 通知所有者有人冒用回复地址，同时告知冒用者
func (e *Engine) rejectSender(ctx context.Context, sender string, alias *domain.Alias, mailbox, replyEmail string) {
	e.log.Warn("reply email can only be used by mailbox",
		zap.String("mail_from", sender),
		zap.String("alias", alias.Address),
		zap.String("mailbox", mailbox),
		zap.String("reply_email", replyEmail),
	)

	name := mailbox
	if owner, err := e.aliases.Owner(ctx, alias); err == nil {
		name = owner.DisplayName()
	}
	e.notifyQuietly(ctx, notify.Notification{
		Kind: notify.KindReplyMustUseMailbox,
		To:   mailbox,
		Data: map[string]string{
			"name":    name,
			"alias":   alias.Address,
			"sender":  sender,
			"mailbox": mailbox,
		},
	})
	e.notifyQuietly(ctx, notify.Notification{
		Kind: notify.KindSenderNotAllowed,
		To:   sender,
		Data: map[string]string{
			"sender":      sender,
			"reply_email": replyEmail,
		},
	})
}
