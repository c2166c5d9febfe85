package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/message"
	"aliasrelay/backend/internal/storage"
)

// ContactService 管理 (别名, 通信方) 映射与回复地址。
type ContactService struct {
	contacts storage.ContactRepository
	aliases  *AliasService
	tokens   *TokenGenerator
	log      *zap.Logger
}

// NewContactService 创建联系人映射服务。
func NewContactService(contacts storage.ContactRepository, aliases *AliasService, tokens *TokenGenerator, log *zap.Logger) *ContactService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactService{
		contacts: contacts,
		aliases:  aliases,
		tokens:   tokens,
		log:      log.Named("contact"),
	}
}

// ContactResult GetOrCreate 的结果
type ContactResult struct {
	Contact *domain.Contact
	Created bool
	// DisplayChanged 为 true 时，调用方需在提交活动记录的同一事务中把 WebsiteFrom 更新为 Contact.WebsiteFrom
	DisplayChanged bool
}

// GetOrCreate 获取或创建别名与 From 头所示通信方之间的映射。
//
// 已存在时只比较展示值，不写库；新建时生成回复地址。并发创建同一对映射时，
// 失败的一方重新读取已创建的记录。
func (s *ContactService) GetOrCreate(ctx context.Context, alias *domain.Alias, fromHeader string) (*ContactResult, error) {
	_, website, err := message.ParseFrom(fromHeader)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.tokens.MaxAttempts(); attempt++ {
		existing, err := s.contacts.GetContactByAliasAndWebsite(ctx, alias.ID, website)
		if err == nil {
			changed := existing.WebsiteFrom != fromHeader
			if changed {
				existing.WebsiteFrom = fromHeader
			}
			return &ContactResult{Contact: existing, DisplayChanged: changed}, nil
		}
		if !errors.Is(err, storage.ErrContactNotFound) {
			return nil, err
		}

		reply, err := s.tokens.Generate(ctx, domain.TokenKindReply)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		contact := &domain.Contact{
			ID:           uuid.NewString(),
			AliasID:      alias.ID,
			WebsiteEmail: website,
			WebsiteFrom:  fromHeader,
			ReplyEmail:   reply,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.contacts.CreateContact(ctx, contact)
		switch {
		case err == nil:
			s.log.Debug("create contact",
				zap.String("alias", alias.Address),
				zap.String("website_email", website),
				zap.String("contact_id", contact.ID),
			)
			return &ContactResult{Contact: contact, Created: true}, nil
		case errors.Is(err, storage.ErrContactExists), errors.Is(err, storage.ErrReplyEmailExists):
			// 映射已被并发创建，或回复地址撞车：重新读取或重新生成
			continue
		default:
			return nil, fmt.Errorf("create contact: %w", err)
		}
	}
	return nil, ErrTokenExhausted
}

// CreateReverseAlias 控制台手动为别名添加联系人，生成 ra+ 回复地址。
//
// contact 可以是纯地址，也可以是 "Name <addr>" 形式。
func (s *ContactService) CreateReverseAlias(ctx context.Context, userID, aliasID, contact string) (*domain.Contact, error) {
	alias, err := s.aliases.Authorize(ctx, userID, aliasID)
	if err != nil {
		return nil, err
	}

	_, website, err := message.ParseFrom(contact)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	if _, err := s.contacts.GetContactByAliasAndWebsite(ctx, alias.ID, website); err == nil {
		return nil, storage.ErrContactExists
	} else if !errors.Is(err, storage.ErrContactNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < s.tokens.MaxAttempts(); attempt++ {
		reply, err := s.tokens.Generate(ctx, domain.TokenKindReverseAlias)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		c := &domain.Contact{
			ID:           uuid.NewString(),
			AliasID:      alias.ID,
			WebsiteEmail: website,
			WebsiteFrom:  contact,
			ReplyEmail:   reply,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.contacts.CreateContact(ctx, c)
		if err == nil {
			s.log.Info("create reverse alias", zap.String("alias", alias.Address), zap.String("website_email", website))
			return c, nil
		}
		if !errors.Is(err, storage.ErrReplyEmailExists) {
			return nil, err
		}
	}
	return nil, ErrTokenExhausted
}

// GetByReplyEmail 根据回复地址查找映射。
func (s *ContactService) GetByReplyEmail(ctx context.Context, replyEmail string) (*domain.Contact, error) {
	return s.contacts.GetContactByReplyEmail(ctx, domain.NormalizeAddress(replyEmail))
}

// ListByAlias 列出用户自己别名下的联系人。
func (s *ContactService) ListByAlias(ctx context.Context, userID, aliasID string) ([]*domain.Contact, error) {
	if _, err := s.aliases.Authorize(ctx, userID, aliasID); err != nil {
		return nil, err
	}
	return s.contacts.ListContactsByAlias(ctx, aliasID)
}
