package service

import (
	"context"
	"fmt"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// AliasService 别名目录：地址解析、投递目标与启停。
type AliasService struct {
	aliases storage.AliasRepository
	users   storage.UserRepository
	cfg     *config.RelayConfig
}

// NewAliasService 创建别名业务服务。
func NewAliasService(aliases storage.AliasRepository, users storage.UserRepository, cfg *config.RelayConfig) *AliasService {
	return &AliasService{
		aliases: aliases,
		users:   users,
		cfg:     cfg,
	}
}

// Resolve 按地址精确查找别名（大小写不敏感）。
func (s *AliasService) Resolve(ctx context.Context, address string) (*domain.Alias, error) {
	return s.aliases.GetAliasByAddress(ctx, domain.NormalizeAddress(address))
}

// Get 按 ID 获取别名。
func (s *AliasService) Get(ctx context.Context, aliasID string) (*domain.Alias, error) {
	return s.aliases.GetAlias(ctx, aliasID)
}

// Owner 返回别名所有者。
func (s *AliasService) Owner(ctx context.Context, alias *domain.Alias) (*domain.User, error) {
	return s.users.GetUser(ctx, alias.UserID)
}

// DeliveryTarget 返回别名的投递邮箱：显式绑定的邮箱优先，否则为所有者的默认邮箱。
//
// 回复方向也用它确定唯一允许的发件人。
func (s *AliasService) DeliveryTarget(ctx context.Context, alias *domain.Alias) (string, error) {
	if alias.MailboxID != nil && *alias.MailboxID != "" {
		mb, err := s.users.GetMailbox(ctx, *alias.MailboxID)
		if err != nil {
			return "", fmt.Errorf("load mailbox of alias %s: %w", alias.ID, err)
		}
		return mb.Email, nil
	}
	owner, err := s.users.GetUser(ctx, alias.UserID)
	if err != nil {
		return "", fmt.Errorf("load owner of alias %s: %w", alias.ID, err)
	}
	return owner.Email, nil
}

// Authorize 返回属于 userID 的别名，不属于时返回 ErrForbidden。
func (s *AliasService) Authorize(ctx context.Context, userID, aliasID string) (*domain.Alias, error) {
	alias, err := s.aliases.GetAlias(ctx, aliasID)
	if err != nil {
		return nil, err
	}
	if alias.UserID != userID {
		return nil, ErrForbidden
	}
	return alias, nil
}

// SetEnabled 设置别名启用状态。
func (s *AliasService) SetEnabled(ctx context.Context, aliasID string, enabled bool) error {
	return s.aliases.SetAliasEnabled(ctx, aliasID, enabled)
}

// Toggle 翻转用户自己别名的启用状态，返回新状态。
func (s *AliasService) Toggle(ctx context.Context, userID, aliasID string) (bool, error) {
	alias, err := s.Authorize(ctx, userID, aliasID)
	if err != nil {
		return false, err
	}
	enabled := !alias.Enabled
	if err := s.aliases.SetAliasEnabled(ctx, aliasID, enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Disable 一键退订：停用别名，重复调用无副作用。
func (s *AliasService) Disable(ctx context.Context, aliasID string) (*domain.Alias, error) {
	alias, err := s.aliases.GetAlias(ctx, aliasID)
	if err != nil {
		return nil, err
	}
	if alias.Enabled {
		if err := s.aliases.SetAliasEnabled(ctx, aliasID, false); err != nil {
			return nil, err
		}
		alias.Enabled = false
	}
	return alias, nil
}

// IsServiceDomain 判断域名是否为服务保留的别名域名。
func (s *AliasService) IsServiceDomain(domainName string) bool {
	return s.cfg.IsServiceDomain(domainName)
}
