package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/storage"
)

// Entitlement 新建别名的权限判断
type Entitlement interface {
	CanCreateAlias(ctx context.Context, userID string) (bool, error)
}

// Provisioner 为目录前缀与通配域名即时创建别名。
type Provisioner struct {
	aliases     storage.AliasRepository
	dirs        storage.DirectoryRepository
	users       storage.UserRepository
	entitlement Entitlement
	notifier    notify.Notifier
	isService   func(domainName string) bool
	log         *zap.Logger
}

// NewProvisioner 创建即时别名创建器。
func NewProvisioner(
	aliases storage.AliasRepository,
	dirs storage.DirectoryRepository,
	users storage.UserRepository,
	entitlement Entitlement,
	notifier notify.Notifier,
	aliasService *AliasService,
	log *zap.Logger,
) *Provisioner {
	if notifier == nil {
		notifier = notify.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{
		aliases:     aliases,
		dirs:        dirs,
		users:       users,
		entitlement: entitlement,
		notifier:    notifier,
		isService:   aliasService.IsServiceDomain,
		log:         log.Named("provisioner"),
	}
}

// Provision 依次尝试目录前缀与通配域名两种方式为 address 创建别名。
//
// 两种方式都不适用时返回 ErrNoProvisioningPath；至少一种因套餐被拒且没有成功时返回
// ErrEntitlementDenied，并已通知相应的所有者。并发创建同一地址时返回已存在的别名。
func (p *Provisioner) Provision(ctx context.Context, address string) (*domain.Alias, error) {
	address = domain.NormalizeAddress(address)
	aliasDomain := domain.DomainOf(address)
	denied := false

	if p.isService(aliasDomain) {
		if name, ok := domain.SplitDirectory(address); ok {
			alias, err := p.fromDirectory(ctx, address, name)
			switch {
			case err == nil:
				return alias, nil
			case errors.Is(err, ErrEntitlementDenied):
				denied = true
			case !errors.Is(err, storage.ErrDirectoryNotFound):
				return nil, err
			}
		}
	}

	alias, err := p.fromCatchAll(ctx, address, aliasDomain)
	switch {
	case err == nil:
		return alias, nil
	case errors.Is(err, ErrEntitlementDenied):
		denied = true
	case !errors.Is(err, storage.ErrCustomDomainNotFound):
		return nil, err
	}

	if denied {
		return nil, ErrEntitlementDenied
	}
	return nil, ErrNoProvisioningPath
}

func (p *Provisioner) fromDirectory(ctx context.Context, address, name string) (*domain.Alias, error) {
	dir, err := p.dirs.GetDirectoryByName(ctx, name)
	if err != nil {
		return nil, err
	}

	allowed, err := p.entitlement.CanCreateAlias(ctx, dir.UserID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement of directory owner: %w", err)
	}
	if !allowed {
		p.log.Warn("directory owner cannot create alias",
			zap.String("alias", address),
			zap.String("directory", dir.Name),
			zap.String("user_id", dir.UserID),
		)
		p.notifyOwner(ctx, dir.UserID, notify.KindDirectoryAliasDenied, map[string]string{
			"alias":     address,
			"directory": dir.Name,
		})
		return nil, ErrEntitlementDenied
	}

	p.log.Info("create alias for directory", zap.String("alias", address), zap.String("directory", dir.Name))
	return p.create(ctx, &domain.Alias{
		ID:          uuid.NewString(),
		UserID:      dir.UserID,
		Address:     address,
		Enabled:     true,
		DirectoryID: &dir.ID,
	})
}

func (p *Provisioner) fromCatchAll(ctx context.Context, address, aliasDomain string) (*domain.Alias, error) {
	cd, err := p.dirs.GetCustomDomainByDomain(ctx, aliasDomain)
	if err != nil {
		return nil, err
	}
	if !cd.IsCatchAll() {
		return nil, storage.ErrCustomDomainNotFound
	}

	allowed, err := p.entitlement.CanCreateAlias(ctx, cd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement of domain owner: %w", err)
	}
	if !allowed {
		p.log.Warn("domain owner cannot create alias",
			zap.String("alias", address),
			zap.String("domain", aliasDomain),
			zap.String("user_id", cd.UserID),
		)
		p.notifyOwner(ctx, cd.UserID, notify.KindDomainAliasDenied, map[string]string{
			"alias":  address,
			"domain": aliasDomain,
		})
		return nil, ErrEntitlementDenied
	}

	p.log.Info("create alias for catch-all domain", zap.String("alias", address), zap.String("domain", aliasDomain))
	return p.create(ctx, &domain.Alias{
		ID:                uuid.NewString(),
		UserID:            cd.UserID,
		Address:           address,
		Enabled:           true,
		CustomDomainID:    &cd.ID,
		AutomaticCreation: true,
	})
}

// create 插入别名；唯一约束冲突说明并发请求已创建，改为读取已有记录
func (p *Provisioner) create(ctx context.Context, alias *domain.Alias) (*domain.Alias, error) {
	now := time.Now().UTC()
	alias.CreatedAt = now
	alias.UpdatedAt = now

	err := p.aliases.CreateAlias(ctx, alias)
	if err == nil {
		return alias, nil
	}
	if errors.Is(err, storage.ErrAliasExists) {
		return p.aliases.GetAliasByAddress(ctx, alias.Address)
	}
	return nil, fmt.Errorf("create alias %s: %w", alias.Address, err)
}

// notifyOwner 通知失败不影响邮件处理结果，只记录日志
func (p *Provisioner) notifyOwner(ctx context.Context, userID string, kind notify.Kind, data map[string]string) {
	owner, err := p.users.GetUser(ctx, userID)
	if err != nil {
		p.log.Error("failed to load owner for notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	data["name"] = owner.DisplayName()
	if err := p.notifier.Notify(ctx, notify.Notification{Kind: kind, To: owner.Email, Data: data}); err != nil {
		p.log.Error("failed to send notification",
			zap.String("kind", string(kind)),
			zap.String("to", owner.Email),
			zap.Error(err),
		)
	}
}
