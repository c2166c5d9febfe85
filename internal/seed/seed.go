// Package seed 写入开发环境使用的示例数据。
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// Store 种子数据需要的写入能力
type Store interface {
	storage.Seeder
	storage.AliasRepository
}

// Options 种子参数
type Options struct {
	OwnerEmail     string // 所有者默认收件邮箱
	OwnerName      string
	Mailbox        string // 附加邮箱，可为空
	Directory      string // 目录前缀，可为空
	CatchAllDomain string // 通配域名，可为空
	AliasAddress   string // 预建别名，可为空
	Premium        bool
}

// Result 写入的实体
type Result struct {
	User         *domain.User
	Mailbox      *domain.Mailbox
	Directory    *domain.Directory
	CustomDomain *domain.CustomDomain
	Alias        *domain.Alias
}

// stableID 按名称生成固定 ID，重复执行时覆盖同一条记录
func stableID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("aliasrelay:"+kind+":"+strings.ToLower(name))).String()
}

// Run 写入种子数据，可重复执行。
func Run(ctx context.Context, store Store, opts Options) (*Result, error) {
	if !domain.IsValidAddress(opts.OwnerEmail) {
		return nil, fmt.Errorf("invalid owner email %q", opts.OwnerEmail)
	}
	now := time.Now().UTC()
	res := &Result{}

	tier := domain.TierFree
	if opts.Premium {
		tier = domain.TierLifetime
	}
	res.User = &domain.User{
		ID:        stableID("user", opts.OwnerEmail),
		Email:     domain.NormalizeAddress(opts.OwnerEmail),
		Name:      opts.OwnerName,
		Tier:      tier,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.SaveUser(ctx, res.User); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	if opts.Mailbox != "" {
		res.Mailbox = &domain.Mailbox{
			ID:        stableID("mailbox", opts.Mailbox),
			UserID:    res.User.ID,
			Email:     domain.NormalizeAddress(opts.Mailbox),
			CreatedAt: now,
		}
		if err := store.SaveMailbox(ctx, res.Mailbox); err != nil {
			return nil, fmt.Errorf("save mailbox: %w", err)
		}
	}

	if opts.Directory != "" {
		res.Directory = &domain.Directory{
			ID:        stableID("directory", opts.Directory),
			UserID:    res.User.ID,
			Name:      strings.ToLower(opts.Directory),
			CreatedAt: now,
		}
		if err := store.SaveDirectory(ctx, res.Directory); err != nil {
			return nil, fmt.Errorf("save directory: %w", err)
		}
	}

	if opts.CatchAllDomain != "" {
		res.CustomDomain = &domain.CustomDomain{
			ID:           stableID("domain", opts.CatchAllDomain),
			UserID:       res.User.ID,
			Domain:       strings.ToLower(opts.CatchAllDomain),
			Mode:         domain.DomainModeCatchAll,
			Status:       domain.DomainStatusVerified,
			DKIMVerified: true,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.SaveCustomDomain(ctx, res.CustomDomain); err != nil {
			return nil, fmt.Errorf("save custom domain: %w", err)
		}
	}

	if opts.AliasAddress != "" {
		alias, err := ensureAlias(ctx, store, res, now, opts.AliasAddress)
		if err != nil {
			return nil, err
		}
		res.Alias = alias
	}
	return res, nil
}

func ensureAlias(ctx context.Context, store Store, res *Result, now time.Time, address string) (*domain.Alias, error) {
	address = domain.NormalizeAddress(address)
	alias := &domain.Alias{
		ID:        stableID("alias", address),
		UserID:    res.User.ID,
		Address:   address,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if res.Mailbox != nil {
		alias.MailboxID = &res.Mailbox.ID
	}
	if res.CustomDomain != nil && domain.DomainOf(address) == res.CustomDomain.Domain {
		alias.CustomDomainID = &res.CustomDomain.ID
	}

	err := store.CreateAlias(ctx, alias)
	if errors.Is(err, storage.ErrAliasExists) {
		return store.GetAliasByAddress(ctx, address)
	}
	if err != nil {
		return nil, fmt.Errorf("create alias: %w", err)
	}
	return alias, nil
}
