package storage

import (
	"context"
	"errors"

	"aliasrelay/backend/internal/domain"
)

var (
	// ErrUserNotFound 用户未找到
	ErrUserNotFound = errors.New("user not found")
	// ErrMailboxNotFound 邮箱未找到
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrAliasNotFound 别名未找到错误
	ErrAliasNotFound = errors.New("alias not found")
	// ErrAliasExists 别名已存在错误
	ErrAliasExists = errors.New("alias already exists")
	// ErrDirectoryNotFound 目录未找到
	ErrDirectoryNotFound = errors.New("directory not found")
	// ErrCustomDomainNotFound 自定义域名未找到
	ErrCustomDomainNotFound = errors.New("custom domain not found")
	// ErrContactNotFound 联系人映射未找到
	ErrContactNotFound = errors.New("contact not found")
	// ErrContactExists 同一 (别名, 通信方) 已有映射
	ErrContactExists = errors.New("contact already exists")
	// ErrReplyEmailExists 回复地址冲突
	ErrReplyEmailExists = errors.New("reply email already exists")
)

// UserRepository 定义用户与邮箱的只读操作。
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error)
}

// AliasRepository 定义别名数据存取操作。
type AliasRepository interface {
	GetAlias(ctx context.Context, id string) (*domain.Alias, error)
	GetAliasByAddress(ctx context.Context, address string) (*domain.Alias, error)
	// CreateAlias 地址冲突时返回 ErrAliasExists
	CreateAlias(ctx context.Context, alias *domain.Alias) error
	SetAliasEnabled(ctx context.Context, id string, enabled bool) error
	CountAliasesByUser(ctx context.Context, userID string) (int64, error)
}

// DirectoryRepository 定义目录与自定义域名的查询操作。
type DirectoryRepository interface {
	GetDirectoryByName(ctx context.Context, name string) (*domain.Directory, error)
	GetCustomDomainByDomain(ctx context.Context, domainName string) (*domain.CustomDomain, error)
}

// ContactRepository 定义联系人映射的存取操作。
type ContactRepository interface {
	GetContact(ctx context.Context, id string) (*domain.Contact, error)
	GetContactByAliasAndWebsite(ctx context.Context, aliasID, websiteEmail string) (*domain.Contact, error)
	GetContactByReplyEmail(ctx context.Context, replyEmail string) (*domain.Contact, error)
	ReplyEmailExists(ctx context.Context, replyEmail string) (bool, error)
	// CreateContact 违反唯一约束时返回 ErrContactExists 或 ErrReplyEmailExists
	CreateContact(ctx context.Context, contact *domain.Contact) error
	ListContactsByAlias(ctx context.Context, aliasID string) ([]*domain.Contact, error)
}

// ActivityRepository 定义活动日志的查询操作。
type ActivityRepository interface {
	ListAliasActivities(ctx context.Context, aliasID string, limit, offset int) ([]ActivityRow, error)
	AliasStats(ctx context.Context, aliasID string) (*domain.AliasStats, error)
}

// ActivityRow 活动日志与其联系人的联表结果
type ActivityRow struct {
	Log     domain.ActivityLog
	Contact domain.Contact
}

// Tx 一个原子单元内可执行的写操作。
type Tx interface {
	UpdateContactWebsiteFrom(ctx context.Context, contactID, websiteFrom string) error
	CreateActivity(ctx context.Context, entry *domain.ActivityLog) error
}

// Transactor 以原子方式执行 fn 中的全部写操作；fn 返回错误时全部回滚。
type Transactor interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Seeder 控制台侧的写入操作（开发种子数据与测试使用）。
type Seeder interface {
	SaveUser(ctx context.Context, user *domain.User) error
	SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	SaveDirectory(ctx context.Context, dir *domain.Directory) error
	SaveCustomDomain(ctx context.Context, d *domain.CustomDomain) error
}

// Store 定义完整的存储接口。
type Store interface {
	UserRepository
	AliasRepository
	DirectoryRepository
	ContactRepository
	ActivityRepository
	Transactor
	Seeder

	// 工具方法
	Close() error
	Health() error
}
