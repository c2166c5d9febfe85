package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL 与 MySQL。
type Store struct {
	db *gorm.DB
}

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DefaultOptions 默认连接池参数
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), opts)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), opts)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &Store{db: db}
	if opts.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Mailbox{},
		&domain.Directory{},
		&domain.CustomDomain{},
		&domain.Alias{},
		&domain.Contact{},
		&domain.ActivityLog{},
	)
}

// first 查询单条记录，未找到时返回 notFound。
func first[T any](db *gorm.DB, notFound error, query string, args ...any) (*T, error) {
	var out T
	if err := db.Where(query, args...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound
		}
		return nil, err
	}
	return &out, nil
}

// ========== 控制台侧写入 ==========

// SaveUser 保存用户
func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

// SaveMailbox 保存邮箱
func (s *Store) SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	return s.db.WithContext(ctx).Save(mailbox).Error
}

// SaveDirectory 保存目录
func (s *Store) SaveDirectory(ctx context.Context, dir *domain.Directory) error {
	dir.Name = strings.ToLower(dir.Name)
	return s.db.WithContext(ctx).Save(dir).Error
}

// SaveCustomDomain 保存自定义域名
func (s *Store) SaveCustomDomain(ctx context.Context, d *domain.CustomDomain) error {
	d.Domain = strings.ToLower(d.Domain)
	return s.db.WithContext(ctx).Save(d).Error
}

// ========== User Repository ==========

// GetUser 根据 ID 获取用户
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return first[domain.User](s.db.WithContext(ctx), storage.ErrUserNotFound, "id = ?", id)
}

// GetMailbox 根据 ID 获取邮箱
func (s *Store) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	return first[domain.Mailbox](s.db.WithContext(ctx), storage.ErrMailboxNotFound, "id = ?", id)
}

// ========== Alias Repository ==========

// GetAlias 根据 ID 获取别名
func (s *Store) GetAlias(ctx context.Context, id string) (*domain.Alias, error) {
	return first[domain.Alias](s.db.WithContext(ctx), storage.ErrAliasNotFound, "id = ?", id)
}

// GetAliasByAddress 根据完整地址获取别名
func (s *Store) GetAliasByAddress(ctx context.Context, address string) (*domain.Alias, error) {
	return first[domain.Alias](s.db.WithContext(ctx), storage.ErrAliasNotFound, "address = ?", strings.ToLower(address))
}

// CreateAlias 创建别名，依赖 address 唯一索引保证并发安全
func (s *Store) CreateAlias(ctx context.Context, alias *domain.Alias) error {
	alias.Address = strings.ToLower(alias.Address)
	if err := s.db.WithContext(ctx).Create(alias).Error; err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAliasExists
		}
		return err
	}
	return nil
}

// SetAliasEnabled 修改别名启用状态
func (s *Store) SetAliasEnabled(ctx context.Context, id string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&domain.Alias{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 值未变化时部分驱动也返回 0，需要再确认一次
		if _, err := s.GetAlias(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// CountAliasesByUser 统计用户拥有的别名数量
func (s *Store) CountAliasesByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Alias{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ========== Directory Repository ==========

// GetDirectoryByName 根据名称获取目录
func (s *Store) GetDirectoryByName(ctx context.Context, name string) (*domain.Directory, error) {
	return first[domain.Directory](s.db.WithContext(ctx), storage.ErrDirectoryNotFound, "name = ?", strings.ToLower(name))
}

// GetCustomDomainByDomain 根据域名获取自定义域名
func (s *Store) GetCustomDomainByDomain(ctx context.Context, domainName string) (*domain.CustomDomain, error) {
	return first[domain.CustomDomain](s.db.WithContext(ctx), storage.ErrCustomDomainNotFound, "domain = ?", strings.ToLower(domainName))
}

// ========== Contact Repository ==========

// GetContact 根据 ID 获取联系人
func (s *Store) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	return first[domain.Contact](s.db.WithContext(ctx), storage.ErrContactNotFound, "id = ?", id)
}

// GetContactByAliasAndWebsite 根据 (别名, 通信方地址) 获取联系人
func (s *Store) GetContactByAliasAndWebsite(ctx context.Context, aliasID, websiteEmail string) (*domain.Contact, error) {
	return first[domain.Contact](s.db.WithContext(ctx), storage.ErrContactNotFound,
		"alias_id = ? AND website_email = ?", aliasID, websiteEmail)
}

// GetContactByReplyEmail 根据回复地址获取联系人
func (s *Store) GetContactByReplyEmail(ctx context.Context, replyEmail string) (*domain.Contact, error) {
	return first[domain.Contact](s.db.WithContext(ctx), storage.ErrContactNotFound, "reply_email = ?", strings.ToLower(replyEmail))
}

// ReplyEmailExists 检查回复地址是否已被占用
func (s *Store) ReplyEmailExists(ctx context.Context, replyEmail string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("reply_email = ?", strings.ToLower(replyEmail)).
		Limit(1).Count(&n).Error
	return n > 0, err
}

// CreateContact 创建联系人映射
//
// 两个唯一索引分别对应两种冲突，需要根据冲突的约束区分返回值。
func (s *Store) CreateContact(ctx context.Context, contact *domain.Contact) error {
	contact.ReplyEmail = strings.ToLower(contact.ReplyEmail)
	err := s.db.WithContext(ctx).Create(contact).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}
	if constraint := violatedConstraint(err); constraint != "" {
		if strings.Contains(constraint, "reply_email") {
			return storage.ErrReplyEmailExists
		}
		return storage.ErrContactExists
	}
	// 无法从错误中取得约束名时，回查 (别名, 通信方) 是否已存在
	if _, lookupErr := s.GetContactByAliasAndWebsite(ctx, contact.AliasID, contact.WebsiteEmail); lookupErr == nil {
		return storage.ErrContactExists
	}
	return storage.ErrReplyEmailExists
}

// ListContactsByAlias 列出别名下的全部联系人
func (s *Store) ListContactsByAlias(ctx context.Context, aliasID string) ([]*domain.Contact, error) {
	var contacts []*domain.Contact
	err := s.db.WithContext(ctx).
		Where("alias_id = ?", aliasID).
		Order("created_at DESC").
		Find(&contacts).Error
	return contacts, err
}

// ========== Activity Repository ==========

type activityJoinRow struct {
	domain.ActivityLog
	WebsiteEmail string
	WebsiteFrom  string
	ReplyEmail   string
	AliasID      string
}

// ListAliasActivities 分页列出别名的活动，最新的在前
func (s *Store) ListAliasActivities(ctx context.Context, aliasID string, limit, offset int) ([]storage.ActivityRow, error) {
	var joined []activityJoinRow
	err := s.db.WithContext(ctx).
		Table("activity_logs").
		Select("activity_logs.*, contacts.website_email, contacts.website_from, contacts.reply_email, contacts.alias_id").
		Joins("JOIN contacts ON contacts.id = activity_logs.contact_id").
		Where("contacts.alias_id = ?", aliasID).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "activity_logs", Name: "created_at"}, Desc: true}).
		Limit(limit).
		Offset(offset).
		Scan(&joined).Error
	if err != nil {
		return nil, err
	}

	rows := make([]storage.ActivityRow, 0, len(joined))
	for _, j := range joined {
		rows = append(rows, storage.ActivityRow{
			Log: j.ActivityLog,
			Contact: domain.Contact{
				ID:           j.ContactID,
				AliasID:      j.AliasID,
				WebsiteEmail: j.WebsiteEmail,
				WebsiteFrom:  j.WebsiteFrom,
				ReplyEmail:   j.ReplyEmail,
			},
		})
	}
	return rows, nil
}

// AliasStats 统计别名的转发、拦截与回复次数
func (s *Store) AliasStats(ctx context.Context, aliasID string) (*domain.AliasStats, error) {
	var counts struct {
		Replied   int64
		Blocked   int64
		Forwarded int64
	}
	err := s.db.WithContext(ctx).
		Table("activity_logs").
		Select(`COALESCE(SUM(CASE WHEN activity_logs.is_reply THEN 1 ELSE 0 END), 0) AS replied,
			COALESCE(SUM(CASE WHEN NOT activity_logs.is_reply AND activity_logs.blocked THEN 1 ELSE 0 END), 0) AS blocked,
			COALESCE(SUM(CASE WHEN NOT activity_logs.is_reply AND NOT activity_logs.blocked THEN 1 ELSE 0 END), 0) AS forwarded`).
		Joins("JOIN contacts ON contacts.id = activity_logs.contact_id").
		Where("contacts.alias_id = ?", aliasID).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return &domain.AliasStats{
		AliasID:   aliasID,
		Forwarded: counts.Forwarded,
		Blocked:   counts.Blocked,
		Replied:   counts.Replied,
	}, nil
}

// ========== 事务 ==========

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) UpdateContactWebsiteFrom(ctx context.Context, contactID, websiteFrom string) error {
	result := t.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{"website_from": websiteFrom, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrContactNotFound
	}
	return nil
}

func (t *gormTx) CreateActivity(ctx context.Context, entry *domain.ActivityLog) error {
	return t.db.WithContext(ctx).Create(entry).Error
}

// Atomic 在单个数据库事务中执行 fn
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
