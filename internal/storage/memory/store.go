package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// Store 使用内存保存别名、联系人与活动数据，主要用于开发验证与测试。
//
// 唯一约束与数据库保持一致：别名地址、(别名, 通信方)、回复地址。
type Store struct {
	mu            sync.RWMutex
	users         map[string]*domain.User         // userID -> user
	mailboxes     map[string]*domain.Mailbox      // mailboxID -> mailbox
	aliases       map[string]*domain.Alias        // aliasID -> alias
	byAddress     map[string]string               // address -> aliasID
	directories   map[string]*domain.Directory    // name -> directory
	customDomains map[string]*domain.CustomDomain // domain -> customDomain
	contacts      map[string]*domain.Contact      // contactID -> contact
	byWebsite     map[string]string               // aliasID|website -> contactID
	byReplyEmail  map[string]string               // replyEmail -> contactID
	activities    []*domain.ActivityLog           // 按写入顺序
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:         make(map[string]*domain.User),
		mailboxes:     make(map[string]*domain.Mailbox),
		aliases:       make(map[string]*domain.Alias),
		byAddress:     make(map[string]string),
		directories:   make(map[string]*domain.Directory),
		customDomains: make(map[string]*domain.CustomDomain),
		contacts:      make(map[string]*domain.Contact),
		byWebsite:     make(map[string]string),
		byReplyEmail:  make(map[string]string),
	}
}

func websiteKey(aliasID, websiteEmail string) string {
	return aliasID + "|" + websiteEmail
}

// ========== 控制台侧写入（开发与测试使用） ==========

// SaveUser 保存用户
func (s *Store) SaveUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// SaveMailbox 保存邮箱
func (s *Store) SaveMailbox(_ context.Context, mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *mailbox
	s.mailboxes[mailbox.ID] = &cp
	return nil
}

// SaveDirectory 保存目录
func (s *Store) SaveDirectory(_ context.Context, dir *domain.Directory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *dir
	s.directories[strings.ToLower(dir.Name)] = &cp
	return nil
}

// SaveCustomDomain 保存自定义域名
func (s *Store) SaveCustomDomain(_ context.Context, d *domain.CustomDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.customDomains[strings.ToLower(d.Domain)] = &cp
	return nil
}

// ========== User Repository ==========

// GetUser 根据 ID 获取用户。
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(_ context.Context, id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	cp := *mb
	return &cp, nil
}

// ========== Alias Repository ==========

// GetAlias 根据 ID 获取别名。
func (s *Store) GetAlias(_ context.Context, id string) (*domain.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.aliases[id]
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAliasByAddress 根据完整地址获取别名。
func (s *Store) GetAliasByAddress(_ context.Context, address string) (*domain.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	cp := *s.aliases[id]
	return &cp, nil
}

// CreateAlias 创建别名，地址已存在时返回 storage.ErrAliasExists。
func (s *Store) CreateAlias(_ context.Context, alias *domain.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := strings.ToLower(alias.Address)
	if _, exists := s.byAddress[addr]; exists {
		return storage.ErrAliasExists
	}
	cp := *alias
	s.aliases[alias.ID] = &cp
	s.byAddress[addr] = alias.ID
	return nil
}

// SetAliasEnabled 修改别名启用状态。
func (s *Store) SetAliasEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[id]
	if !ok {
		return storage.ErrAliasNotFound
	}
	a.Enabled = enabled
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// CountAliasesByUser 统计用户拥有的别名数量。
func (s *Store) CountAliasesByUser(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, a := range s.aliases {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ========== Directory Repository ==========

// GetDirectoryByName 根据名称获取目录。
func (s *Store) GetDirectoryByName(_ context.Context, name string) (*domain.Directory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.directories[strings.ToLower(name)]
	if !ok {
		return nil, storage.ErrDirectoryNotFound
	}
	cp := *d
	return &cp, nil
}

// GetCustomDomainByDomain 根据域名获取自定义域名。
func (s *Store) GetCustomDomainByDomain(_ context.Context, domainName string) (*domain.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.customDomains[strings.ToLower(domainName)]
	if !ok {
		return nil, storage.ErrCustomDomainNotFound
	}
	cp := *d
	return &cp, nil
}

// ========== Contact Repository ==========

// GetContact 根据 ID 获取联系人。
func (s *Store) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, storage.ErrContactNotFound
	}
	cp := *c
	return &cp, nil
}

// GetContactByAliasAndWebsite 根据 (别名, 通信方地址) 获取联系人。
func (s *Store) GetContactByAliasAndWebsite(_ context.Context, aliasID, websiteEmail string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byWebsite[websiteKey(aliasID, websiteEmail)]
	if !ok {
		return nil, storage.ErrContactNotFound
	}
	cp := *s.contacts[id]
	return &cp, nil
}

// GetContactByReplyEmail 根据回复地址获取联系人。
func (s *Store) GetContactByReplyEmail(_ context.Context, replyEmail string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReplyEmail[strings.ToLower(replyEmail)]
	if !ok {
		return nil, storage.ErrContactNotFound
	}
	cp := *s.contacts[id]
	return &cp, nil
}

// ReplyEmailExists 检查回复地址是否已被占用。
func (s *Store) ReplyEmailExists(_ context.Context, replyEmail string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byReplyEmail[strings.ToLower(replyEmail)]
	return ok, nil
}

// CreateContact 创建联系人映射。
func (s *Store) CreateContact(_ context.Context, contact *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := websiteKey(contact.AliasID, contact.WebsiteEmail)
	if _, exists := s.byWebsite[key]; exists {
		return storage.ErrContactExists
	}
	reply := strings.ToLower(contact.ReplyEmail)
	if _, exists := s.byReplyEmail[reply]; exists {
		return storage.ErrReplyEmailExists
	}
	cp := *contact
	s.contacts[contact.ID] = &cp
	s.byWebsite[key] = contact.ID
	s.byReplyEmail[reply] = contact.ID
	return nil
}

// ListContactsByAlias 列出别名下的全部联系人，按创建时间倒序。
func (s *Store) ListContactsByAlias(_ context.Context, aliasID string) ([]*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Contact, 0)
	for _, c := range s.contacts {
		if c.AliasID == aliasID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ========== Activity Repository ==========

// ListAliasActivities 分页列出别名的活动，最新的在前。
func (s *Store) ListAliasActivities(_ context.Context, aliasID string, limit, offset int) ([]storage.ActivityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]storage.ActivityRow, 0)
	for i := len(s.activities) - 1; i >= 0; i-- {
		entry := s.activities[i]
		c, ok := s.contacts[entry.ContactID]
		if !ok || c.AliasID != aliasID {
			continue
		}
		rows = append(rows, storage.ActivityRow{Log: *entry, Contact: *c})
	}

	if offset >= len(rows) {
		return []storage.ActivityRow{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// AliasStats 统计别名的转发、拦截与回复次数。
func (s *Store) AliasStats(_ context.Context, aliasID string) (*domain.AliasStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.AliasStats{AliasID: aliasID}
	for _, entry := range s.activities {
		c, ok := s.contacts[entry.ContactID]
		if !ok || c.AliasID != aliasID {
			continue
		}
		switch entry.Action() {
		case domain.ActionReply:
			stats.Replied++
		case domain.ActionBlock:
			stats.Blocked++
		default:
			stats.Forwarded++
		}
	}
	return stats, nil
}

// Activities 返回全部活动记录的快照（测试使用）。
func (s *Store) Activities() []domain.ActivityLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActivityLog, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, *a)
	}
	return out
}

// ========== 工具方法 ==========

// Close 内存存储无需关闭
func (s *Store) Close() error { return nil }

// Health 内存存储始终健康
func (s *Store) Health() error { return nil }
