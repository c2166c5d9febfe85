package service

import (
	"context"
	"time"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// EntitlementService 判断用户当前是否允许新建别名。
//
// 每次调用都实时读取用户与别名数量，不做缓存：套餐可能在两封邮件之间发生变化。
type EntitlementService struct {
	users     storage.UserRepository
	aliases   storage.AliasRepository
	freeQuota int
	now       func() time.Time
}

// NewEntitlementService 创建套餐校验服务，freeQuota 为免费用户的别名上限。
func NewEntitlementService(users storage.UserRepository, aliases storage.AliasRepository, freeQuota int) *EntitlementService {
	if freeQuota <= 0 {
		freeQuota = domain.DefaultQuotas(domain.TierFree).MaxAliases
	}
	return &EntitlementService{
		users:     users,
		aliases:   aliases,
		freeQuota: freeQuota,
		now:       time.Now,
	}
}

// CanCreateAlias 用户有效且（持有未过期的付费套餐，或别名数量未达免费上限）。
func (s *EntitlementService) CanCreateAlias(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}
	if user.IsPremium(s.now()) {
		return true, nil
	}
	n, err := s.aliases.CountAliasesByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return n < int64(s.freeQuota), nil
}
