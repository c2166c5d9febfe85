package domain

import "time"

// UserTier 用户等级
type UserTier string

const (
	TierFree     UserTier = "free"
	TierPremium  UserTier = "premium"
	TierLifetime UserTier = "lifetime"
)

// User 别名的所有者。账户与订阅由控制台维护，中继只读取。
type User struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email         string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"` // 默认收件邮箱
	Name          string     `json:"name,omitempty" gorm:"type:varchar(128)"`
	Tier          UserTier   `json:"tier" gorm:"type:varchar(20);default:'free';index"`
	PlanExpiresAt *time.Time `json:"planExpiresAt,omitempty"` // nil 表示不过期
	IsActive      bool       `json:"isActive" gorm:"default:true"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsPremium 判断用户在 now 时刻是否持有有效付费计划
func (u *User) IsPremium(now time.Time) bool {
	switch u.Tier {
	case TierLifetime:
		return true
	case TierPremium:
		return u.PlanExpiresAt == nil || now.Before(*u.PlanExpiresAt)
	default:
		return false
	}
}

// DisplayName 通知模板中使用的称呼
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Quota 用户配额
type Quota struct {
	MaxAliases int `json:"maxAliases"` // -1 表示无限制
}

// DefaultQuotas 返回不同等级的默认配额
func DefaultQuotas(tier UserTier) Quota {
	switch tier {
	case TierPremium, TierLifetime:
		return Quota{MaxAliases: -1}
	default:
		return Quota{MaxAliases: 5}
	}
}
