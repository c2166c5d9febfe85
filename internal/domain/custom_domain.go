package domain

import "time"

// DomainMode 域名模式
type DomainMode string

const (
	// DomainModeStandard 普通模式 - 只接收已存在别名的邮件
	DomainModeStandard DomainMode = "standard"
	// DomainModeCatchAll 通配模式 - 任意本地部分都会即时创建别名
	DomainModeCatchAll DomainMode = "catch_all"
)

// DomainStatus 域名状态
type DomainStatus string

const (
	DomainStatusPending  DomainStatus = "pending"
	DomainStatusVerified DomainStatus = "verified"
	DomainStatusFailed   DomainStatus = "failed"
)

// CustomDomain 用户自定义域名
type CustomDomain struct {
	ID           string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string       `json:"userId" gorm:"type:varchar(36);index;not null"`
	Domain       string       `json:"domain" gorm:"uniqueIndex;type:varchar(253);not null"`
	Mode         DomainMode   `json:"mode" gorm:"type:varchar(20);default:'standard'"`
	Status       DomainStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	DKIMVerified bool         `json:"dkimVerified" gorm:"default:false"`
	IsActive     bool         `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// IsCatchAll 是否开启通配
func (d *CustomDomain) IsCatchAll() bool {
	return d.Mode == DomainModeCatchAll && d.IsActive && d.Status == DomainStatusVerified
}
