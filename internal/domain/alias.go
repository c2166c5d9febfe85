package domain

import "time"

// Alias 对外公开的别名地址。
//
// 发往别名的邮件会被转发到 MailboxID 指向的邮箱；MailboxID 为空时使用所有者的默认邮箱。
// DirectoryID / CustomDomainID 标记该别名是否由目录前缀或通配域名即时创建。
type Alias struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	MailboxID         *string   `json:"mailboxId,omitempty" gorm:"type:varchar(36);index"`
	Address           string    `json:"address" gorm:"type:varchar(255);uniqueIndex;not null"`
	Enabled           bool      `json:"enabled" gorm:"default:true"`
	DirectoryID       *string   `json:"directoryId,omitempty" gorm:"type:varchar(36);index"`
	CustomDomainID    *string   `json:"customDomainId,omitempty" gorm:"type:varchar(36);index"`
	AutomaticCreation bool      `json:"automaticCreation" gorm:"default:false"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Domain 返回别名地址的域名部分
func (a *Alias) Domain() string {
	return DomainOf(a.Address)
}
