package domain

import "time"

// Contact 别名与一个外部通信方之间的映射（转发记录）。
//
// 每个 (AliasID, WebsiteEmail) 最多一条；ReplyEmail 全局唯一，生成后永不变更。
type Contact struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AliasID      string    `json:"aliasId" gorm:"type:varchar(36);not null;uniqueIndex:idx_contact_alias_website"`
	WebsiteEmail string    `json:"websiteEmail" gorm:"type:varchar(255);not null;uniqueIndex:idx_contact_alias_website"`
	WebsiteFrom  string    `json:"websiteFrom" gorm:"type:text"`
	ReplyEmail   string    `json:"replyEmail" gorm:"type:varchar(255);uniqueIndex;not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DisplayFrom 展示用发件人，优先使用完整的 From 头
func (c *Contact) DisplayFrom() string {
	if c.WebsiteFrom != "" {
		return c.WebsiteFrom
	}
	return c.WebsiteEmail
}
