package domain

import "time"

// ActivityLog 每封被处理邮件的审计记录，只追加。
type ActivityLog struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ContactID string    `json:"contactId" gorm:"type:varchar(36);index;not null"`
	IsReply   bool      `json:"isReply" gorm:"default:false"`
	Blocked   bool      `json:"blocked" gorm:"default:false"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// ActivityAction 控制台展示的动作类型
type ActivityAction string

const (
	ActionForward ActivityAction = "forward"
	ActionReply   ActivityAction = "reply"
	ActionBlock   ActivityAction = "block"
)

// Action 由记录推导出动作类型
func (l *ActivityLog) Action() ActivityAction {
	switch {
	case l.IsReply:
		return ActionReply
	case l.Blocked:
		return ActionBlock
	default:
		return ActionForward
	}
}

// AliasActivity 一条活动及其通信方信息
type AliasActivity struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Action    ActivityAction `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
}

// AliasStats 别名的活动统计
type AliasStats struct {
	AliasID   string `json:"aliasId"`
	Forwarded int64  `json:"nbForward"`
	Blocked   int64  `json:"nbBlock"`
	Replied   int64  `json:"nbReply"`
}
