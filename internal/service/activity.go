package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/storage"
)

// ActivityPageSize 活动列表每页条数
const ActivityPageSize = 20

// ActivityService 活动日志：写入在调用方的事务中完成，查询面向控制台。
type ActivityService struct {
	activities storage.ActivityRepository
	aliases    *AliasService
	now        func() time.Time
}

// NewActivityService 创建活动日志服务。
func NewActivityService(activities storage.ActivityRepository, aliases *AliasService) *ActivityService {
	return &ActivityService{
		activities: activities,
		aliases:    aliases,
		now:        time.Now,
	}
}

// Append 在事务 tx 中追加一条活动记录。
func (s *ActivityService) Append(ctx context.Context, tx storage.Tx, contactID string, isReply, blocked bool) (*domain.ActivityLog, error) {
	entry := &domain.ActivityLog{
		ID:        uuid.NewString(),
		ContactID: contactID,
		IsReply:   isReply,
		Blocked:   blocked,
		CreatedAt: s.now().UTC(),
	}
	if err := tx.CreateActivity(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListAliasActivities 分页列出用户自己别名的活动，page 从 0 开始。
func (s *ActivityService) ListAliasActivities(ctx context.Context, userID, aliasID string, page int) ([]domain.AliasActivity, error) {
	alias, err := s.aliases.Authorize(ctx, userID, aliasID)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}

	rows, err := s.activities.ListAliasActivities(ctx, aliasID, ActivityPageSize, page*ActivityPageSize)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AliasActivity, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToAliasActivity(alias.Address, row.Log, row.Contact))
	}
	return out, nil
}

// AliasStats 用户自己别名的转发、拦截与回复统计。
func (s *ActivityService) AliasStats(ctx context.Context, userID, aliasID string) (*domain.AliasStats, error) {
	if _, err := s.aliases.Authorize(ctx, userID, aliasID); err != nil {
		return nil, err
	}
	return s.activities.AliasStats(ctx, aliasID)
}

// ToAliasActivity 把活动记录转换为控制台展示的 from/to 视角。
func ToAliasActivity(aliasAddress string, entry domain.ActivityLog, contact domain.Contact) domain.AliasActivity {
	activity := domain.AliasActivity{
		Action:    entry.Action(),
		Timestamp: entry.CreatedAt,
	}
	if entry.IsReply {
		activity.From = aliasAddress
		activity.To = contact.DisplayFrom()
	} else {
		activity.From = contact.DisplayFrom()
		activity.To = aliasAddress
	}
	return activity
}
