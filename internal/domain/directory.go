package domain

import (
	"strings"
	"time"
)

// DirectorySeparators 目录前缀与后缀之间允许的分隔符，按优先级排列
var DirectorySeparators = []string{"/", "+", "#"}

// Directory 付费用户保留的别名前缀，例如 sales/anything@relay.example。
type Directory struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	Name      string    `json:"name" gorm:"type:varchar(64);uniqueIndex;not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// SplitDirectory 从别名地址中拆出目录名。
//
// 地址不含任何分隔符时返回 ok=false。
func SplitDirectory(address string) (name string, ok bool) {
	local := LocalPartOf(address)
	for _, sep := range DirectorySeparators {
		if i := strings.Index(local, sep); i > 0 {
			return local[:i], true
		}
	}
	return "", false
}
