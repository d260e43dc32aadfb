package model

import (
	"time"
)

// VisitorSeen 记录某短码下已出现过的访客哈希
// 唯一访客判定依赖 (short_code, visitor_hash) 的唯一约束：
// 插入成功即首次访问，冲突即回访。
type VisitorSeen struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	ShortCode   string    `gorm:"size:10;not null;uniqueIndex:idx_code_visitor" json:"short_code"`
	VisitorHash string    `gorm:"size:32;not null;uniqueIndex:idx_code_visitor" json:"visitor_hash"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (VisitorSeen) TableName() string {
	return "visitor_seen"
}
