package model

import (
	"time"
)

// ShortLink 短链接模型（系统记录源实体）
// 短码一经创建不可变更；停用是标志位翻转，不做物理删除。
type ShortLink struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	ShortCode      string     `gorm:"size:10;uniqueIndex;not null" json:"short_code"`
	OriginalURL    string     `gorm:"type:text;not null" json:"original_url"`
	UserID         *uint      `gorm:"index" json:"user_id,omitempty"`
	ClickCount     int64      `gorm:"default:0" json:"click_count"`
	UniqueVisitors int64      `gorm:"default:0" json:"unique_visitors"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastAccessAt   *time.Time `json:"last_access_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (ShortLink) TableName() string {
	return "short_links"
}

// IsExpired 判断链接是否已过过期时间
func (s *ShortLink) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
