package model

import (
	"time"
)

// ClickRecord 原始点击记录，用于审计与重放
type ClickRecord struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	EventID     string    `gorm:"size:36;index" json:"event_id"`
	ShortCode   string    `gorm:"size:10;not null;index" json:"short_code"`
	VisitorHash string    `gorm:"size:32;index" json:"visitor_hash"`
	IPHash      string    `gorm:"size:32" json:"ip_hash"`
	UserAgent   string    `gorm:"type:text" json:"user_agent"`
	Referer     string    `gorm:"type:text" json:"referer"`
	Country     string    `gorm:"size:100" json:"country"`
	ClickedAt   time.Time `json:"clicked_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ClickRecord) TableName() string {
	return "click_records"
}
