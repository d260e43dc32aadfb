package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// BreakdownMap 维度计数，按 JSON 存入数据库
type BreakdownMap map[string]int64

func (m BreakdownMap) Value() (driver.Value, error) {
	if m == nil {
		m = BreakdownMap{}
	}
	return json.Marshal(m)
}

func (m *BreakdownMap) Scan(value interface{}) error {
	if value == nil {
		*m = BreakdownMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("BreakdownMap: 不支持的数据库类型")
	}
}

// DailyPoint 每日时间序列中的一个点
type DailyPoint struct {
	Date           string `json:"date"` // UTC 日期，格式 2006-01-02
	Clicks         int64  `json:"clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// DailySeries 每日时间序列，按 JSON 存入数据库
type DailySeries []DailyPoint

func (s DailySeries) Value() (driver.Value, error) {
	if s == nil {
		s = DailySeries{}
	}
	return json.Marshal(s)
}

func (s *DailySeries) Scan(value interface{}) error {
	if value == nil {
		*s = DailySeries{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("DailySeries: 不支持的数据库类型")
	}
}

// LinkStats 短码级别的增量统计聚合
// 首个 RedirectFact 到达时惰性创建，总点击数单调不减。
type LinkStats struct {
	ID             uint         `gorm:"primarykey" json:"id"`
	ShortCode      string       `gorm:"size:10;uniqueIndex;not null" json:"short_code"`
	TotalClicks    int64        `gorm:"default:0" json:"total_clicks"`
	UniqueVisitors int64        `gorm:"default:0" json:"unique_visitors"`
	ByCountry      BreakdownMap `gorm:"type:text" json:"by_country"`
	ByDevice       BreakdownMap `gorm:"type:text" json:"by_device"`
	ByReferrer     BreakdownMap `gorm:"type:text" json:"by_referrer"`
	ByHour         BreakdownMap `gorm:"type:text" json:"by_hour"`
	ByWeekday      BreakdownMap `gorm:"type:text" json:"by_weekday"`
	Daily          DailySeries  `gorm:"type:text" json:"daily"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (LinkStats) TableName() string {
	return "link_stats"
}
