package event

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// 路由主题：持久化 Stream 下按消费组独立绑定
const (
	// SubjectRedirectOccurred 重定向事实，聚合器消费
	SubjectRedirectOccurred = "shorturl.redirect.occurred"
	// SubjectURLCreated 新链接创建信号，解析器侧用于缓存预热
	SubjectURLCreated = "shorturl.url.created"
)

// RedirectFact 一次成功解析的不可变事实
// 携带聚合器独立重放所需的全部信息；EventID 仅用于审计与
// 死信排查，聚合器不以它去重（接受重投导致的少量多计）。
type RedirectFact struct {
	EventID     string    `json:"eventId"`
	ShortCode   string    `json:"shortCode"`
	OriginalURL string    `json:"originalUrl"`
	UserID      *uint     `json:"userId,omitempty"`
	VisitorHash string    `json:"visitorHash"`
	Timestamp   time.Time `json:"timestamp"`
	UserAgent   string    `json:"userAgent"`
	Referer     string    `json:"referer"`
	IPHash      string    `json:"ipHash"`
	CountryCode string    `json:"countryCode"`
}

// URLCreatedFact 管理协作方发布的新链接信号
type URLCreatedFact struct {
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
	UserID      *uint  `json:"userId,omitempty"`
}

// NewRedirectFact 在解析成功的时刻构造事实
func NewRedirectFact(shortCode, originalURL, ip, userAgent, referer, countryCode string, userID *uint) RedirectFact {
	return RedirectFact{
		EventID:     uuid.NewString(),
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		UserID:      userID,
		VisitorHash: VisitorHash(ip, userAgent),
		Timestamp:   time.Now().UTC(),
		UserAgent:   userAgent,
		Referer:     referer,
		IPHash:      hashPrefix(ip),
		CountryCode: countryCode,
	}
}

// VisitorHash 隐私安全的访客标识：SHA256(IP+UA) 前 16 位十六进制
func VisitorHash(ip, userAgent string) string {
	return hashPrefix(ip + "|" + userAgent)
}

func hashPrefix(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
