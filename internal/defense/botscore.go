package defense

import "strings"

// uaPattern UA 子串与对应权重
type uaPattern struct {
	token  string
	weight float64
}

// 模式按权重从高到低排列，命中即取该档权重
var uaPatterns = []uaPattern{
	// 无头浏览器特征权重最高
	{"headlesschrome", 0.9},
	{"phantomjs", 0.9},
	{"puppeteer", 0.9},
	{"playwright", 0.9},
	{"selenium", 0.9},
	// 通用抓取工具
	{"python-requests", 0.6},
	{"scrapy", 0.6},
	{"curl", 0.5},
	{"wget", 0.5},
	// 泛型 bot 标记
	{"bot", 0.5},
	{"crawl", 0.5},
	{"spider", 0.5},
	// 已知善意爬虫权重最低
	{"googlebot", 0.2},
	{"bingbot", 0.2},
	{"duckduckbot", 0.2},
	{"yandexbot", 0.2},
}

// 善意爬虫需要先于泛型标记判断，否则 "googlebot" 会落进 "bot" 档
var benignCrawlers = []string{"googlebot", "bingbot", "duckduckbot", "yandexbot"}

const (
	missingUAScore      = 0.6
	missingRefererBoost = 0.1
	missingCookieBoost  = 0.1
	wildcardAcceptBoost = 0.1
	benignCrawlerScore  = 0.2
)

// BotScorer 基于请求特征估计 Bot 概率
type BotScorer struct{}

// NewBotScorer 创建 Bot 评分器
func NewBotScorer() *BotScorer {
	return &BotScorer{}
}

// Score 返回 [0,1] 的 Bot 概率
// UA 模式匹配加权，再叠加缺失 Referer/Cookie 与通配 Accept 的启发式加成。
func (b *BotScorer) Score(userAgent, referer, cookie, accept string) float64 {
	score := b.uaScore(strings.ToLower(userAgent))

	if referer == "" {
		score += missingRefererBoost
	}
	if cookie == "" {
		score += missingCookieBoost
	}
	if strings.TrimSpace(accept) == "*/*" {
		score += wildcardAcceptBoost
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (b *BotScorer) uaScore(ua string) float64 {
	if ua == "" {
		return missingUAScore
	}

	for _, benign := range benignCrawlers {
		if strings.Contains(ua, benign) {
			return benignCrawlerScore
		}
	}

	best := 0.0
	for _, p := range uaPatterns {
		if strings.Contains(ua, p.token) && p.weight > best {
			best = p.weight
		}
	}
	return best
}
