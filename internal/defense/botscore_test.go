package defense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// TestHeadlessBrowserScoresHighest 无头浏览器特征权重最高
func TestHeadlessBrowserScoresHighest(t *testing.T) {
	b := NewBotScorer()

	score := b.Score("Mozilla/5.0 HeadlessChrome/120.0", "https://example.com", "sid=1", "text/html")
	assert.InDelta(t, 0.9, score, 0.001)
}

// TestBenignCrawlerScoresLow 善意爬虫不落入泛型 bot 档
func TestBenignCrawlerScoresLow(t *testing.T) {
	b := NewBotScorer()

	// Googlebot 的 UA 同时包含 "bot"，必须按善意档 0.2 计
	score := b.Score("Mozilla/5.0 (compatible; Googlebot/2.1)", "https://example.com", "sid=1", "text/html")
	assert.InDelta(t, 0.2, score, 0.001)
}

// TestGenericBotToken 泛型 bot 标记取中等权重
func TestGenericBotToken(t *testing.T) {
	b := NewBotScorer()

	score := b.Score("SomeBot/1.0", "https://example.com", "sid=1", "text/html")
	assert.InDelta(t, 0.5, score, 0.001)
}

// TestHeaderHeuristicBoosts 缺失 Referer/Cookie 与通配 Accept 叠加加成
func TestHeaderHeuristicBoosts(t *testing.T) {
	b := NewBotScorer()

	// 正常浏览器 + 完整头：0 分
	assert.InDelta(t, 0.0, b.Score(chromeUA, "https://example.com", "sid=1", "text/html"), 0.001)

	// 三个启发式全部命中：+0.3
	assert.InDelta(t, 0.3, b.Score(chromeUA, "", "", "*/*"), 0.001)
}

// TestScoreCappedAtOne 概率上限 1.0
func TestScoreCappedAtOne(t *testing.T) {
	b := NewBotScorer()

	score := b.Score("puppeteer headless", "", "", "*/*")
	assert.Equal(t, 1.0, score)
}

// TestMissingUserAgent 空 UA 本身就是强信号
func TestMissingUserAgent(t *testing.T) {
	b := NewBotScorer()

	score := b.Score("", "https://example.com", "sid=1", "text/html")
	assert.InDelta(t, 0.6, score, 0.001)
}
