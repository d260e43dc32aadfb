package cache

import "time"

// Tier 缓存层级，决定条目的基准 TTL
type Tier int

const (
	// TierStandard 默认层级
	TierStandard Tier = iota
	// TierHigh 热点链接，TTL 为标准值的 3 倍
	TierHigh
	// TierLow 预热候选，TTL 为标准值的一半
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierLow:
		return "low"
	default:
		return "standard"
	}
}

// TTL 计算该层级的基准 TTL
func (t Tier) TTL(standard time.Duration) time.Duration {
	switch t {
	case TierHigh:
		return 3 * standard
	case TierLow:
		return standard / 2
	default:
		return standard
	}
}

// TierFor 根据链接热度选择缓存层级
// 独立成策略函数，便于替换为 LFU 等其它决策而不动解析器。
func TierFor(popularity, threshold int64) Tier {
	if popularity >= threshold {
		return TierHigh
	}
	return TierStandard
}
