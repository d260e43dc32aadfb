package defense

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

const (
	// 信誉分边界与基线
	scoreMin      = 0
	scoreMax      = 100
	scoreBaseline = 100

	// 突发惩罚：间隔 < 1s 且累计请求 > 10 次
	burstPenalty        = 5
	burstInterval       = time.Second
	burstCountThreshold = 10

	// 指纹（UA+Referer）变化惩罚
	fingerprintPenalty = 2

	// 空闲恢复：静默超过 60s 每次观察 +1
	idleRecovery = 1
	idleInterval = 60 * time.Second

	shardCount = 32
)

// Record 单个客户端身份的信誉记录
type Record struct {
	Score         int
	RequestCount  int64
	LastRequestAt time.Time
	Fingerprint   string
}

// shard 信誉表分片：LRU 淘汰保证内存有界
// 结构参考 container/list + map 的经典 LRU 实现。
type shard struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // 头部为最近观察到的身份
}

type shardEntry struct {
	identity string
	record   *Record
}

// Tracker 按客户端身份维护信誉评分
//
// 全请求并发可达，因此按身份哈希分片加锁，
// 绝不允许一把全局锁串行化整个前门。
type Tracker struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewTracker 创建信誉跟踪器，capacity 为全表身份容量上限
func NewTracker(capacity int) *Tracker {
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	t := &Tracker{now: time.Now}
	for i := range t.shards {
		t.shards[i] = &shard{
			capacity: perShard,
			items:    make(map[string]*list.Element),
			order:    list.New(),
		}
	}
	return t
}

// Observe 观察一次请求并返回更新后的信誉分
// fingerprint 为 UA+Referer 拼接的请求指纹。
func (t *Tracker) Observe(identity, fingerprint string) int {
	s := t.shardFor(identity)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[identity]
	if !ok {
		rec := &Record{
			Score:         scoreBaseline,
			RequestCount:  1,
			LastRequestAt: now,
			Fingerprint:   fingerprint,
		}
		s.insert(identity, rec)
		return rec.Score
	}

	s.order.MoveToFront(elem)
	rec := elem.Value.(*shardEntry).record

	interval := now.Sub(rec.LastRequestAt)
	rec.RequestCount++

	if interval < burstInterval && rec.RequestCount > burstCountThreshold {
		rec.Score -= burstPenalty
	}
	if fingerprint != rec.Fingerprint {
		rec.Score -= fingerprintPenalty
		rec.Fingerprint = fingerprint
	}
	if interval > idleInterval {
		rec.Score += idleRecovery
	}

	rec.Score = clampScore(rec.Score)
	rec.LastRequestAt = now
	return rec.Score
}

// Penalize 追加信誉惩罚（超限、Bot 概率过高等场景）
func (t *Tracker) Penalize(identity string, points int) int {
	s := t.shardFor(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[identity]
	if !ok {
		rec := &Record{
			Score:         clampScore(scoreBaseline - points),
			LastRequestAt: t.now(),
		}
		s.insert(identity, rec)
		return rec.Score
	}

	rec := elem.Value.(*shardEntry).record
	rec.Score = clampScore(rec.Score - points)
	return rec.Score
}

// Score 查询当前信誉分；未知身份返回基线值
func (t *Tracker) Score(identity string) int {
	s := t.shardFor(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[identity]; ok {
		return elem.Value.(*shardEntry).record.Score
	}
	return scoreBaseline
}

// Len 当前跟踪的身份总数
func (t *Tracker) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.items)
		s.mu.Unlock()
	}
	return total
}

func (t *Tracker) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return t.shards[h.Sum32()%shardCount]
}

// insert 写入新记录，容量满时淘汰最久未观察的身份
// 调用方必须持有分片锁。
func (s *shard) insert(identity string, rec *Record) {
	elem := s.order.PushFront(&shardEntry{identity: identity, record: rec})
	s.items[identity] = elem

	if len(s.items) > s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.items, oldest.Value.(*shardEntry).identity)
		}
	}
}

func clampScore(score int) int {
	if score < scoreMin {
		return scoreMin
	}
	if score > scoreMax {
		return scoreMax
	}
	return score
}
