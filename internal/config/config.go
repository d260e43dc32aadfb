package config

import (
	"io/ioutil"

	"gopkg.in/yaml.v3"
)

// 主配置结构 - 简化命名
type Config struct {
	App       App      `yaml:"app"`
	Server    Server   `yaml:"server"`
	Database  DB       `yaml:"database"`
	Cache     Cache    `yaml:"cache"`
	Defense   Defense  `yaml:"defense"`
	Broker    Broker   `yaml:"broker"`
	Pipeline  Pipeline `yaml:"pipeline"`
	RateLimit Limit    `yaml:"rate_limit"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
}

// 服务器配置
type Server struct {
	Port         int `yaml:"port"`
	ReadTimeout  int `yaml:"read_timeout"`
	WriteTimeout int `yaml:"write_timeout"`
}

// 数据库配置
type DB struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Name      string `yaml:"name"`
	Charset   string `yaml:"charset"`
	TimeoutMS int    `yaml:"timeout_ms"` // 单次查询超时（毫秒）
}

// 缓存配置（Redis + 分层 TTL）
type Cache struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// 分层 TTL 策略：high = 3x standard, low = 0.5x standard
	StandardTTLMinutes int `yaml:"standard_ttl_minutes"`
	// 点击量超过该阈值的链接进入 high 层
	PopularityThreshold int64 `yaml:"popularity_threshold"`
	// 缓存操作超时（毫秒），应远小于数据库超时
	TimeoutMS int `yaml:"timeout_ms"`
}

// 防御配置（信誉评分 + Bot 识别）
type Defense struct {
	Enabled bool `yaml:"enabled"`
	// 信誉表容量上限，超出后按 LRU 淘汰
	ReputationCapacity int `yaml:"reputation_capacity"`
	// Bot 概率超过该值时追加信誉惩罚
	BotThreshold float64 `yaml:"bot_threshold"`
}

// 消息代理配置（NATS JetStream）
type Broker struct {
	URL        string `yaml:"url"`
	StreamName string `yaml:"stream_name"`
	// 重连退避参数
	ReconnectBaseMS int `yaml:"reconnect_base_ms"`
	ReconnectCapMS  int `yaml:"reconnect_cap_ms"`
	MaxReconnects   int `yaml:"max_reconnects"`
}

// 点击流水线配置（异步副作用）
type Pipeline struct {
	BufferSize int `yaml:"buffer_size"`
	Workers    int `yaml:"workers"`
}

// 限流配置
type Limit struct {
	Enabled   bool     `yaml:"enabled"`
	Requests  int64    `yaml:"requests_per_minute"`
	Burst     int64    `yaml:"burst"`
	SkipPaths []string `yaml:"skip_paths"`
}

// 加载配置
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults 为缺省字段填充安全默认值
func (c *Config) applyDefaults() {
	if c.Cache.StandardTTLMinutes <= 0 {
		c.Cache.StandardTTLMinutes = 60
	}
	if c.Cache.PopularityThreshold <= 0 {
		c.Cache.PopularityThreshold = 1000
	}
	if c.Cache.TimeoutMS <= 0 {
		c.Cache.TimeoutMS = 500
	}
	if c.Database.TimeoutMS <= 0 {
		c.Database.TimeoutMS = 3000
	}
	if c.Defense.ReputationCapacity <= 0 {
		c.Defense.ReputationCapacity = 100000
	}
	if c.Defense.BotThreshold <= 0 {
		c.Defense.BotThreshold = 0.7
	}
	if c.Broker.ReconnectBaseMS <= 0 {
		c.Broker.ReconnectBaseMS = 1000
	}
	if c.Broker.ReconnectCapMS <= 0 {
		c.Broker.ReconnectCapMS = 30000
	}
	if c.Broker.MaxReconnects <= 0 {
		c.Broker.MaxReconnects = 10
	}
	if c.Broker.StreamName == "" {
		c.Broker.StreamName = "SHORTURL"
	}
	if c.Pipeline.BufferSize <= 0 {
		c.Pipeline.BufferSize = 4096
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 60
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
}
