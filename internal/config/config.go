package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "FORUMPULSE"

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MongoConfig 描述 MongoDB 连接。
type MongoConfig struct {
	URI      string
	Database string
}

// InfluxConfig 描述计数事件的时序库，URL 为空时不启用。
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabasePath      string
	SessionSecret     string
	GinMode           string
	LogLevel          string
	LogPretty         bool
	SiteBaseURL       string
	SuperRootUserName string
	SuperRootPassword string

	// Backend 为 sqlite 或 mongo，决定帖子与计数的存储
	Backend string
	// MarkStore 为 sqlite 或 redis
	MarkStore string
	// CounterStore 为 sqlite、mongo 或 redis，缺省跟随 Backend
	CounterStore string
	Redis        RedisConfig
	Mongo        MongoConfig
	Influx       InfluxConfig

	IdentitySecret   string
	IdentityIssuer   string
	ExcludedEmails   []string
	VisitScope       string
	TimeZone         string
	TrendingStatus   string
	TrendingPageSize int
	RefreshInterval  time.Duration
	MetricsCacheTTL  time.Duration
	ViewRateLimit    float64
	ViewRateBurst    int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("listen_addr", "")
	v.SetDefault("database_path", "forumpulse.db")
	v.SetDefault("session_secret", "forumpulse-dev-secret")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("site_base_url", "http://localhost:8080")
	v.SetDefault("super_root.username", "")
	v.SetDefault("super_root.password", "")

	v.SetDefault("backend", "sqlite")
	v.SetDefault("mark_store", "sqlite")
	v.SetDefault("counter_store", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "forum")
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "forum")
	v.SetDefault("influx.bucket", "visits")

	v.SetDefault("identity.secret", "")
	v.SetDefault("identity.issuer", "")
	v.SetDefault("identity.excluded_emails", "")
	v.SetDefault("visits.scope", "forum")
	v.SetDefault("visits.timezone", "Local")
	v.SetDefault("trending.status", "open")
	v.SetDefault("trending.page_size", 10)
	v.SetDefault("trending.refresh_interval", "0s")
	v.SetDefault("metrics.cache_ttl", "1m")
	v.SetDefault("ratelimit.views_per_second", 5.0)
	v.SetDefault("ratelimit.views_burst", 10)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load 依次读取 .env、当前目录下的 config.yaml 与 FORUMPULSE_* 环境变量，缺失项使用默认值。
func Load() AppConfig {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	v := newViper()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("ignoring unreadable config file")
		}
	}
	return build(v)
}

// LoadFile 从指定的配置文件读取，环境变量仍然优先。
func LoadFile(path string) (AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return build(v), nil
}

func build(v *viper.Viper) AppConfig {
	port := strings.TrimSpace(v.GetString("port"))
	listenAddr := strings.TrimSpace(v.GetString("listen_addr"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("backend")))
	counterStore := strings.ToLower(strings.TrimSpace(v.GetString("counter_store")))
	if counterStore == "" {
		counterStore = backend
	}

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabasePath:      strings.TrimSpace(v.GetString("database_path")),
		SessionSecret:     strings.TrimSpace(v.GetString("session_secret")),
		GinMode:           strings.TrimSpace(v.GetString("gin_mode")),
		LogLevel:          strings.TrimSpace(v.GetString("log.level")),
		LogPretty:         v.GetBool("log.pretty"),
		SiteBaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("site_base_url")), "/"),
		SuperRootUserName: strings.TrimSpace(v.GetString("super_root.username")),
		SuperRootPassword: strings.TrimSpace(v.GetString("super_root.password")),

		Backend:      backend,
		MarkStore:    strings.ToLower(strings.TrimSpace(v.GetString("mark_store"))),
		CounterStore: counterStore,
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Influx: InfluxConfig{
			URL:    strings.TrimSpace(v.GetString("influx.url")),
			Token:  v.GetString("influx.token"),
			Org:    v.GetString("influx.org"),
			Bucket: v.GetString("influx.bucket"),
		},

		IdentitySecret:   v.GetString("identity.secret"),
		IdentityIssuer:   v.GetString("identity.issuer"),
		ExcludedEmails:   splitList(v.GetString("identity.excluded_emails")),
		VisitScope:       strings.TrimSpace(v.GetString("visits.scope")),
		TimeZone:         strings.TrimSpace(v.GetString("visits.timezone")),
		TrendingStatus:   strings.TrimSpace(v.GetString("trending.status")),
		TrendingPageSize: v.GetInt("trending.page_size"),
		RefreshInterval:  v.GetDuration("trending.refresh_interval"),
		MetricsCacheTTL:  v.GetDuration("metrics.cache_ttl"),
		ViewRateLimit:    v.GetFloat64("ratelimit.views_per_second"),
		ViewRateBurst:    v.GetInt("ratelimit.views_burst"),
	}
}

// Location 解析 TimeZone，无法识别时回退到本地时区。
func (c AppConfig) Location() *time.Location {
	if c.TimeZone == "" || strings.EqualFold(c.TimeZone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", c.TimeZone).Msg("unknown timezone, using local time")
		return time.Local
	}
	return loc
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
