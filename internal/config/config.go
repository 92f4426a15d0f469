package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LogConfig struct {
	Level     string
	Format    string
	Component string
	Source    bool
}

type DBConfig struct {
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GRPCConfig struct {
	Host string
	Port string
}

type WSConfig struct {
	Addr string
}

// DiscoveryConfig drives candidate filtering, scoring fan-out and daily quotas.
type DiscoveryConfig struct {
	Workers            int
	ScoreTimeout       time.Duration
	ScoreCacheTTL      time.Duration
	MinScore           int
	OverFetchFactor    int
	AgeSpan            int
	MinAge             int
	MaxAge             int
	OppositeGenderOnly bool
	FreeDailyQuota     int
	PremiumDailyQuota  int
}

type PresenceConfig struct {
	StaleAfter    time.Duration
	OfflineAfter  time.Duration
	SweepInterval time.Duration
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	PublicURL string
}

// RealtimeConfig selects the event bus: "redis" fans out across instances,
// "memory" keeps events inside one process.
type RealtimeConfig struct {
	Bus string
}

// NotifyConfig selects the push sink: "redis" enqueues to the outbox list,
// "log" only logs.
type NotifyConfig struct {
	Driver   string
	QueueKey string
}

type Config struct {
	App struct {
		ENV string
	}

	Log       LogConfig
	DB        DBConfig
	Redis     RedisConfig
	GRPC      GRPCConfig
	WS        WSConfig
	Discovery DiscoveryConfig
	Presence  PresenceConfig
	S3        S3Config
	Realtime  RealtimeConfig
	Notify    NotifyConfig
}

func New() *Config {
	// .env is optional; real environment variables always win
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "matching_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "muzz")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// WebSocket gateway
	cfg.WS.Addr = getEnvDefault("WS_ADDR", "127.0.0.1:8081")

	// Discovery
	cfg.Discovery.Workers = getEnvInt("DISCOVERY_WORKERS", 8)
	cfg.Discovery.ScoreTimeout = getEnvDuration("DISCOVERY_SCORE_TIMEOUT", 800*time.Millisecond)
	cfg.Discovery.ScoreCacheTTL = getEnvDuration("DISCOVERY_SCORE_CACHE_TTL", 6*time.Hour)
	cfg.Discovery.MinScore = getEnvInt("DISCOVERY_MIN_SCORE", 65)
	cfg.Discovery.OverFetchFactor = getEnvInt("DISCOVERY_OVERFETCH", 2)
	cfg.Discovery.AgeSpan = getEnvInt("DISCOVERY_AGE_SPAN", 10)
	cfg.Discovery.MinAge = getEnvInt("DISCOVERY_MIN_AGE", 18)
	cfg.Discovery.MaxAge = getEnvInt("DISCOVERY_MAX_AGE", 80)
	cfg.Discovery.OppositeGenderOnly = isTruthy(getEnvDefault("DISCOVERY_OPPOSITE_GENDER", "true"))
	cfg.Discovery.FreeDailyQuota = getEnvInt("QUOTA_FREE_DAILY", 3)
	cfg.Discovery.PremiumDailyQuota = getEnvInt("QUOTA_PREMIUM_DAILY", 50)

	// Presence
	cfg.Presence.StaleAfter = getEnvDuration("PRESENCE_STALE_AFTER", 30*time.Second)
	cfg.Presence.OfflineAfter = getEnvDuration("PRESENCE_OFFLINE_AFTER", 90*time.Second)
	cfg.Presence.SweepInterval = getEnvDuration("PRESENCE_SWEEP_INTERVAL", time.Minute)

	// Object storage
	cfg.S3.Endpoint = getEnvDefault("S3_ENDPOINT", "localhost:9000")
	cfg.S3.AccessKey = getEnvDefault("S3_ACCESS_KEY", "minioadmin")
	cfg.S3.SecretKey = getEnvDefault("S3_SECRET_KEY", "minioadmin")
	cfg.S3.Bucket = getEnvDefault("S3_BUCKET", "chat-attachments")
	cfg.S3.UseSSL = isTruthy(os.Getenv("S3_USE_SSL"))
	cfg.S3.Region = getEnvDefault("S3_REGION", "us-east-1")
	cfg.S3.PublicURL = getEnvDefault("S3_PUBLIC_URL", "")

	// Realtime bus
	cfg.Realtime.Bus = strings.ToLower(getEnvDefault("REALTIME_BUS", "redis"))

	// Push notifications
	cfg.Notify.Driver = strings.ToLower(getEnvDefault("NOTIFY_DRIVER", "redis"))
	cfg.Notify.QueueKey = getEnvDefault("PUSH_QUEUE_KEY", "push:outbox")

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
