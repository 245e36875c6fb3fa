package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Session   SessionConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig describes the primary store and its optional read replica.
// When ReplicaURI is empty the replica handle reuses the primary connection
// with a secondary-preferred read preference.
type MongoDBConfig struct {
	URI        string
	ReplicaURI string
	Database   string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host       string
	Port       string
	Password   string
	DB         int
	Timeout    time.Duration
	PoolSize   int
	MaxRetries int
	TLS        bool
}

type SessionConfig struct {
	Header        string
	ShortDuration time.Duration
	LongDuration  time.Duration
}

// AuthConfig configures one-time token delivery.
// Message templates are text/template strings; see auth.Messages.
type AuthConfig struct {
	// SMSSender names the delivery backend (see sms.New).
	SMSSender      string
	BaseURL        string
	AuthSender     string
	AlertSender    string
	AuthMessage    string
	AlertMessage   string
	MaxOutstanding int
	TokenLength    int
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

const (
	defaultAuthMessage  = "Your AllClear authentication token is {{.Token}}. Or tap {{.BaseURL}}/auth?phone={{.Phone}}&token={{.Token}}"
	defaultAlertMessage = "AllClear: new exposures were reported near you. Review them at {{.BaseURL}}/alert?lastAlertedAt={{.LastAlertedAt}}&phone={{.Phone}}&token={{.Token}}"
)

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "allclear")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_TIMEOUT_MS", 2000)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("SESSION_HEADER", "X-AllClear-SessionID")
	v.SetDefault("SESSION_SHORT_SECONDS", 30*60)
	v.SetDefault("SESSION_LONG_SECONDS", 30*24*60*60)
	v.SetDefault("AUTH_BASE_URL", "http://localhost:8080")
	v.SetDefault("AUTH_MESSAGE", defaultAuthMessage)
	v.SetDefault("ALERT_MESSAGE", defaultAlertMessage)
	v.SetDefault("AUTH_MAX_OUTSTANDING", 3)
	v.SetDefault("AUTH_TOKEN_LENGTH", 10)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:        v.GetString("MONGODB_URI"),
			ReplicaURI: v.GetString("MONGODB_REPLICA_URI"),
			Database:   v.GetString("MONGODB_DATABASE"),
			Timeout:    time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:       v.GetString("REDIS_HOST"),
			Port:       v.GetString("REDIS_PORT"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         v.GetInt("REDIS_DB"),
			Timeout:    time.Duration(v.GetInt("REDIS_TIMEOUT_MS")) * time.Millisecond,
			PoolSize:   v.GetInt("REDIS_POOL_SIZE"),
			MaxRetries: v.GetInt("REDIS_MAX_RETRIES"),
			TLS:        v.GetBool("REDIS_TLS"),
		},
		Session: SessionConfig{
			Header:        v.GetString("SESSION_HEADER"),
			ShortDuration: time.Duration(v.GetInt("SESSION_SHORT_SECONDS")) * time.Second,
			LongDuration:  time.Duration(v.GetInt("SESSION_LONG_SECONDS")) * time.Second,
		},
		Auth: AuthConfig{
			SMSSender:      v.GetString("SMS_SENDER"),
			BaseURL:        v.GetString("AUTH_BASE_URL"),
			AuthSender:     v.GetString("AUTH_SENDER"),
			AlertSender:    v.GetString("ALERT_SENDER"),
			AuthMessage:    v.GetString("AUTH_MESSAGE"),
			AlertMessage:   v.GetString("ALERT_MESSAGE"),
			MaxOutstanding: v.GetInt("AUTH_MAX_OUTSTANDING"),
			TokenLength:    v.GetInt("AUTH_TOKEN_LENGTH"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// tokens only go to the log in development unless asked for explicitly
	if cfg.Auth.SMSSender == "" {
		cfg.Auth.SMSSender = "discard"
		if cfg.Server.Environment == "development" {
			cfg.Auth.SMSSender = "log"
		}
	}

	if cfg.Auth.AlertSender == "" {
		cfg.Auth.AlertSender = cfg.Auth.AuthSender
	}

	return cfg, nil
}
