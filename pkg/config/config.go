package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Sessions  SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	CORS      CORSConfig
	Log       LogConfig
	Sentry    SentryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig carries the signing material for access and refresh tokens.
type JWTConfig struct {
	AccessSecret      string
	RefreshSecret     string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

// SessionConfig tunes refresh session rotation and cleanup.
type SessionConfig struct {
	MaxRotations  int
	SweepInterval time.Duration
}

// RateLimitConfig throttles credential endpoints per client IP.
type RateLimitConfig struct {
	LoginLimit  int
	LoginWindow time.Duration
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

type SentryConfig struct {
	DSN string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:      v.GetString("JWT_ACCESS_SECRET"),
		RefreshSecret:     v.GetString("JWT_REFRESH_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.Sessions = SessionConfig{
		MaxRotations:  v.GetInt("REFRESH_MAX_ROTATIONS"),
		SweepInterval: parseDuration(v.GetString("SESSION_SWEEP_INTERVAL"), time.Hour),
	}

	cfg.RateLimit = RateLimitConfig{
		LoginLimit:  v.GetInt("LOGIN_RATE_LIMIT"),
		LoginWindow: parseDuration(v.GetString("LOGIN_RATE_WINDOW"), time.Minute),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sentry = SentryConfig{DSN: v.GetString("SENTRY_DSN")}

	return cfg
}

// Validate rejects configurations that cannot sign tokens safely.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.AccessSecret) == "" {
		return errors.New("JWT_ACCESS_SECRET is required")
	}
	if c.Env == EnvProduction && c.JWT.AccessSecret == defaultAccessSecret {
		return errors.New("JWT_ACCESS_SECRET must be overridden in production")
	}
	if c.Sessions.MaxRotations <= 0 {
		return errors.New("REFRESH_MAX_ROTATIONS must be positive")
	}
	if c.JWT.Expiration <= 0 || c.JWT.RefreshExpiration <= 0 {
		return errors.New("token expirations must be positive")
	}
	return nil
}

const defaultAccessSecret = "dev_access_secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "animehub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ACCESS_SECRET", defaultAccessSecret)
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "animehub")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "1h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("REFRESH_MAX_ROTATIONS", 5)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")

	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW", "1m")

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_BUFFER_SIZE", 256)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SENTRY_DSN", "")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
