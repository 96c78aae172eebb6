package config

import (
	"errors"
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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Rollbar       RollbarConfig
	Email         EmailConfig
	Notifications NotificationConfig
	Scheduling    SchedulingConfig
	Credits       CreditConfig
	Contracts     ContractConfig
	Vacations     VacationConfig
	Cache         CacheConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	RunMigrations bool
	// ConnectTimeout bounds both dialing and the startup ping.
	ConnectTimeout  time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// LockTimeout caps how long a write waits on a row or advisory lock.
	LockTimeout time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	// DialTimeout also bounds the startup ping.
	DialTimeout time.Duration
	// OpTimeout is the read and write deadline of every command.
	OpTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RollbarConfig forwards error-level log entries when a token is present.
type RollbarConfig struct {
	Token       string
	CodeVersion string
}

// EmailConfig selects the outbound mail backend.
type EmailConfig struct {
	Provider  string
	APIKey    string
	FromName  string
	FromEmail string
}

// NotificationConfig sizes the fire-and-forget notification queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// SchedulingConfig carries the business constants for generation and rescheduling.
type SchedulingConfig struct {
	Timezone        string
	ClassDuration   time.Duration
	GenerationWeeks int
	LookaheadWeeks  int
	MinLeadTime     time.Duration
	MonthlyQuota    int
}

// CreditConfig governs automatically granted credits.
type CreditConfig struct {
	MakeupCreditTTL time.Duration
}

// ContractConfig governs the validity window of signed contracts.
type ContractConfig struct {
	Validity            time.Duration
	NearExpiryWindow    time.Duration
	MinTermBeforeCancel time.Duration
}

// VacationConfig holds teacher vacation business rules.
type VacationConfig struct {
	MinAdvance  time.Duration
	MaxDuration time.Duration
}

// CacheConfig toggles read caching of teacher availability.
type CacheConfig struct {
	AvailabilityTTL time.Duration
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
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		RunMigrations: v.GetBool("DB_RUN_MIGRATIONS"),

		ConnectTimeout:  parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnMaxIdleTime: parseDuration(v.GetString("DB_CONN_MAX_IDLE_TIME"), 30*time.Minute),
		LockTimeout:     parseDuration(v.GetString("DB_LOCK_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),

		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 2*time.Second),
		OpTimeout:   parseDuration(v.GetString("REDIS_OP_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rollbar = RollbarConfig{
		Token:       v.GetString("ROLLBAR_TOKEN"),
		CodeVersion: v.GetString("BUILD_VERSION"),
	}

	cfg.Email = EmailConfig{
		Provider:  strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		APIKey:    v.GetString("SENDGRID_API_KEY"),
		FromName:  v.GetString("EMAIL_FROM_NAME"),
		FromEmail: v.GetString("EMAIL_FROM_ADDRESS"),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Scheduling = SchedulingConfig{
		Timezone:        v.GetString("SCHEDULE_TIMEZONE"),
		ClassDuration:   parseDuration(v.GetString("CLASS_DURATION"), time.Hour),
		GenerationWeeks: v.GetInt("GENERATION_WEEKS"),
		LookaheadWeeks:  v.GetInt("RESCHEDULE_LOOKAHEAD_WEEKS"),
		MinLeadTime:     parseDuration(v.GetString("RESCHEDULE_MIN_LEAD_TIME"), 24*time.Hour),
		MonthlyQuota:    v.GetInt("RESCHEDULE_MONTHLY_QUOTA"),
	}

	cfg.Credits = CreditConfig{
		MakeupCreditTTL: parseDuration(v.GetString("MAKEUP_CREDIT_TTL"), 60*24*time.Hour),
	}

	cfg.Contracts = ContractConfig{
		Validity:            parseDuration(v.GetString("CONTRACT_VALIDITY"), 365*24*time.Hour),
		NearExpiryWindow:    parseDuration(v.GetString("CONTRACT_NEAR_EXPIRY_WINDOW"), 30*24*time.Hour),
		MinTermBeforeCancel: parseDuration(v.GetString("CONTRACT_MIN_TERM_BEFORE_CANCEL"), 90*24*time.Hour),
	}

	cfg.Vacations = VacationConfig{
		MinAdvance:  parseDuration(v.GetString("VACATION_MIN_ADVANCE"), 40*24*time.Hour),
		MaxDuration: parseDuration(v.GetString("VACATION_MAX_DURATION"), 14*24*time.Hour),
	}

	cfg.Cache = CacheConfig{
		AvailabilityTTL: parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 10*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lesson_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_RUN_MIGRATIONS", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("BUILD_VERSION", "dev")

	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_NAME", "Lesson Engine")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@localhost")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("SCHEDULE_TIMEZONE", "UTC")
	v.SetDefault("CLASS_DURATION", "1h")
	v.SetDefault("GENERATION_WEEKS", 4)
	v.SetDefault("RESCHEDULE_LOOKAHEAD_WEEKS", 2)
	v.SetDefault("RESCHEDULE_MIN_LEAD_TIME", "24h")
	v.SetDefault("RESCHEDULE_MONTHLY_QUOTA", 2)

	v.SetDefault("MAKEUP_CREDIT_TTL", "1440h")

	v.SetDefault("CONTRACT_VALIDITY", "8760h")
	v.SetDefault("CONTRACT_NEAR_EXPIRY_WINDOW", "720h")
	v.SetDefault("CONTRACT_MIN_TERM_BEFORE_CANCEL", "2160h")

	v.SetDefault("VACATION_MIN_ADVANCE", "960h")
	v.SetDefault("VACATION_MAX_DURATION", "336h")

	v.SetDefault("AVAILABILITY_CACHE_TTL", "10m")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
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
