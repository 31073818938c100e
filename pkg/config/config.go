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

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env        string
	Port       int
	APIPrefix  string
	AppBaseURL string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Analytics  AnalyticsConfig
	Accounting AccountingConfig
	Reports    ReportsConfig
	Storage    StorageConfig
	NATS       NATSConfig
	Mail       MailConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	MigrationsDir  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
	Audience          []string
	CookieName        string
	CookieSecure      bool
	ResetExpiration   time.Duration
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AnalyticsConfig governs cache behaviour for analytics endpoints.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// AccountingConfig holds ledger defaults.
type AccountingConfig struct {
	DefaultCurrency string
	SummaryCacheTTL time.Duration
	// SessionIncome posts an income row for every group session recorded
	// through bulk attendance.
	SessionIncome bool
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	Enabled           bool
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// StorageConfig selects where generated exports are kept.
type StorageConfig struct {
	Driver     string
	LocalDir   string
	S3Bucket   string
	S3Region   string
	S3Prefix   string
	S3Endpoint string
}

// NATSConfig enables domain event publishing when URL is set.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	ConnectTimeout time.Duration
}

// MailConfig configures outgoing email.
type MailConfig struct {
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	SubjectPrefix  string
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory filling in anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	r := reader{v}
	return &Config{
		Env:        v.GetString("ENV"),
		Port:       v.GetInt("PORT"),
		APIPrefix:  v.GetString("API_PREFIX"),
		AppBaseURL: strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		Database:   r.database(),
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT:  r.jwt(),
		CORS: CORSConfig{AllowedOrigins: r.list("ALLOWED_ORIGINS")},
		Log:  LogConfig{Level: v.GetString("LOG_LEVEL"), Format: v.GetString("LOG_FORMAT")},
		Analytics: AnalyticsConfig{
			Enabled:  v.GetBool("ENABLE_ANALYTICS"),
			CacheTTL: r.duration("ANALYTICS_CACHE_TTL", 10*time.Minute),
		},
		Accounting: AccountingConfig{
			DefaultCurrency: strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
			SummaryCacheTTL: r.duration("ACCOUNTING_SUMMARY_CACHE_TTL", 2*time.Minute),
			SessionIncome:   v.GetBool("ACCOUNTING_SESSION_INCOME"),
		},
		Reports: ReportsConfig{
			Enabled:           v.GetBool("ENABLE_REPORTS"),
			SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
			SignedURLTTL:      r.duration("REPORTS_SIGNED_URL_TTL", 24*time.Hour),
			CleanupInterval:   r.duration("REPORTS_CLEANUP_INTERVAL", time.Hour),
			WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
			WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
			LocalDir:   v.GetString("REPORTS_STORAGE_DIR"),
			S3Bucket:   v.GetString("S3_BUCKET"),
			S3Region:   v.GetString("S3_REGION"),
			S3Prefix:   v.GetString("S3_PREFIX"),
			S3Endpoint: v.GetString("S3_ENDPOINT"),
		},
		NATS: NATSConfig{
			URL:            v.GetString("NATS_URL"),
			SubjectPrefix:  v.GetString("NATS_SUBJECT_PREFIX"),
			ConnectTimeout: r.duration("NATS_CONNECT_TIMEOUT", 15*time.Second),
		},
		Mail: MailConfig{
			SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromName:       v.GetString("MAIL_FROM_NAME"),
			FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
			SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
		},
	}, nil
}

var defaults = map[string]interface{}{
	"ENV":          EnvDevelopment,
	"PORT":         8080,
	"API_PREFIX":   "/api/v1",
	"APP_BASE_URL": "http://localhost:4200",

	"DB_HOST":            "localhost",
	"DB_PORT":            5432,
	"DB_USER":            "postgres",
	"DB_PASSWORD":        "postgres",
	"DB_NAME":            "school_lms",
	"DB_SSL_MODE":        "disable",
	"DB_MAX_OPEN_CONNS":  10,
	"DB_MAX_IDLE_CONNS":  5,
	"DB_CONNECT_TIMEOUT": "30s",
	"DB_MIGRATIONS_DIR":  "migrations",

	"REDIS_HOST": "",
	"REDIS_PORT": 6379,
	"REDIS_DB":   0,

	"JWT_SECRET":                "dev_secret",
	"JWT_EXPIRATION":            "24h",
	"REFRESH_TOKEN_EXPIRATION":  "168h",
	"JWT_ISSUER":                "school-lms-api",
	"JWT_AUDIENCE":              "school-lms",
	"AUTH_COOKIE_NAME":          "token",
	"AUTH_COOKIE_SECURE":        false,
	"PASSWORD_RESET_EXPIRATION": "1h",
	"AUTH_SINGLE_SESSION":       false,

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "json",

	"ENABLE_ANALYTICS":             true,
	"ANALYTICS_CACHE_TTL":          "10m",
	"DEFAULT_CURRENCY":             "EGP",
	"ACCOUNTING_SUMMARY_CACHE_TTL": "2m",
	"ACCOUNTING_SESSION_INCOME":    false,

	"ENABLE_REPORTS":             true,
	"REPORTS_SIGNED_URL_SECRET":  "dev_reports_secret",
	"REPORTS_SIGNED_URL_TTL":     "24h",
	"REPORTS_CLEANUP_INTERVAL":   "1h",
	"REPORTS_WORKER_CONCURRENCY": 2,
	"REPORTS_WORKER_RETRIES":     3,

	"STORAGE_DRIVER":      StorageDriverLocal,
	"REPORTS_STORAGE_DIR": "./exports",
	"S3_REGION":           "us-east-1",
	"S3_PREFIX":           "exports",

	"NATS_SUBJECT_PREFIX":  "lms",
	"NATS_CONNECT_TIMEOUT": "15s",

	"MAIL_FROM_NAME":      "School LMS",
	"MAIL_FROM_ADDRESS":   "no-reply@school-lms.local",
	"MAIL_SUBJECT_PREFIX": "[School LMS] ",
}

type reader struct{ v *viper.Viper }

func (r reader) database() DatabaseConfig {
	return DatabaseConfig{
		Host:           r.v.GetString("DB_HOST"),
		Port:           r.v.GetInt("DB_PORT"),
		User:           r.v.GetString("DB_USER"),
		Password:       r.v.GetString("DB_PASSWORD"),
		Name:           r.v.GetString("DB_NAME"),
		SSLMode:        r.v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   r.v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   r.v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnectTimeout: r.duration("DB_CONNECT_TIMEOUT", 30*time.Second),
		MigrationsDir:  r.v.GetString("DB_MIGRATIONS_DIR"),
	}
}

func (r reader) jwt() JWTConfig {
	return JWTConfig{
		Secret:            r.v.GetString("JWT_SECRET"),
		Expiration:        r.duration("JWT_EXPIRATION", 24*time.Hour),
		RefreshExpiration: r.duration("REFRESH_TOKEN_EXPIRATION", 7*24*time.Hour),
		Issuer:            r.v.GetString("JWT_ISSUER"),
		Audience:          r.list("JWT_AUDIENCE"),
		CookieName:        r.v.GetString("AUTH_COOKIE_NAME"),
		CookieSecure:      r.v.GetBool("AUTH_COOKIE_SECURE"),
		ResetExpiration:   r.duration("PASSWORD_RESET_EXPIRATION", time.Hour),
		SingleSession:     r.v.GetBool("AUTH_SINGLE_SESSION"),
	}
}

// duration returns fallback when key is unset or not a Go duration string.
func (r reader) duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(r.v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// list splits a comma separated value, dropping blank entries.
func (r reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.v.GetString(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
