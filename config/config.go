package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	LedgerBackendFile  = "file"
	LedgerBackendRedis = "redis"

	BlobBackendLocal = "local"
	BlobBackendMinio = "minio"
)

type AppConfig struct {
	Name string `env:"APP_NAME" env-default:"carevault"`
	Env  string `env:"APP_ENV" env-default:"development"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":5000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"5m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" env-default:"33554432"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	Issuer    string `env:"AUTH_JWT_ISSUER"`
	Audience  string `env:"AUTH_JWT_AUDIENCE"`
}

type LedgerConfig struct {
	Backend string `env:"LEDGER_BACKEND" env-default:"file"`
	Dir     string `env:"LEDGER_DIR" env-default:"."`
}

type RedisConfig struct {
	Host      string `env:"REDIS_HOST" env-default:"localhost"`
	Port      string `env:"REDIS_PORT" env-default:"6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" env-default:"carevault:"`
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

type BlobConfig struct {
	Backend        string `env:"BLOB_BACKEND" env-default:"local"`
	Dir            string `env:"BLOB_DIR" env-default:"uploads"`
	MinioEndpoint  string `env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" env-default:"minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" env-default:"minioadmin"`
	MinioBucket    string `env:"MINIO_BUCKET" env-default:"health-records"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`
}

type ShareConfig struct {
	TTL            time.Duration `env:"SHARE_TTL" env-default:"24h"`
	SweepInterval  time.Duration `env:"SHARE_SWEEP_INTERVAL" env-default:"1h"`
	RevokeOnDelete bool          `env:"SHARE_REVOKE_ON_DELETE" env-default:"false"`
	RateLimit      float64       `env:"SHARE_RATE_LIMIT" env-default:"5"`
	RateBurst      int           `env:"SHARE_RATE_BURST" env-default:"10"`
}

type AuditConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL"`
	Exchange    string `env:"AUDIT_EXCHANGE" env-default:"records.audit"`
	Queue       string `env:"AUDIT_QUEUE" env-default:"records.audit.queue"`
	Prefetch    int    `env:"AUDIT_PREFETCH" env-default:"8"`
}

func (a AuditConfig) Enabled() bool {
	return strings.TrimSpace(a.RabbitMQURL) != ""
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT"`
	User     string `env:"SMTP_USER"`
	Pass     string `env:"SMTP_PASS"`
	From     string `env:"SMTP_FROM"`
	TLS      bool   `env:"SMTP_TLS" env-default:"false"`
	StartTLS bool   `env:"SMTP_STARTTLS" env-default:"false"`
}

// Enabled reports whether enough settings are present to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.Port != "" && s.From != ""
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	Auth   AuthConfig
	Ledger LedgerConfig
	Redis  RedisConfig
	Blob   BlobConfig
	Share  ShareConfig
	Audit  AuditConfig
	SMTP   SMTPConfig
	Log    LogConfig
}

// Load reads an optional env file and then the process environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, cfg.validate()
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile, LedgerBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", LedgerBackendFile, LedgerBackendRedis, c.Ledger.Backend))
	}
	switch c.Blob.Backend {
	case BlobBackendLocal, BlobBackendMinio:
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobBackendLocal, BlobBackendMinio, c.Blob.Backend))
	}
	if c.Blob.Backend == BlobBackendMinio && c.Blob.MinioBucket == "" {
		errs = append(errs, errors.New("MINIO_BUCKET is required for the minio backend"))
	}
	if c.Share.TTL <= 0 {
		errs = append(errs, errors.New("SHARE_TTL must be positive"))
	}
	if c.Share.SweepInterval < 0 {
		errs = append(errs, errors.New("SHARE_SWEEP_INTERVAL must not be negative"))
	}
	if c.HTTP.PublicBaseURL != "" {
		u, err := url.Parse(c.HTTP.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL %q is not an absolute URL", c.HTTP.PublicBaseURL))
		}
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
