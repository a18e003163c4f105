package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-jwt-secret-key-change-in-production"

const defaultDocsPassword = "admin"

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	TransportSMTP = "smtp"
	TransportSES  = "ses"
	TransportLog  = "log"
)

// Config is built once at process start and handed to constructors by value.
type Config struct {
	Env         string `env:"APP_ENV" env-default:"dev"`
	Port        int    `env:"PORT" env-default:"8002"`
	ServiceName string `env:"SERVICE_NAME" env-default:"Sevico API"`
	Version     string `env:"SERVICE_VERSION" env-default:"1.0.0"`

	Store   StoreConfig
	DB      DBConfig
	Mongo   MongoConfig
	JWT     JWTConfig
	Codes   CodesConfig
	Email   EmailConfig
	Redis   RedisConfig
	Docs    DocsConfig
	Worker  WorkerConfig
	HTTP    HTTPConfig
	Tracing TracingConfig
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" env-default:"postgres"`
}

type DBConfig struct {
	Host        string `env:"DB_HOST" env-default:"127.0.0.1"`
	Port        string `env:"DB_PORT" env-default:"5432"`
	User        string `env:"DB_USER" env-default:"sevico"`
	Password    string `env:"DB_PASSWORD" env-default:"sevico"`
	Name        string `env:"DB_NAME" env-default:"sevico"`
	SSLMode     string `env:"DB_SSLMODE" env-default:"disable"`
	MaxConns    int32  `env:"DB_MAX_CONNS" env-default:"5"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" env-default:"false"`
}

type MongoConfig struct {
	Host       string `env:"MONGODB_HOST" env-default:"localhost"`
	Port       int    `env:"MONGODB_PORT" env-default:"27017"`
	Username   string `env:"MONGODB_USERNAME"`
	Password   string `env:"MONGODB_PASSWORD"`
	DBName     string `env:"MONGODB_DB_NAME" env-default:"sevico_db"`
	AuthSource string `env:"MONGODB_AUTH_SOURCE" env-default:"admin"`
}

type JWTConfig struct {
	Secret          string `env:"JWT_SECRET_KEY" env-default:"your-jwt-secret-key-change-in-production"`
	ExpirationHours int    `env:"JWT_EXPIRATION_HOURS" env-default:"24"`
}

type CodesConfig struct {
	VerificationCodeExpirationMinutes int `env:"VERIFICATION_CODE_EXPIRATION_MINUTES" env-default:"15"`
	PasswordResetExpirationHours      int `env:"PASSWORD_RESET_EXPIRATION_HOURS" env-default:"1"`
}

type EmailConfig struct {
	Transport        string        `env:"EMAIL_TRANSPORT" env-default:"log"`
	SMTPHost         string        `env:"SMTP_HOST" env-default:"email-smtp.us-east-1.amazonaws.com"`
	SMTPPort         int           `env:"SMTP_PORT" env-default:"587"`
	SMTPUsername     string        `env:"SMTP_USERNAME"`
	SMTPPassword     string        `env:"SMTP_PASSWORD"`
	SMTPTLS          bool          `env:"SMTP_TLS" env-default:"true"`
	SenderEmail      string        `env:"SENDER_EMAIL" env-default:"no-reply@example.com"`
	SenderName       string        `env:"SENDER_NAME" env-default:"Sevico"`
	SESConfigSet     string        `env:"AWS_SES_CONFIGURATION_SET"`
	AWSRegion        string        `env:"AWS_REGION" env-default:"us-east-1"`
	SendTimeout      time.Duration `env:"EMAIL_SEND_TIMEOUT" env-default:"5s"`
	FailureThreshold int           `env:"EMAIL_BREAKER_FAILURES" env-default:"3"`
	BreakerCooldown  time.Duration `env:"EMAIL_BREAKER_COOLDOWN" env-default:"15s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type DocsConfig struct {
	Username string `env:"DOCS_USERNAME" env-default:"admin"`
	Password string `env:"DOCS_PASSWORD" env-default:"admin"`
}

type WorkerConfig struct {
	Concurrency   int           `env:"WORKER_CONCURRENCY" env-default:"4"`
	PollInterval  time.Duration `env:"WORKER_POLL_INTERVAL" env-default:"500ms"`
	MaxAttempts   int           `env:"WORKER_MAX_ATTEMPTS" env-default:"8"`
	HealthPort    int           `env:"WORKER_HEALTH_PORT" env-default:"8081"`
	ShutdownGrace time.Duration `env:"WORKER_SHUTDOWN_GRACE" env-default:"10s"`
}

type HTTPConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	MaxBodyBytes   int64    `env:"HTTP_MAX_BODY_BYTES" env-default:"1048576"`
}

type TracingConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Email.Transport {
	case TransportSMTP, TransportSES, TransportLog:
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_TRANSPORT %q", c.Email.Transport))
	}

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY must not be empty"))
	}

	if c.Env == "prod" && c.JWT.Secret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET_KEY must be changed in prod"))
	}

	if c.Env == "prod" && (c.Docs.Password == "" || c.Docs.Password == defaultDocsPassword) {
		errs = append(errs, errors.New("DOCS_PASSWORD must be set to a non-default value in prod"))
	}

	if c.JWT.ExpirationHours <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_HOURS must be positive"))
	}

	if c.Codes.VerificationCodeExpirationMinutes <= 0 {
		errs = append(errs, errors.New("VERIFICATION_CODE_EXPIRATION_MINUTES must be positive"))
	}

	if c.Codes.PasswordResetExpirationHours <= 0 {
		errs = append(errs, errors.New("PASSWORD_RESET_EXPIRATION_HOURS must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.ExpirationHours) * time.Hour
}

func (c Config) VerificationCodeTTL() time.Duration {
	return time.Duration(c.Codes.VerificationCodeExpirationMinutes) * time.Minute
}

func (c Config) PasswordResetTTL() time.Duration {
	return time.Duration(c.Codes.PasswordResetExpirationHours) * time.Hour
}

func (c DBConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// URI builds the connection string, with credentials only when both are set.
func (c MongoConfig) URI() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/",
	}

	if c.Username != "" && c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
		u.RawQuery = "authSource=" + url.QueryEscape(c.AuthSource)
	}

	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
