package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Port != 8002 {
		t.Fatalf("Port = %d, want 8002", cfg.Port)
	}
	if cfg.Store.Driver != StorePostgres {
		t.Fatalf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.AccessTokenTTL() != 24*time.Hour {
		t.Fatalf("AccessTokenTTL = %v, want 24h", cfg.AccessTokenTTL())
	}
	if cfg.VerificationCodeTTL() != 15*time.Minute {
		t.Fatalf("VerificationCodeTTL = %v, want 15m", cfg.VerificationCodeTTL())
	}
	if cfg.PasswordResetTTL() != time.Hour {
		t.Fatalf("PasswordResetTTL = %v, want 1h", cfg.PasswordResetTTL())
	}
	if cfg.Worker.PollInterval != 500*time.Millisecond {
		t.Fatalf("Worker.PollInterval = %v, want 500ms", cfg.Worker.PollInterval)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Fatalf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Store.Driver != StoreMongo {
		t.Fatalf("Store.Driver = %q, want mongo", cfg.Store.Driver)
	}
	if cfg.AccessTokenTTL() != 2*time.Hour {
		t.Fatalf("AccessTokenTTL = %v, want 2h", cfg.AccessTokenTTL())
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want 2 entries", cfg.HTTP.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Env:   "dev",
			Store: StoreConfig{Driver: StoreMemory},
			Email: EmailConfig{Transport: TransportLog},
			JWT:   JWTConfig{Secret: "s3cret", ExpirationHours: 24},
			Codes: CodesConfig{VerificationCodeExpirationMinutes: 15, PasswordResetExpirationHours: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "STORE_DRIVER"},
		{name: "unknown transport", mutate: func(c *Config) { c.Email.Transport = "pigeon" }, wantErr: "EMAIL_TRANSPORT"},
		{name: "default secret in prod", mutate: func(c *Config) { c.Env = "prod"; c.JWT.Secret = defaultJWTSecret }, wantErr: "changed in prod"},
		{name: "default docs password in prod", mutate: func(c *Config) { c.Env = "prod"; c.Docs = DocsConfig{Username: "admin", Password: "admin"} }, wantErr: "DOCS_PASSWORD"},
		{name: "custom docs password in prod", mutate: func(c *Config) { c.Env = "prod"; c.Docs = DocsConfig{Username: "ops", Password: "long-random-value"} }},
		{name: "zero ttl", mutate: func(c *Config) { c.JWT.ExpirationHours = 0 }, wantErr: "JWT_EXPIRATION_HOURS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMongoURI(t *testing.T) {
	c := MongoConfig{Host: "db", Port: 27017, AuthSource: "admin"}
	if got := c.URI(); got != "mongodb://db:27017/" {
		t.Fatalf("URI without credentials = %q", got)
	}

	c.Username = "u"
	c.Password = "p@ss"
	if got := c.URI(); got != "mongodb://u:p%40ss@db:27017/?authSource=admin" {
		t.Fatalf("URI with credentials = %q", got)
	}
}

func TestDBURL(t *testing.T) {
	c := DBConfig{Host: "127.0.0.1", Port: "5432", User: "sevico", Password: "pw", Name: "sevico", SSLMode: "disable"}

	if got := c.URL(); got != "postgres://sevico:pw@127.0.0.1:5432/sevico?sslmode=disable" {
		t.Fatalf("URL = %q", got)
	}
}
