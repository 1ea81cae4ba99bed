package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// devSigningKey is used by the dev store when ENV=development and no key is
// configured.
const devSigningKey = "aimed-development-signing-key"

type Config struct {
	// Client
	APIURL         string        `mapstructure:"API_URL"`
	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CredentialFile string        `mapstructure:"CREDENTIAL_FILE"`
	SummarizerURL  string        `mapstructure:"SUMMARIZER_URL"`
	SummarizerKey  string        `mapstructure:"SUMMARIZER_API_KEY"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	// Dev store
	DevstorePort       string  `mapstructure:"DEVSTORE_PORT"`
	DevstoreSigningKey string  `mapstructure:"DEVSTORE_SIGNING_KEY"`
	DatabaseURL        string  `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32   `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32   `mapstructure:"DB_MIN_CONNS"`
	RateLimitRPS       float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("API_URL", "http://localhost:4000")
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("CREDENTIAL_FILE", defaultCredentialFile())
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEVSTORE_PORT", "4000")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"API_URL", "POLL_INTERVAL", "REQUEST_TIMEOUT", "CREDENTIAL_FILE",
		"SUMMARIZER_URL", "SUMMARIZER_API_KEY", "ENV", "LOG_LEVEL",
		"DEVSTORE_PORT", "DEVSTORE_SIGNING_KEY", "DATABASE_URL",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".aimed", "credentials.json")
	}
	return filepath.Join(home, ".aimed", "credentials.json")
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when running with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKey returns the dev store's token signing key, falling back to a
// fixed key in development.
func (c *Config) SigningKey() []byte {
	if c.DevstoreSigningKey != "" {
		return []byte(c.DevstoreSigningKey)
	}
	if c.IsDev() {
		log.Println("WARNING: DEVSTORE_SIGNING_KEY is unset, using the built-in development key.")
		return []byte(devSigningKey)
	}
	return nil
}

// Validate checks that the configuration is usable. A signing key is only
// demanded in production.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("API_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.CredentialFile == "" {
		return fmt.Errorf("CREDENTIAL_FILE is required")
	}
	if c.IsProduction() && c.DevstoreSigningKey == "" {
		return fmt.Errorf("DEVSTORE_SIGNING_KEY is required in production")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
