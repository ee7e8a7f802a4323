package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OAuth      OAuthConfig
	Cloudinary CloudinaryConfig
	Pi         PiConfig
	Payment    PaymentConfig
	RateLimit  RateLimitConfig
	Firebase   FirebaseConfig
	Jobs       JobsConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port            string        `default:"8080"`
	Env             string        `default:"development"`
	ReadTimeout     time.Duration `default:"10s"`
	WriteTimeout    time.Duration `default:"10s"`
	ShutdownTimeout time.Duration `default:"10s"`
}

type DatabaseConfig struct {
	DSN             string        `default:"voyago:voyago@tcp(localhost:3306)/voyago?charset=utf8mb4&parseTime=True&loc=Local"`
	MaxIdleConns    int           `default:"10"`
	MaxOpenConns    int           `default:"100"`
	ConnMaxLifetime time.Duration `default:"1h"`
}

type RedisConfig struct {
	Addr         string `default:"localhost:6379"`
	Password     string
	DB           int `default:"0"`
	PoolSize     int `default:"10"`
	MinIdleConns int `default:"2"`
}

type JWTConfig struct {
	AccessSecret  string        `default:"change-me-in-production"`
	RefreshSecret string        `default:"change-me-refresh"`
	AccessExpiry  time.Duration `default:"15m"`
	RefreshExpiry time.Duration `default:"168h"`
	Issuer        string        `default:"voyago"`
}

type OAuthConfig struct {
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`
}

type CloudinaryConfig struct {
	CloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	APISecret string `envconfig:"CLOUDINARY_API_SECRET"`
}

// PiConfig holds the Pi Network platform API credentials. APIKey is the
// server key sent as "Authorization: Key <key>" on every platform call;
// WebhookSecret signs inbound payment callbacks.
type PiConfig struct {
	BaseURL       string        `default:"https://api.minepi.com"`
	APIKey        string        `envconfig:"PI_API_KEY"`
	WebhookSecret string        `envconfig:"PI_WEBHOOK_SECRET"`
	Timeout       time.Duration `default:"30s"`
	Sandbox       bool          `default:"false"`
}

type PaymentConfig struct {
	// Pending payments older than ExpiryWindow are cancelled by the
	// background expiry task.
	ExpiryWindow time.Duration `default:"30m"`
}

type RateLimitConfig struct {
	Window time.Duration `default:"1h"`
	// FailOpenQuota applies when the backing store is unreachable.
	FailOpenQuota int  `default:"1000"`
	Disabled      bool `default:"false"`
}

type FirebaseConfig struct {
	ServiceAccountPath string `envconfig:"FIREBASE_SERVICE_ACCOUNT_PATH"`
}

type JobsConfig struct {
	Concurrency       int           `default:"10"`
	ReconcileInterval time.Duration `default:"5m"`
	MonitorAddr       string        `default:":8181"`
	MonitorEnabled    bool          `default:"false"`
}

// AdminConfig seeds the bootstrap admin account. Both fields must be set
// or the seed is skipped.
type AdminConfig struct {
	Email    string `envconfig:"ADMIN_EMAIL"`
	Password string `envconfig:"ADMIN_PASSWORD"`
}

// Load reads configuration from the environment with development
// defaults suitable for local runs.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("voyago", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
