package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"json"`

	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"`
	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
	DBDSN                  string `env:"DB_DSN"` // postgres / sqlite

	AuthMode          string `env:"AUTH_MODE" envDefault:"firebase"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	JWTSecret         string `env:"JWT_SECRET"`

	RedisURL string `env:"REDIS_URL"`

	DealExpiry                 time.Duration `env:"SAFE_DEAL_EXPIRY" envDefault:"168h"`
	SweepInterval              time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize             int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	RejectDuplicateActiveDeals bool          `env:"REJECT_DUPLICATE_ACTIVE_DEALS" envDefault:"true"`
	MaxMessageLength           int           `env:"MAX_MESSAGE_LENGTH" envDefault:"5000"`
	MessageRateLimit           float64       `env:"MESSAGE_RATE_LIMIT" envDefault:"5"`
	ReleaseRetryMaxElapsed     time.Duration `env:"RELEASE_RETRY_MAX_ELAPSED" envDefault:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.DBUser == "" || c.DBName == "" || (c.DBHost == "" && c.InstanceConnectionName == "") {
			return fmt.Errorf("mysql requires DB_USER, DB_NAME and DB_HOST or INSTANCE_CONNECTION_NAME")
		}
	case "postgres", "sqlite":
		if c.DBDSN == "" {
			return fmt.Errorf("%s requires DB_DSN", c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.AuthMode {
	case "firebase":
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is not set")
		}
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.AuthMode)
	}
	if c.DealExpiry <= 0 {
		return fmt.Errorf("SAFE_DEAL_EXPIRY must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 100
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 5000
	}
	return nil
}
