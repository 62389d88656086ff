package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Locks    LockConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	Database      string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
}

// DSN builds a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers       []string
	ListingsTopic string
	OrdersTopic   string
	Enabled       bool
	MockMode      bool
}

type StripeConfig struct {
	SecretKey string
	Currency  string
	// ReturnURL is the orders base URL the gateway redirects the buyer to
	// after checkout. The order id and return leg are appended to it.
	ReturnURL string
	Timeout   time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
	AdminAddress string
}

type AuthConfig struct {
	OIDCIssuer string
	// Disabled drops the verification middleware. Local development only.
	Disabled bool
}

type LockConfig struct {
	// TTL bounds how long a checkout may hold claim locks on listings
	// before they expire on their own.
	TTL time.Duration
}

// Load reads .env (when present) and assembles the configuration from the
// environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "marketplace"),
			Password:      getEnv("DB_PASSWORD", "marketplace"),
			Database:      getEnv("DB_NAME", "marketplace"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   getEnvDuration("DB_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ListingsTopic: getEnv("KAFKA_TOPIC_LISTINGS", "listing-events"),
			OrdersTopic:   getEnv("KAFKA_TOPIC_ORDERS", "order-events"),
			Enabled:       getEnvBool("KAFKA_ENABLED", true),
			MockMode:      getEnvBool("KAFKA_MOCK_MODE", false),
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:  getEnv("STRIPE_CURRENCY", "gbp"),
			ReturnURL: getEnv("STRIPE_RETURN_URL", "http://localhost:8080/api/v1/orders"),
			Timeout:   getEnvDuration("STRIPE_TIMEOUT", 30*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("EMAIL_FROM", "no-reply@marketplace.local"),
			AdminAddress: getEnv("EMAIL_ADMIN", "admin@marketplace.local"),
		},
		Locks: LockConfig{
			TTL: getEnvDuration("LISTING_CLAIM_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", "http://localhost:8081/realms/marketplace"),
			Disabled:   getEnvBool("AUTH_DISABLED", false),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
