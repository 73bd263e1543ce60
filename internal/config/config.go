package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aidar/tenant-purge/internal/domain"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig   // Настройки HTTP сервера администрирования
	Database DatabaseConfig // Настройки подключения к БД
	JWT      JWTConfig      // Настройки JWT авторизации операторов
	Lease    LeaseConfig    // Настройки аренды удаления
	SSH      SSHConfig      // Настройки удаленного уничтожения по SSH
	Billing  BillingConfig  // Настройки биллинг-провайдера

	// Teardown содержит команды уничтожения, загруженные из TeardownFile
	Teardown     TeardownConfig `ignored:"true"`
	TeardownFile string         `envconfig:"TEARDOWN_CONFIG" default:""`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port string `envconfig:"SERVER_PORT" default:"8080"`
	Host string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"tenant_purge"`
	Password string `envconfig:"DB_PASSWORD" default:"tenant_purge_pass"`
	Name     string `envconfig:"DB_NAME" default:"tenant_purge"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"2"`
}

// JWTConfig содержит настройки JWT авторизации
type JWTConfig struct {
	Secret          string `envconfig:"JWT_SECRET" default:""`
	ExpirationHours int    `envconfig:"JWT_EXPIRATION_HOURS" default:"8"`
}

// LeaseConfig содержит настройки аренды
type LeaseConfig struct {
	TTL time.Duration `envconfig:"LEASE_TTL" default:"30m"`
}

// SSHConfig содержит настройки SSH агента уничтожения
type SSHConfig struct {
	User                string        `envconfig:"SSH_USER" default:"root"`
	Port                string        `envconfig:"SSH_PORT" default:"22"`
	KeyPath             string        `envconfig:"SSH_KEY_PATH" default:""`
	KeyPassphrase       string        `envconfig:"SSH_KEY_PASSPHRASE" default:""`
	KnownHostsPath      string        `envconfig:"SSH_KNOWN_HOSTS" default:""`
	InsecureSkipHostKey bool          `envconfig:"SSH_INSECURE_SKIP_HOST_KEY" default:"false"`
	Timeout             time.Duration `envconfig:"SSH_TIMEOUT" default:"30s"`
}

// BillingConfig содержит настройки биллинг-провайдера
type BillingConfig struct {
	APIKey string `envconfig:"STRIPE_API_KEY" default:""`
	APIURL string `envconfig:"STRIPE_API_URL" default:""`
}

// GetExpiration возвращает срок действия токена как time.Duration
func (j JWTConfig) GetExpiration() time.Duration {
	return time.Duration(j.ExpirationHours) * time.Hour
}

// Validate проверяет, что секрет подписи задан. Нужен только для API:
// CLI удаляет без токенов.
func (j JWTConfig) Validate() error {
	if j.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required to serve the admin API: %w", domain.ErrSigningKeyMissing)
	}
	return nil
}

// DSN возвращает строку подключения к PostgreSQL
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Load читает конфигурацию из переменных окружения и файла команд уничтожения
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	teardown, err := LoadTeardown(cfg.TeardownFile)
	if err != nil {
		return nil, err
	}
	cfg.Teardown = teardown

	return &cfg, nil
}
