package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию движка историй.
type Config struct {
	// Настройки сервера
	Port        string        `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string        `envconfig:"LOG_ENCODING" default:"json"`
	CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ReadTimeout time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int32         `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis (кеш графов историй)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	GraphCacheTTL time.Duration `envconfig:"GRAPH_CACHE_TTL" default:"1h"`

	// Настройки RabbitMQ (поступления от платежной подсистемы)
	RabbitMQURL   string `envconfig:"RABBITMQ_URL" required:"true"`
	TopUpQueue    string `envconfig:"BALANCE_TOPUP_QUEUE" default:"balance_topups"`
	ConsumerName  string `envconfig:"TOPUP_CONSUMER_NAME" default:"story-engine-topups"`
	PrefetchCount int    `envconfig:"TOPUP_PREFETCH_COUNT" default:"8"`

	// Секреты JWT (пользовательский и межсервисный), БЕЗ envconfig тегов
	JWTSecret          string
	InterServiceSecret string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации story-engine: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.JWTSecret, loadErr = ReadSecret("jwt_secret")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.InterServiceSecret, loadErr = ReadSecret("interservice_secret")
	if loadErr != nil {
		return nil, loadErr
	}

	return &cfg, nil
}
