package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию reading-platform
type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// Настройки сервера
	Port            string        `envconfig:"SERVER_PORT" default:"8000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding     string        `envconfig:"LOG_ENCODING" default:"json"`
	CORSOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"reading_platform"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis и кэша
	RedisAddr               string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword           string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB                 int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL                time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	RecommendationsCacheTTL time.Duration `envconfig:"RECOMMENDATIONS_CACHE_TTL" default:"30m"`
	LocalCacheSize          int           `envconfig:"LOCAL_CACHE_SIZE" default:"1024"`

	// Настройки AI
	AIClientType       string        `envconfig:"AI_CLIENT_TYPE" default:"ollama"`
	OllamaBaseURL      string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel        string        `envconfig:"OLLAMA_MODEL" default:"llama3.2"`
	OpenAIBaseURL      string        `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIModel        string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	AITemperature      float64       `envconfig:"AI_TEMPERATURE" default:"0.7"`
	AIMaxTokens        int           `envconfig:"AI_MAX_TOKENS" default:"4000"`
	AITimeout          time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxAttempts      uint          `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIStructuredOutput bool          `envconfig:"AI_STRUCTURED_OUTPUT" default:"true"`
	PromptTokenBudget  int           `envconfig:"PROMPT_TOKEN_BUDGET" default:"3000"`
	// Секретное поле БЕЗ envconfig тега
	OpenAIAPIKey string

	// Безопасность контента и генерация
	ModerationEnabled      bool    `envconfig:"MODERATION_ENABLED" default:"true"`
	ContentSafetyThreshold float64 `envconfig:"CONTENT_SAFETY_THRESHOLD" default:"0.5"`
	MaxRegenerations       int     `envconfig:"MAX_REGENERATIONS" default:"2"`
	DefaultTotalChapters   int     `envconfig:"DEFAULT_TOTAL_CHAPTERS" default:"3"`

	// JWT
	JWTAccessTokenTTL time.Duration `envconfig:"JWT_ACCESS_TOKEN_TTL" default:"24h"`
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string

	// RabbitMQ. Пустой URL - события обрабатываются в процессе.
	RabbitMQURL     string        `envconfig:"RABBITMQ_URL" default:""`
	EventsExchange  string        `envconfig:"EVENTS_EXCHANGE" default:"story_events"`
	AnalyticsQueue  string        `envconfig:"ANALYTICS_QUEUE" default:"reading_analytics"`
	StreamHeartbeat time.Duration `envconfig:"STREAM_HEARTBEAT" default:"15s"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// IsProduction сообщает, запущен ли сервис в продакшен окружении.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	var errs []error
	if c.ContentSafetyThreshold < 0 || c.ContentSafetyThreshold > 1 {
		errs = append(errs, fmt.Errorf("CONTENT_SAFETY_THRESHOLD must be within [0, 1], got %v", c.ContentSafetyThreshold))
	}
	if c.MaxRegenerations < 0 {
		errs = append(errs, fmt.Errorf("MAX_REGENERATIONS must not be negative, got %d", c.MaxRegenerations))
	}
	if c.DefaultTotalChapters < 1 {
		errs = append(errs, fmt.Errorf("DEFAULT_TOTAL_CHAPTERS must be positive, got %d", c.DefaultTotalChapters))
	}
	if c.AIMaxAttempts == 0 {
		errs = append(errs, errors.New("AI_MAX_ATTEMPTS must be at least 1"))
	}
	switch c.AIClientType {
	case "ollama":
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when AI_CLIENT_TYPE=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AI_CLIENT_TYPE %q", c.AIClientType))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load reading-platform config: %w", err)
	}

	var loadErr error
	if cfg.DBPassword, loadErr = ReadSecret("DB_PASSWORD", "db_password", true); loadErr != nil {
		return nil, loadErr
	}
	if cfg.JWTSecret, loadErr = ReadSecret("JWT_SECRET", "jwt_secret", true); loadErr != nil {
		return nil, loadErr
	}
	if cfg.OpenAIAPIKey, loadErr = ReadSecret("OPENAI_API_KEY", "openai_api_key", false); loadErr != nil {
		return nil, loadErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("Reading platform config loaded:")
	log.Printf("  Env: %s, Port: %s, LogLevel: %s", cfg.Env, cfg.Port, cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis: %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	log.Printf("  AI: %s, structured output: %v, timeout: %v", cfg.AIClientType, cfg.AIStructuredOutput, cfg.AITimeout)
	log.Printf("  Safety threshold: %.2f, max regenerations: %d", cfg.ContentSafetyThreshold, cfg.MaxRegenerations)
	if cfg.RabbitMQURL == "" {
		log.Println("  RabbitMQ: disabled, events handled in process")
	}

	return &cfg, nil
}
