package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	S3       S3Config
	LLM      LLMConfig
	Ollama   OllamaConfig
	OpenAI   OpenAIConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadSize   int64         `env:"SERVER_MAX_UPLOAD_SIZE" envDefault:"67108864"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"pagesolver"`
	Password        string        `env:"DB_PASSWORD" envDefault:"secret"`
	Name            string        `env:"DB_NAME" envDefault:"pagesolver"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"S3_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"S3_SECRET_KEY" envDefault:"minioadmin"`
	Bucket    string `env:"S3_BUCKET" envDefault:"documents"`
	UseSSL    bool   `env:"S3_USE_SSL" envDefault:"false"`
}

// LLMConfig выбор провайдера удалённых преобразований
type LLMConfig struct {
	// ollama или openai
	Provider string `env:"LLM_PROVIDER" envDefault:"ollama"`
}

type OllamaConfig struct {
	Host           string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	Model          string        `env:"OLLAMA_MODEL" envDefault:"qwen3-vl"`
	RequestTimeout time.Duration `env:"OLLAMA_REQUEST_TIMEOUT" envDefault:"5m"`
}

// OpenAIConfig OpenAI-совместимый эндпоинт (OpenAI, Gemini, OpenRouter)
type OpenAIConfig struct {
	APIKey         string        `env:"OPENAI_API_KEY" envDefault:""`
	BaseURL        string        `env:"OPENAI_BASE_URL" envDefault:""`
	Model          string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	RequestTimeout time.Duration `env:"OPENAI_REQUEST_TIMEOUT" envDefault:"3m"`
}

// PipelineConfig параметры постраничной обработки
type PipelineConfig struct {
	// Документы с числом страниц не больше порога отправляются одним запросом
	SinglePageThreshold int           `env:"PIPELINE_SINGLE_PAGE_THRESHOLD" envDefault:"5"`
	PageDelay           time.Duration `env:"PIPELINE_PAGE_DELAY" envDefault:"3s"`
	RateLimitBackoff    time.Duration `env:"PIPELINE_RATE_LIMIT_BACKOFF" envDefault:"10s"`
	// При 0 страница после превышения лимита остаётся с ошибкой
	RateLimitRetries int     `env:"PIPELINE_RATE_LIMIT_RETRIES" envDefault:"0"`
	ScaleFactor      float64 `env:"PIPELINE_SCALE_FACTOR" envDefault:"2"`
}

type WorkerConfig struct {
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`
	MaxRetry    int `env:"WORKER_MAX_RETRY" envDefault:"3"`
	// Время на одну попытку обработки задания
	TaskTimeout time.Duration `env:"WORKER_TASK_TIMEOUT" envDefault:"6h"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// json или console
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Worker.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет параметры конвейера
func (p PipelineConfig) Validate() error {
	if p.SinglePageThreshold < 0 {
		return fmt.Errorf("PIPELINE_SINGLE_PAGE_THRESHOLD must not be negative, got %d", p.SinglePageThreshold)
	}
	if p.PageDelay < 0 || p.RateLimitBackoff < 0 {
		return fmt.Errorf("pipeline delays must not be negative")
	}
	if p.RateLimitRetries < 0 {
		return fmt.Errorf("PIPELINE_RATE_LIMIT_RETRIES must not be negative, got %d", p.RateLimitRetries)
	}
	if p.ScaleFactor <= 0 {
		return fmt.Errorf("PIPELINE_SCALE_FACTOR must be positive, got %v", p.ScaleFactor)
	}
	return nil
}

// Validate проверяет параметры воркера.
// Нулевой таймаут asynq заменяет своими 30 минутами, поэтому он запрещён.
func (w WorkerConfig) Validate() error {
	if w.MaxRetry < 0 {
		return fmt.Errorf("WORKER_MAX_RETRY must not be negative, got %d", w.MaxRetry)
	}
	if w.TaskTimeout <= 0 {
		return fmt.Errorf("WORKER_TASK_TIMEOUT must be positive, got %s", w.TaskTimeout)
	}
	return nil
}
