package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the QuestForge worker service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	AI        AIConfig
}

// RelayConfig is the subset of configuration the Redis scheduler relay needs.
type RelayConfig struct {
	Redis     RedisConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port      int    `env:"QUESTFORGE_PORT, default=8080"`
	Env       string `env:"QUESTFORGE_ENV, default=development"`
	PublicURL string `env:"QUESTFORGE_PUBLIC_URL"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME, default=5m"`
	MigrationsDir   string        `env:"DATABASE_MIGRATIONS_DIR, default=migrations"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type WorkerConfig struct {
	Secret               string        `env:"WORKER_SECRET"`
	PreviousSecretHashes []string      `env:"WORKER_SECRET_PREVIOUS_HASHES"`
	ID                   string        `env:"WORKER_ID"`
	LeaseDuration        time.Duration `env:"WORKER_LEASE_DURATION, default=15m"`
	BackoffSeconds       []int         `env:"WORKER_BACKOFF_SECONDS, default=15,60,180,600,1800"`
	DefaultMaxAttempts   int           `env:"WORKER_DEFAULT_MAX_ATTEMPTS, default=3"`
	SweepBatch           int           `env:"WORKER_SWEEP_BATCH, default=100"`
	SweepInterval        time.Duration `env:"WORKER_SWEEP_INTERVAL, default=1m"`
	EnqueueRatePerMin    int           `env:"WORKER_ENQUEUE_RATE_PER_MIN, default=600"`
}

// Backoff returns the configured backoff table as durations.
func (w WorkerConfig) Backoff() []time.Duration {
	out := make([]time.Duration, len(w.BackoffSeconds))
	for i, s := range w.BackoffSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

type SchedulerConfig struct {
	Backend         string        `env:"SCHEDULER_BACKEND, default=qstash"`
	QStashURL       string        `env:"QSTASH_URL, default=https://qstash.upstash.io"`
	QStashToken     string        `env:"QSTASH_TOKEN"`
	PublishTimeout  time.Duration `env:"SCHEDULER_PUBLISH_TIMEOUT, default=10s"`
	DedupRetention  time.Duration `env:"SCHEDULER_DEDUP_RETENTION, default=10m"`
	RelayInterval   time.Duration `env:"RELAY_POLL_INTERVAL, default=1s"`
	RelayBatch      int           `env:"RELAY_BATCH, default=100"`
	RelayMaxAttempt int           `env:"RELAY_MAX_DELIVERIES, default=8"`
	RelayTimeout    time.Duration `env:"RELAY_DELIVERY_TIMEOUT, default=30s"`
}

type AIConfig struct {
	Provider             string `env:"AI_PROVIDER"`
	InferenceTimeoutSecs int    `env:"AI_INFERENCE_TIMEOUT_SECS, default=60"`
	InferenceTimeout     time.Duration
	Ollama               OllamaConfig
	VLLM                 VLLMConfig
	OpenAI               OpenAIConfig
	Anthropic            AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string `env:"OLLAMA_BASE_URL, default=http://localhost:11434"`
	Model   string `env:"OLLAMA_MODEL, default=llama3"`
}

type VLLMConfig struct {
	BaseURL string `env:"VLLM_BASE_URL, default=http://localhost:8000"`
	Model   string `env:"VLLM_MODEL"`
}

type OpenAIConfig struct {
	BaseURL string `env:"OPENAI_BASE_URL, default=https://api.openai.com"`
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL, default=gpt-4o-mini"`
}

type AnthropicConfig struct {
	BaseURL string `env:"ANTHROPIC_BASE_URL, default=https://api.anthropic.com"`
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	Model   string `env:"ANTHROPIC_MODEL, default=claude-sonnet-4-5-20250929"`
}

// MaxPreviousSecretHashes bounds the bcrypt comparisons a rejected worker
// secret costs.
const MaxPreviousSecretHashes = 2

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validBackends = map[string]bool{
	"qstash": true,
	"redis":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	cfg.AI.InferenceTimeout = time.Duration(cfg.AI.InferenceTimeoutSecs) * time.Second
	if cfg.Worker.ID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.Worker.ID = host
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRelay reads only the settings used by the scheduler relay.
func LoadRelay() (*RelayConfig, error) {
	var cfg RelayConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if err := cfg.Scheduler.validateRelay(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.PublicURL == "" {
		return fmt.Errorf("QUESTFORGE_PUBLIC_URL is required")
	}
	if err := requireHTTPURL("QUESTFORGE_PUBLIC_URL", c.Server.PublicURL); err != nil {
		return err
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := c.Worker.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive")
	}

	return nil
}

func (w *WorkerConfig) validate() error {
	if w.Secret == "" {
		return fmt.Errorf("WORKER_SECRET is required")
	}
	if w.LeaseDuration < 0 {
		return fmt.Errorf("WORKER_LEASE_DURATION must not be negative")
	}
	if len(w.BackoffSeconds) == 0 {
		return fmt.Errorf("WORKER_BACKOFF_SECONDS must list at least one delay")
	}
	prev := 0
	for _, s := range w.BackoffSeconds {
		if s < prev {
			return fmt.Errorf("WORKER_BACKOFF_SECONDS must be non-decreasing, got %v", w.BackoffSeconds)
		}
		prev = s
	}
	if w.DefaultMaxAttempts < 1 {
		return fmt.Errorf("WORKER_DEFAULT_MAX_ATTEMPTS must be at least 1")
	}
	if w.SweepInterval < 0 {
		return fmt.Errorf("WORKER_SWEEP_INTERVAL must not be negative")
	}
	if len(w.PreviousSecretHashes) > MaxPreviousSecretHashes {
		return fmt.Errorf("WORKER_SECRET_PREVIOUS_HASHES accepts at most %d hashes, got %d",
			MaxPreviousSecretHashes, len(w.PreviousSecretHashes))
	}
	for _, h := range w.PreviousSecretHashes {
		if !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("WORKER_SECRET_PREVIOUS_HASHES must contain bcrypt hashes")
		}
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if !validBackends[s.Backend] {
		return fmt.Errorf("SCHEDULER_BACKEND must be one of qstash, redis; got %q", s.Backend)
	}
	if s.Backend == "qstash" {
		if s.QStashToken == "" {
			return fmt.Errorf("QSTASH_TOKEN is required when SCHEDULER_BACKEND is qstash")
		}
		if err := requireHTTPURL("QSTASH_URL", s.QStashURL); err != nil {
			return err
		}
	}
	if s.DedupRetention <= 0 {
		return fmt.Errorf("SCHEDULER_DEDUP_RETENTION must be positive")
	}
	return nil
}

func (s *SchedulerConfig) validateRelay() error {
	if s.RelayInterval <= 0 {
		return fmt.Errorf("RELAY_POLL_INTERVAL must be positive")
	}
	if s.RelayBatch <= 0 {
		return fmt.Errorf("RELAY_BATCH must be positive")
	}
	if s.RelayMaxAttempt < 1 {
		return fmt.Errorf("RELAY_MAX_DELIVERIES must be at least 1")
	}
	return nil
}

func requireHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an http:// or https:// URL, got %q", name, raw)
	}
	return nil
}
