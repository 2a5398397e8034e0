package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	NotFoundTTL   time.Duration `yaml:"not_found_ttl"`

	// AI provider
	AIProvider        string `yaml:"ai_provider"`
	OllamaBaseURL     string `yaml:"ollama_base_url"`
	OllamaModel       string `yaml:"ollama_model"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url"`
	OpenRouterAPIKey  string `yaml:"openrouter_api_key"`
	OpenRouterModel   string `yaml:"openrouter_model"`
	OpenRouterSiteURL string `yaml:"openrouter_site_url"`
	OpenRouterAppName string `yaml:"openrouter_app_name"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`
	OpenAIModel       string `yaml:"openai_model"`
	ParserVersion     string `yaml:"parser_version"`

	// search provider (serper.dev)
	SerperBaseURL string `yaml:"serper_base_url"`
	SerperAPIKey  string `yaml:"serper_api_key"`

	// enrichment provider (salesql)
	SalesQLBaseURL string        `yaml:"salesql_base_url"`
	SalesQLAPIKey  string        `yaml:"salesql_api_key"`
	EnrichDelay    time.Duration `yaml:"enrich_delay"`

	// worker
	WorkerPollInterval       time.Duration `yaml:"worker_poll_interval"`
	WorkerBatchLimit         int           `yaml:"worker_batch_limit"`
	WorkerMaxResultsPerQuery int           `yaml:"worker_max_results_per_query"`
	WorkerConcurrency        int           `yaml:"worker_concurrency"`
	WorkerStaleLeaseAfter    time.Duration `yaml:"worker_stale_lease_after"`
	ProviderTimeout          time.Duration `yaml:"provider_timeout"`

	// rabbitMQ
	RabbitURL   string `yaml:"rabbit_url"`
	RabbitQueue string `yaml:"rabbit_queue"`
}

func defaults() Config {
	return Config{
		Env:      "local",
		LogLevel: "",
		HTTPAddr: ":8080",

		DBDriver: "mysql",
		// DSN demo：
		// app:apppass@tcp(127.0.0.1:3306)/talent?charset=utf8mb4&parseTime=true&loc=Local
		DBDSN: fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			"app", "apppass", "127.0.0.1", "3306", "talent",
		),

		RedisAddr:   "",
		NotFoundTTL: 7 * 24 * time.Hour,

		AIProvider:        "openai",
		OllamaBaseURL:     "http://localhost:11434",
		OllamaModel:       "llama3:latest",
		OpenRouterBaseURL: "https://openrouter.ai/api/v1",
		OpenRouterModel:   "openrouter/auto",
		OpenAIBaseURL:     "https://api.openai.com/v1",
		OpenAIModel:       "gpt-4",
		ParserVersion:     "llm-v1",

		SerperBaseURL:  "https://google.serper.dev",
		SalesQLBaseURL: "https://api-public.salesql.com/v1",
		EnrichDelay:    time.Second,

		WorkerPollInterval:       20 * time.Second,
		WorkerBatchLimit:         5,
		WorkerMaxResultsPerQuery: 20,
		WorkerConcurrency:        2,
		WorkerStaleLeaseAfter:    15 * time.Minute,
		ProviderTimeout:          30 * time.Second,

		RabbitURL:   "",
		RabbitQueue: "enrich_requests",
	}
}

// Load builds the config from defaults, then the optional YAML file named by
// CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	str(&c.Env, "ENV")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.HTTPAddr, "HTTP_ADDR")

	str(&c.DBDriver, "DB_DRIVER")
	str(&c.DBDSN, "DB_DSN")

	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPassword, "REDIS_PASSWORD")
	num(&c.RedisDB, "REDIS_DB")
	dur(&c.NotFoundTTL, "ENRICH_NOT_FOUND_TTL")

	str(&c.AIProvider, "AI_PROVIDER")
	str(&c.OllamaBaseURL, "OLLAMA_BASE_URL")
	str(&c.OllamaModel, "OLLAMA_MODEL")
	str(&c.OpenRouterBaseURL, "OPENROUTER_BASE_URL")
	str(&c.OpenRouterAPIKey, "OPENROUTER_API_KEY")
	str(&c.OpenRouterModel, "OPENROUTER_MODEL")
	str(&c.OpenRouterSiteURL, "OPENROUTER_SITE_URL")
	str(&c.OpenRouterAppName, "OPENROUTER_APP_NAME")
	str(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	str(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	str(&c.OpenAIModel, "OPENAI_MODEL")
	str(&c.ParserVersion, "PARSER_VERSION")

	str(&c.SerperBaseURL, "SERPER_BASE_URL")
	str(&c.SerperAPIKey, "SERPER_API_KEY")

	str(&c.SalesQLBaseURL, "SALESQL_BASE_URL")
	// SALESQL_API_KEY wins; the other two names are accepted for older deployments
	for _, k := range []string{"SALESQL_KEY", "SALESQL_TOKEN", "SALESQL_API_KEY"} {
		str(&c.SalesQLAPIKey, k)
	}
	dur(&c.EnrichDelay, "ENRICH_DELAY")

	// plain integers are seconds, like the old WORKER_POLL_INTERVAL=20
	dur(&c.WorkerPollInterval, "WORKER_POLL_INTERVAL")
	num(&c.WorkerBatchLimit, "WORKER_BATCH_LIMIT")
	num(&c.WorkerMaxResultsPerQuery, "WORKER_MAX_RESULTS_PER_QUERY")
	num(&c.WorkerConcurrency, "WORKER_CONCURRENCY")
	dur(&c.WorkerStaleLeaseAfter, "WORKER_STALE_LEASE_AFTER")
	dur(&c.ProviderTimeout, "PROVIDER_TIMEOUT")

	str(&c.RabbitURL, "RABBIT_URL")
	str(&c.RabbitQueue, "RABBIT_QUEUE")
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER=%q", c.DBDriver)
	}
	if c.WorkerBatchLimit <= 0 {
		return fmt.Errorf("worker batch limit must be positive, got %d", c.WorkerBatchLimit)
	}
	if c.WorkerMaxResultsPerQuery <= 0 || c.WorkerMaxResultsPerQuery > 100 {
		return fmt.Errorf("worker max results per query must be in 1..100, got %d", c.WorkerMaxResultsPerQuery)
	}
	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("worker poll interval must be positive")
	}
	if c.WorkerConcurrency <= 0 || c.WorkerConcurrency > 50 {
		return fmt.Errorf("worker concurrency must be in 1..50, got %d", c.WorkerConcurrency)
	}
	if c.EnrichDelay < 0 {
		return fmt.Errorf("enrich delay must not be negative")
	}
	return nil
}

func str(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func num(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func dur(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
