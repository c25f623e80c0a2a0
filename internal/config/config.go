package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Redis      RedisConfig      `yaml:"redis"`
	Generation GenerationConfig `yaml:"generation"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	LogLevel   string           `yaml:"log_level"`
}

// RabbitMQConfig configures the refresh job queue. An empty URL selects the
// in-process queue.
type RabbitMQConfig struct {
	URL            string `yaml:"url"`
	Exchange       string `yaml:"exchange"`
	RoutingKey     string `yaml:"routing_key"`
	QueueName      string `yaml:"queue_name"`
	DelayQueueName string `yaml:"delay_queue_name"`
	Prefetch       int    `yaml:"prefetch"`
}

// RedisConfig configures the per-document refresh lease. An empty Addr
// disables locking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig selects the document store. An empty Host uses the
// in-memory store, which only holds what SeedFile loads at start-up and is
// lost on exit; it is meant for local runs and demos.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	SeedFile string `yaml:"seed_file"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
}

type RefreshConfig struct {
	Schedule        string        `yaml:"schedule"`
	BatchSize       int           `yaml:"batch_size"`
	JitterMin       time.Duration `yaml:"jitter_min"`
	JitterMax       time.Duration `yaml:"jitter_max"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	Workers         int           `yaml:"workers"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	RequireSuperset bool          `yaml:"require_superset"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "content_refresher"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "refresh"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "refresh_jobs"
	}
	if c.RabbitMQ.DelayQueueName == "" {
		c.RabbitMQ.DelayQueueName = c.RabbitMQ.QueueName + "_delayed"
	}
	if c.RabbitMQ.Prefetch == 0 {
		c.RabbitMQ.Prefetch = 2
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "openai/gpt-4o-mini"
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.3
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 60 * time.Second
	}
	if c.Refresh.Schedule == "" {
		c.Refresh.Schedule = "@daily"
	}
	if c.Refresh.BatchSize == 0 {
		c.Refresh.BatchSize = 10
	}
	if c.Refresh.JitterMin == 0 {
		c.Refresh.JitterMin = 1 * time.Minute
	}
	if c.Refresh.JitterMax == 0 {
		c.Refresh.JitterMax = 60 * time.Minute
	}
	if c.Refresh.JobTimeout == 0 {
		c.Refresh.JobTimeout = 2 * time.Minute
	}
	if c.Refresh.Workers == 0 {
		c.Refresh.Workers = 1
	}
	if c.Refresh.LockTTL == 0 {
		c.Refresh.LockTTL = 10 * time.Minute
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = c.Generation.Timeout + 30*time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Refresh.JitterMax < c.Refresh.JitterMin {
		return fmt.Errorf("refresh.jitter_max (%s) is below refresh.jitter_min (%s)",
			c.Refresh.JitterMax, c.Refresh.JitterMin)
	}
	if c.Refresh.BatchSize < 0 {
		return fmt.Errorf("refresh.batch_size must be positive, got %d", c.Refresh.BatchSize)
	}
	return nil
}
