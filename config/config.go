package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Booking  BookingConfig  `yaml:"booking"`
	Queue    QueueConfig    `yaml:"queue"`
	Waitlist WaitlistConfig `yaml:"waitlist"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory store keeps state in the
	// process and is only suitable for a single instance.
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	// SeedPath is a YAML file of locations, services and resources loaded
	// into the memory store at startup.
	SeedPath string `yaml:"seed_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	EventsTopic        string   `yaml:"events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	JobsQueue  string `yaml:"jobs_queue"`
	DelayQueue string `yaml:"delay_queue"`
	RetryQueue string `yaml:"retry_queue"`
	Prefetch   int    `yaml:"prefetch"`
	// MaxAttempts counts the first run. Retries back off exponentially
	// from RetryBackoffSeconds.
	MaxAttempts         int `yaml:"max_attempts"`
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds"`
}

type BookingConfig struct {
	LockTTLSeconds      int    `yaml:"lock_ttl_seconds"`
	CancelLeadHours     int    `yaml:"cancel_lead_hours"`
	MinAdvanceHours     int    `yaml:"min_advance_hours"`
	MaxAdvanceDays      int    `yaml:"max_advance_days"`
	SlotCacheTTLSeconds int    `yaml:"slot_cache_ttl_seconds"`
	SlotBufferMinutes   int    `yaml:"slot_buffer_minutes"`
	CodePrefix          string `yaml:"code_prefix"`
}

type QueueConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

type WaitlistConfig struct {
	OfferWindowMinutes int    `yaml:"offer_window_minutes"`
	ConfirmURLBase     string `yaml:"confirm_url_base"`
}

type ScheduleConfig struct {
	RulesCacheSize       int  `yaml:"rules_cache_size"`
	RulesCacheTTLSeconds int  `yaml:"rules_cache_ttl_seconds"`
	PublicHolidays       bool `yaml:"public_holidays"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LoadConfig reads the YAML file at path. A .env file in the working
// directory, if present, is loaded into the environment first so CONFIG_PATH
// and secrets can live there.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv populates the environment from .env. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Path returns CONFIG_PATH or the default config.yaml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// Validate fills defaults and rejects values the services cannot work with.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Booking.LockTTLSeconds <= 0 {
		c.Booking.LockTTLSeconds = 300
	}
	if c.Booking.SlotCacheTTLSeconds <= 0 {
		c.Booking.SlotCacheTTLSeconds = 120
	}
	if c.Booking.MaxAdvanceDays <= 0 {
		c.Booking.MaxAdvanceDays = 90
	}
	if c.Booking.CodePrefix == "" {
		c.Booking.CodePrefix = "TRM"
	}
	if c.Booking.CancelLeadHours < 0 || c.Booking.MinAdvanceHours < 0 || c.Booking.SlotBufferMinutes < 0 {
		return errors.New("booking lead times and buffers must not be negative")
	}
	if c.Queue.EventBuffer <= 0 {
		c.Queue.EventBuffer = 1024
	}
	if c.Waitlist.OfferWindowMinutes <= 0 {
		c.Waitlist.OfferWindowMinutes = 120
	}
	if c.Schedule.RulesCacheSize <= 0 {
		c.Schedule.RulesCacheSize = 256
	}
	if c.Schedule.RulesCacheTTLSeconds <= 0 {
		c.Schedule.RulesCacheTTLSeconds = 60
	}
	if c.RabbitMQ.JobsQueue == "" {
		c.RabbitMQ.JobsQueue = "waitlist.jobs"
	}
	if c.RabbitMQ.DelayQueue == "" {
		c.RabbitMQ.DelayQueue = "waitlist.jobs.delay"
	}
	if c.RabbitMQ.RetryQueue == "" {
		c.RabbitMQ.RetryQueue = "waitlist.jobs.retry"
	}
	if c.RabbitMQ.Prefetch <= 0 {
		c.RabbitMQ.Prefetch = 10
	}
	if c.RabbitMQ.MaxAttempts <= 0 {
		c.RabbitMQ.MaxAttempts = 3
	}
	if c.RabbitMQ.RetryBackoffSeconds <= 0 {
		c.RabbitMQ.RetryBackoffSeconds = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}
