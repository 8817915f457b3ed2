// Package config предоставялет структуры и функции для парсинга и загрузки конфига консоли
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"CONSOLE_ENV" env-default:"local"`
	API             `yaml:"api"`
	Credentials     `yaml:"credentials"`
	RedisConnection `yaml:"redis_connection"`
	Poller          `yaml:"poller"`
	HTTPServer      `yaml:"http_server"`
	RabbitMQ        `yaml:"rabbitmq"`
}

// API структура для настройки подключения к бэкенду коннектора
type API struct {
	BaseURL   string        `yaml:"base_url" env:"CONSOLE_API_URL" env-default:"http://localhost:3000/api"`
	Timeout   time.Duration `yaml:"timeout" env:"CONSOLE_API_TIMEOUT" env-default:"15s"`
	RateLimit float64       `yaml:"rate_limit" env:"CONSOLE_API_RATE_LIMIT" env-default:"10"`
	Burst     int           `yaml:"burst" env:"CONSOLE_API_BURST" env-default:"20"`
}

// Credentials структура для настройки хранилища токена
type Credentials struct {
	Backend string `yaml:"backend" env:"CONSOLE_CREDENTIALS_BACKEND" env-default:"file"`
	Key     string `yaml:"key" env:"CONSOLE_CREDENTIALS_KEY" env-default:"token"`
	Path    string `yaml:"path" env:"CONSOLE_CREDENTIALS_PATH" env-default:".console/credentials"`
	Secret  string `yaml:"secret" env:"CONSOLE_CREDENTIALS_SECRET"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"CONSOLE_REDIS_ADDR"`
	Password     string        `yaml:"password" env:"CONSOLE_REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// Poller структура для настройки опроса статуса подключения
type Poller struct {
	Interval             time.Duration `yaml:"interval" env:"CONSOLE_POLL_INTERVAL" env-default:"3s"`
	FailureWarnThreshold int           `yaml:"failure_warn_threshold" env-default:"5"`
}

// HTTPServer структура для настройки локального сервера консоли
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"CONSOLE_HTTP_ADDR" env-default:"localhost:8090"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RabbitMQ структура для публикации событий смены статуса; пустой URL отключает публикацию
type RabbitMQ struct {
	URL      string `yaml:"url" env:"CONSOLE_RABBITMQ_URL"`
	Exchange string `yaml:"exchange" env-default:"connector"`
}

// Load читает конфиг из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%s: file %s: %w", op, configPath, err)
	}
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH.
// Если переменная не задана, конфиг собирается только из окружения.
func MustLoad() *Config {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown credentials backend %q", c.Backend)
	}
	if c.Backend == "redis" && c.AddressRedis == "" {
		return errors.New("config: redis credentials backend requires redis_connection.addressredis")
	}
	if c.Interval <= 0 {
		return errors.New("config: poller interval must be positive")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"API:\n"+
			"  BaseURL: %s\n"+
			"  Timeout: %s\n"+
			"  RateLimit: %.1f (burst %d)\n"+
			"Credentials:\n"+
			"  Backend: %s\n"+
			"  Key: %s\n"+
			"  Path: %s\n"+
			"  Sealed: %t\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"Poller:\n"+
			"  Interval: %s\n"+
			"  FailureWarnThreshold: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"RabbitMQ:\n"+
			"  Enabled: %t\n"+
			"  Exchange: %s\n",
		c.Env,
		c.BaseURL,
		c.API.Timeout,
		c.RateLimit,
		c.Burst,
		c.Backend,
		c.Key,
		c.Path,
		c.Secret != "",
		c.AddressRedis,
		c.DB,
		c.Interval,
		c.FailureWarnThreshold,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RabbitMQ.URL != "",
		c.Exchange,
	)
}
