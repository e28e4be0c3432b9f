package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Listener ListenerConfig `yaml:"listener"`
	Web      WebConfig      `yaml:"web"`
	Events   EventsConfig   `yaml:"events"`
	Orders   OrdersConfig   `yaml:"orders"`
	Clients  ClientsConfig  `yaml:"clients"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ListenerConfig describes the TCP socket hub and warehouse clients dial.
type ListenerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

type EventsConfig struct {
	Kafka               KafkaConfig   `yaml:"kafka"`
	Topic               string        `yaml:"topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// OrdersConfig carries the lifecycle timing knobs. ApprovalDelay is the
// cancellation window between order creation and auto-approval;
// SweepInterval is the pause between approved-order sweeps.
type OrdersConfig struct {
	ApprovalDelay time.Duration `yaml:"approval_delay"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type ClientsConfig struct {
	RegisterRetries    int           `yaml:"register_retries"`
	RegisterRetryDelay time.Duration `yaml:"register_retry_delay"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "hubcore.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "hubcore",
				User:     "hubcore",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Listener: ListenerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8084,
			SessionSecret: "change-me-in-production",
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "hubcore",
			},
			Topic:               "hubcore.order_events",
			OutboxDrainInterval: 5 * time.Second,
		},
		Orders: OrdersConfig{
			ApprovalDelay: 30 * time.Second,
			SweepInterval: 10 * time.Second,
		},
		Clients: ClientsConfig{
			RegisterRetries:    3,
			RegisterRetryDelay: 2 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
