package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/mikro-shop/fulfillment/pkg/config"
)

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	LogLevel        string        `yaml:"log_level"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:        "8083",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		KafkaBrokers:    []string{"localhost:9092"},
		ConsumerGroup:   "payment-service",
	}
}

// Load applies defaults, then the optional CONFIG_FILE, then environment
func Load() (*Config, error) {
	cfg := defaults()
	if err := pkgconfig.LoadFile(pkgconfig.GetEnv(pkgconfig.FileEnv, ""), cfg); err != nil {
		return nil, err
	}

	cfg.HTTPPort = pkgconfig.GetEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = pkgconfig.GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.OTLPEndpoint = pkgconfig.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.ShutdownTimeout = pkgconfig.GetEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.KafkaBrokers = pkgconfig.GetEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.ConsumerGroup = pkgconfig.GetEnv("KAFKA_CONSUMER_GROUP", cfg.ConsumerGroup)

	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	return cfg, nil
}
