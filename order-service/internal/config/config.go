package config

import (
	"fmt"
	"time"

	"github.com/mikro-shop/fulfillment/pkg/circuitbreaker"
	pkgconfig "github.com/mikro-shop/fulfillment/pkg/config"
)

const (
	RepositoryMemory   = "memory"
	RepositoryPostgres = "postgres"
)

type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

type Order struct {
	SagaMode        string `yaml:"saga_mode"`
	AbortOnDegraded bool   `yaml:"abort_on_degraded"`
}

type Reconciler struct {
	Strict    bool          `yaml:"strict"`
	RedisAddr string        `yaml:"redis_addr"`
	DedupTTL  time.Duration `yaml:"dedup_ttl"`
}

type Publisher struct {
	// SweepInterval of zero disables the stuck-order sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StuckAfter    time.Duration `yaml:"stuck_after"`
}

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	LogLevel        string        `yaml:"log_level"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	InventoryURL string                `yaml:"inventory_url"`
	Breaker      circuitbreaker.Policy `yaml:"breaker"`

	Repository     string   `yaml:"repository"`
	Postgres       Postgres `yaml:"postgres"`
	MigrationsPath string   `yaml:"migrations_path"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`

	Order      Order      `yaml:"order"`
	Reconciler Reconciler `yaml:"reconciler"`
	Publisher  Publisher  `yaml:"publisher"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:        "8082",
		LogLevel:        "info",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		InventoryURL:    "http://localhost:8081",
		Breaker:         circuitbreaker.DefaultPolicy(),
		Repository:      RepositoryPostgres,
		Postgres: Postgres{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "orders",
		},
		MigrationsPath: "./internal/repository/migrations",
		KafkaBrokers:   []string{"localhost:9092"},
		ConsumerGroup:  "order-service",
		Order:          Order{SagaMode: "direct"},
		Reconciler: Reconciler{
			RedisAddr: "localhost:6379",
			DedupTTL:  24 * time.Hour,
		},
		Publisher: Publisher{StuckAfter: 5 * time.Minute},
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
	cfg.RequestTimeout = pkgconfig.GetEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.InventoryURL = pkgconfig.GetEnv("INVENTORY_URL", cfg.InventoryURL)

	cfg.Breaker.WindowSize = pkgconfig.GetEnvInt("BREAKER_WINDOW_SIZE", cfg.Breaker.WindowSize)
	cfg.Breaker.MinimumCalls = pkgconfig.GetEnvInt("BREAKER_MINIMUM_CALLS", cfg.Breaker.MinimumCalls)
	cfg.Breaker.OpenTimeout = pkgconfig.GetEnvDuration("BREAKER_OPEN_TIMEOUT", cfg.Breaker.OpenTimeout)
	cfg.Breaker.CallTimeout = pkgconfig.GetEnvDuration("BREAKER_CALL_TIMEOUT", cfg.Breaker.CallTimeout)

	cfg.Repository = pkgconfig.GetEnv("ORDER_REPOSITORY", cfg.Repository)
	cfg.Postgres.Host = pkgconfig.GetEnv("DB_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = pkgconfig.GetEnvInt("DB_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = pkgconfig.GetEnv("DB_USER", cfg.Postgres.User)
	cfg.Postgres.Password = pkgconfig.GetEnv("DB_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.DBName = pkgconfig.GetEnv("DB_NAME", cfg.Postgres.DBName)
	cfg.MigrationsPath = pkgconfig.GetEnv("MIGRATIONS_PATH", cfg.MigrationsPath)

	cfg.KafkaBrokers = pkgconfig.GetEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.ConsumerGroup = pkgconfig.GetEnv("KAFKA_CONSUMER_GROUP", cfg.ConsumerGroup)

	cfg.Order.SagaMode = pkgconfig.GetEnv("ORDER_SAGA_MODE", cfg.Order.SagaMode)
	cfg.Order.AbortOnDegraded = pkgconfig.GetEnvBool("ORDER_ABORT_ON_DEGRADED", cfg.Order.AbortOnDegraded)
	cfg.Reconciler.Strict = pkgconfig.GetEnvBool("RECONCILER_STRICT", cfg.Reconciler.Strict)
	cfg.Reconciler.RedisAddr = pkgconfig.GetEnv("REDIS_ADDR", cfg.Reconciler.RedisAddr)
	cfg.Publisher.SweepInterval = pkgconfig.GetEnvDuration("PUBLISHER_SWEEP_INTERVAL", cfg.Publisher.SweepInterval)
	cfg.Publisher.StuckAfter = pkgconfig.GetEnvDuration("PUBLISHER_STUCK_AFTER", cfg.Publisher.StuckAfter)

	switch cfg.Repository {
	case RepositoryMemory, RepositoryPostgres:
	default:
		return nil, fmt.Errorf("unknown order repository %q", cfg.Repository)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	return cfg, nil
}
