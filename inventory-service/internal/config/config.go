package config

import (
	"fmt"
	"time"

	"github.com/mikro-shop/fulfillment/inventory-service/internal/store"
	pkgconfig "github.com/mikro-shop/fulfillment/pkg/config"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	LogLevel        string        `yaml:"log_level"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Store          string   `yaml:"store"`
	SQLitePath     string   `yaml:"sqlite_path"`
	Postgres       Postgres `yaml:"postgres"`
	MigrationsPath string   `yaml:"migrations_path"`
	SeedCatalog    bool     `yaml:"seed_catalog"`

	ReservationTTL  time.Duration `yaml:"reservation_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	CASRetries      int           `yaml:"cas_retries"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:        "8081",
		LogLevel:        "info",
		RequestTimeout:  10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Store:           StoreMemory,
		SQLitePath:      "./inventory.db",
		Postgres: Postgres{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "inventory",
		},
		SeedCatalog:     true,
		ReservationTTL:  store.DefaultReservationTTL,
		CleanupInterval: store.DefaultCleanupInterval,
		CASRetries:      5,
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
	cfg.Store = pkgconfig.GetEnv("INVENTORY_STORE", cfg.Store)
	cfg.SQLitePath = pkgconfig.GetEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.Postgres.Host = pkgconfig.GetEnv("DB_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = pkgconfig.GetEnvInt("DB_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = pkgconfig.GetEnv("DB_USER", cfg.Postgres.User)
	cfg.Postgres.Password = pkgconfig.GetEnv("DB_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.DBName = pkgconfig.GetEnv("DB_NAME", cfg.Postgres.DBName)
	cfg.MigrationsPath = pkgconfig.GetEnv("MIGRATIONS_PATH", cfg.MigrationsPath)
	cfg.SeedCatalog = pkgconfig.GetEnvBool("SEED_CATALOG", cfg.SeedCatalog)
	cfg.ReservationTTL = pkgconfig.GetEnvDuration("RESERVATION_TTL", cfg.ReservationTTL)
	cfg.CleanupInterval = pkgconfig.GetEnvDuration("RESERVATION_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.CASRetries = pkgconfig.GetEnvInt("CAS_RETRIES", cfg.CASRetries)

	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "./internal/store/migrations/" + cfg.Store
	}
	switch cfg.Store {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return nil, fmt.Errorf("unknown inventory store %q", cfg.Store)
	}
	return cfg, nil
}
