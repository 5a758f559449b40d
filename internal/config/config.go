package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Store    StoreConfig    `yaml:"store"`
	Seed     SeedConfig     `yaml:"seed"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	// CircleScope is the key new orders are clustered under: "establishment" or "city".
	CircleScope string `yaml:"circle_scope"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password" json:"-"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	RetryInitial    time.Duration `yaml:"retry_initial"`
	RetryMax        time.Duration `yaml:"retry_max"`
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
	// LockTimeout bounds how long a submission waits for its scope lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// SeedConfig preloads the in-memory establishment directory.
type SeedConfig struct {
	Establishments []SeedEstablishment `yaml:"establishments"`
}

type SeedEstablishment struct {
	ID     string             `yaml:"id"`
	CityID string             `yaml:"city_id"`
	Name   string             `yaml:"name"`
	Lat    float64            `yaml:"lat"`
	Lon    float64            `yaml:"lon"`
	Menu   map[string]float64 `yaml:"menu"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "circle-service"
	cfg.App.Port = "8080"
	cfg.App.Env = "development"
	cfg.App.LogLevel = "debug"
	cfg.App.CircleScope = "establishment"

	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.MigrationsPath = "migrations"

	cfg.Store.Driver = DriverPostgres
	cfg.Store.QueryTimeout = 3 * time.Second
	cfg.Store.RetryInitial = 100 * time.Millisecond
	cfg.Store.RetryMax = 1 * time.Second
	cfg.Store.RetryMaxElapsed = 5 * time.Second
	cfg.Store.LockTimeout = 10 * time.Second
	return cfg
}

// NewConfig reads .env (if any), then the YAML file named by CONFIG_PATH
// (if set), then environment variables, each layer overriding the previous one.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.App.Port, "APP_PORT")
	setString(&c.App.Env, "APP_ENV")
	setString(&c.App.LogLevel, "LOG_LEVEL")
	setString(&c.App.CircleScope, "CIRCLE_SCOPE")

	setString(&c.Postgres.Host, "DB_HOST")
	setString(&c.Postgres.Port, "DB_PORT")
	setString(&c.Postgres.User, "DB_USER")
	setString(&c.Postgres.Password, "DB_PASSWORD")
	setString(&c.Postgres.DBName, "DB_NAME")
	setString(&c.Postgres.SSLMode, "DB_SSLMODE")
	setString(&c.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")

	setString(&c.Store.Driver, "STORE_DRIVER")

	if err := setInt32(&c.Postgres.MaxConns, "DB_MAX_CONNS"); err != nil {
		return err
	}
	if err := setInt32(&c.Postgres.MinConns, "DB_MIN_CONNS"); err != nil {
		return err
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"},
		{&c.Store.QueryTimeout, "STORE_QUERY_TIMEOUT"},
		{&c.Store.RetryInitial, "STORE_RETRY_INITIAL"},
		{&c.Store.RetryMax, "STORE_RETRY_MAX"},
		{&c.Store.RetryMaxElapsed, "STORE_RETRY_MAX_ELAPSED"},
		{&c.Store.LockTimeout, "STORE_LOCK_TIMEOUT"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.App.CircleScope {
	case "establishment", "city":
	default:
		return fmt.Errorf("CIRCLE_SCOPE must be establishment or city, got %q", c.App.CircleScope)
	}

	if c.Store.QueryTimeout <= 0 {
		return errors.New("STORE_QUERY_TIMEOUT must be positive")
	}
	if c.Store.RetryInitial <= 0 || c.Store.RetryMax < c.Store.RetryInitial {
		return errors.New("STORE_RETRY_INITIAL must be positive and not exceed STORE_RETRY_MAX")
	}
	if c.Store.RetryMaxElapsed <= 0 {
		return errors.New("STORE_RETRY_MAX_ELAPSED must be positive")
	}
	if c.Store.LockTimeout <= 0 {
		return errors.New("STORE_LOCK_TIMEOUT must be positive")
	}

	switch c.Store.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverMemory, c.Store.Driver)
	}

	required := map[string]string{
		"DB_HOST":     c.Postgres.Host,
		"DB_PORT":     c.Postgres.Port,
		"DB_USER":     c.Postgres.User,
		"DB_PASSWORD": c.Postgres.Password,
		"DB_NAME":     c.Postgres.DBName,
	}
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		if required[key] == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
