package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Config holds all configuration for a production node
type Config struct {
	// Node Identity
	PlantID string `mapstructure:"plant_id"`
	NodeID  string `mapstructure:"node_id"`

	// Server Configuration
	HTTPPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`

	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Badger   BadgerConfig   `mapstructure:"badger"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

// StoreConfig selects and bounds the production store
type StoreConfig struct {
	Driver  string        `mapstructure:"driver"` // postgres, badger, memory
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig is the PostgreSQL connection
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name"`
	SSLMode         string `mapstructure:"sslmode"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

// BadgerConfig is the embedded store location
type BadgerConfig struct {
	Path string `mapstructure:"path"`
}

// CatalogConfig points at a recipe catalogue imported at startup
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("plant_id", "plant-1")
	v.SetDefault("node_id", "node-1")
	v.SetDefault("http_port", "6000")
	v.SetDefault("log_level", "info")

	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgrespassword")
	v.SetDefault("database.name", "ccp_production")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.connect_attempts", 10)

	v.SetDefault("badger.path", "./data/badger")
	v.SetDefault("catalog.path", "")
}

// Load reads configuration from defaults, the optional file at path, and
// CCP_* environment variables, in increasing priority. Nested keys map to
// variables with dots replaced by underscores, e.g. CCP_DATABASE_HOST.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.PlantID == "" {
		return fmt.Errorf("plant_id is required")
	}
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.HTTPPort == "" {
		return fmt.Errorf("http_port is required")
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres store")
		}
	case DriverBadger:
		if c.Badger.Path == "" {
			return fmt.Errorf("badger.path is required for the badger store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q (want postgres, badger or memory)", c.Store.Driver)
	}
	return nil
}
