package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "OEEE"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full client configuration.
type Config struct {
	Env        string           // Env is the current environment: local, development, production.
	API        APIConfig        // API holds the oeee.cafe endpoint settings
	Storage    StorageConfig    // Storage selects where cookies and session flags are kept
	Postgres   PostgresConfig   // Postgres is used when Storage.Driver is "postgres"
	Keyring    KeyringConfig    // Keyring holds the custody settings of the encryption key
	Monitoring MonitoringConfig // Monitoring configures the health/metrics server of `oeee watch`
}

// APIConfig struct holds the configuration of the REST API client.
type APIConfig struct {
	BaseURL string        // BaseURL is the API root, e.g. `https://oeee.cafe/api/v1/`
	Timeout time.Duration // Timeout bounds every request.
}

// StorageConfig struct holds the durable key/value settings.
type StorageConfig struct {
	Driver          string // Driver is one of sqlite, postgres, memory.
	Path            string // Path is the SQLite database file.
	PlainDir        string // PlainDir holds one JSON file per namespace, used when encryption is unavailable.
	NamespacePrefix string // NamespacePrefix is prepended to every namespace.
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Dbname   string // Dbname is the name of the database.
}

// KeyringConfig struct holds where the encryption key is kept.
type KeyringConfig struct {
	Service string // Service is the OS keyring service name.
	User    string // User is the OS keyring account name.
	KeyDir  string // KeyDir holds the key file used when no OS keyring is available.
}

// MonitoringConfig struct holds the monitoring server settings.
type MonitoringConfig struct {
	Port     int
	Interval time.Duration // Interval is how often the session is revalidated.
}

// MustLoad loads the configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

// Load reads the optional YAML file named by CONFIG_PATH, then OEEE_*
// environment variables, on top of defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	apiTimeout, err := duration(v, "api.timeout")
	if err != nil {
		return nil, err
	}
	interval, err := duration(v, "monitoring.interval")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env: v.GetString("env"),
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Timeout: apiTimeout,
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(v.GetString("storage.driver")),
			Path:            v.GetString("storage.path"),
			PlainDir:        v.GetString("storage.plain_dir"),
			NamespacePrefix: v.GetString("storage.namespace_prefix"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Dbname:   v.GetString("postgres.db_name"),
		},
		Keyring: KeyringConfig{
			Service: v.GetString("keyring.service"),
			User:    v.GetString("keyring.user"),
			KeyDir:  v.GetString("keyring.key_dir"),
		},
		Monitoring: MonitoringConfig{
			Port:     v.GetInt("monitoring.port"),
			Interval: interval,
		},
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()

	v.SetDefault("env", "local")
	v.SetDefault("api.base_url", "https://oeee.cafe/api/v1/")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", filepath.Join(dataDir, "oeee.db"))
	v.SetDefault("storage.plain_dir", filepath.Join(dataDir, "plain"))
	v.SetDefault("storage.namespace_prefix", "")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "oeee")
	v.SetDefault("keyring.service", "oeee-cafe")
	v.SetDefault("keyring.user", "session-key")
	v.SetDefault("keyring.key_dir", dataDir)
	v.SetDefault("monitoring.port", 8080)
	v.SetDefault("monitoring.interval", "15m")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "oeee")
	}

	return ".oeee"
}

// duration accepts both Go duration strings and plain seconds.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed, nil
	}
	if seconds, err := time.ParseDuration(raw + "s"); err == nil {
		return seconds, nil
	}

	return 0, fmt.Errorf("failed to parse %s from configuration", key)
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url must be set")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.Monitoring.Interval <= 0 {
		return errors.New("monitoring.interval must be positive")
	}

	return nil
}

// Namespace returns name with the configured prefix.
func (c *Config) Namespace(name string) string {
	return c.Storage.NamespacePrefix + name
}
