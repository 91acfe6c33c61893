package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Engine      EngineConfig      `mapstructure:"engine"`
	DataSources DataSourcesConfig `mapstructure:"datasources"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the repository. An empty URL keeps templates and
// reports in memory.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Enabled  bool          `mapstructure:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// AuthConfig configures caller identity. Without a JWT secret the service
// trusts the X-User-ID header set by an upstream gateway.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type EngineConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	WidgetTimeout  time.Duration `mapstructure:"widget_timeout"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	TimestampField string        `mapstructure:"timestamp_field"`
}

type DataSourcesConfig struct {
	WazuhIndexer WazuhIndexerConfig `mapstructure:"wazuh_indexer"`
	WazuhAPI     WazuhAPIConfig     `mapstructure:"wazuh_api"`
	IRIS         IRISConfig         `mapstructure:"iris"`
	Demo         DemoConfig         `mapstructure:"demo"`
}

type WazuhIndexerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
	Size     int    `mapstructure:"size"`
}

type WazuhAPIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
	MaxItems int           `mapstructure:"max_items"`
}

type IRISConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DemoConfig serves synthetic records for every source that has no real
// adapter enabled.
type DemoConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Seed    int64         `mapstructure:"seed"`
	Count   int           `mapstructure:"count"`
	Window  time.Duration `mapstructure:"window"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.cache_ttl", "60s")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.widget_timeout", "30s")
	v.SetDefault("engine.default_limit", 1000)
	v.SetDefault("engine.timestamp_field", "timestamp")
	v.SetDefault("datasources.wazuh_indexer.index", "wazuh-alerts-*")
	v.SetDefault("datasources.wazuh_indexer.size", 1000)
	v.SetDefault("datasources.wazuh_api.timeout", "30s")
	v.SetDefault("datasources.wazuh_api.page_size", 500)
	v.SetDefault("datasources.wazuh_api.max_items", 10000)
	v.SetDefault("datasources.iris.timeout", "30s")
	v.SetDefault("datasources.demo.enabled", true)
	v.SetDefault("datasources.demo.seed", 42)
	v.SetDefault("datasources.demo.count", 500)
	v.SetDefault("datasources.demo.window", "168h")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval", "30s")
	v.SetDefault("scheduler.min_interval", "1m")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/insoctor/reports")
	}

	// Environment variables override (REPORTS_SERVER_PORT, REPORTS_DATABASE_URL, etc.)
	v.SetEnvPrefix("REPORTS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("engine.max_concurrency must be at least 1")
	}
	if c.Engine.DefaultLimit < 1 {
		return fmt.Errorf("engine.default_limit must be at least 1")
	}
	if c.DataSources.WazuhIndexer.Enabled && c.DataSources.WazuhIndexer.URL == "" {
		return fmt.Errorf("datasources.wazuh_indexer.url is required when enabled")
	}
	if c.DataSources.WazuhAPI.Enabled && c.DataSources.WazuhAPI.URL == "" {
		return fmt.Errorf("datasources.wazuh_api.url is required when enabled")
	}
	if c.DataSources.IRIS.Enabled && c.DataSources.IRIS.URL == "" {
		return fmt.Errorf("datasources.iris.url is required when enabled")
	}
	return nil
}
