// Package config provides configuration management for the orchestrator.
// Values come from an optional YAML file, environment variables with the
// GOHARVEST_ prefix, and defaults, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultAppName            = "goharvest"
	defaultEnvironment        = "development"
	defaultServerPort         = 8070
	defaultReadTimeoutSec     = 30
	defaultWriteTimeoutSec    = 30
	defaultIdleTimeoutSec     = 60
	defaultPoolBaseCooldown   = 60 * time.Second
	defaultPoolMaxCooldown    = 3600 * time.Second
	defaultMinHealth          = 50
	defaultRefreshWindow      = 24 * time.Hour
	defaultRotationInterval   = 1800 * time.Second
	defaultStalenessThreshold = 600 * time.Second
	defaultCoolOffWindow      = 600 * time.Second
	defaultMaxRetries         = 3
	defaultMaxExecutionTime   = 300 * time.Second
	defaultWorkers            = 4
	defaultStoreBackend       = "memory"
	defaultRedisAddr          = "localhost:6379"
	defaultKeyPrefix          = "goharvest"
	defaultESURL              = "http://localhost:9200"
	defaultLogLevel           = "info"
	defaultLogEncoding        = "console"
	defaultMaintenanceSpec    = "*/5 * * * *"
)

// Config is the root configuration for all components.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Pool          PoolConfig          `mapstructure:"pool"`
	Session       SessionConfig       `mapstructure:"session"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Executor      ExecutorConfig      `mapstructure:"executor"`
	Store         StoreConfig         `mapstructure:"store"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PoolConfig holds egress resource pool settings.
type PoolConfig struct {
	// ResourceFile is the plain text list of egress endpoints, one per line.
	ResourceFile string        `mapstructure:"resource_file"`
	BaseCooldown time.Duration `mapstructure:"base_cooldown"`
	MaxCooldown  time.Duration `mapstructure:"max_cooldown"`
}

// SessionConfig holds session manager settings.
type SessionConfig struct {
	AccountKey         string        `mapstructure:"account_key"`
	MinHealthThreshold int           `mapstructure:"min_health_threshold"`
	RefreshWindow      time.Duration `mapstructure:"refresh_window"`
	RotationInterval   time.Duration `mapstructure:"rotation_interval"`
	CredentialDir      string        `mapstructure:"credential_dir"`
}

// SchedulerConfig holds task scheduler settings.
type SchedulerConfig struct {
	StalenessThreshold time.Duration  `mapstructure:"staleness_threshold"`
	CoolOffWindow      time.Duration  `mapstructure:"cool_off_window"`
	Importance         map[string]int `mapstructure:"importance"`
}

// ExecutorConfig holds execution engine settings.
type ExecutorConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	MaxExecutionTime time.Duration `mapstructure:"max_execution_time"`
	Workers          int           `mapstructure:"workers"`
}

// StoreConfig holds task store settings.
type StoreConfig struct {
	// Backend selects the store implementation: "memory" or "redis".
	Backend string `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings for the task store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ElasticsearchConfig holds result sink settings.
type ElasticsearchConfig struct {
	// Enabled switches the result sink on; when false results are discarded.
	Enabled               bool     `mapstructure:"enabled"`
	Addresses             []string `mapstructure:"addresses"`
	Username              string   `mapstructure:"username"`
	Password              string   `mapstructure:"password"`
	APIKey                string   `mapstructure:"api_key"`
	CloudID               string   `mapstructure:"cloud_id"`
	IndexPrefix           string   `mapstructure:"index_prefix"`
	TLSInsecureSkipVerify bool     `mapstructure:"tls_insecure_skip_verify"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// MaintenanceConfig holds periodic sweep settings.
type MaintenanceConfig struct {
	// Schedule is a cron expression for the maintenance sweep.
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration from the given file (optional), the environment,
// and defaults. An empty path loads env + defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every default value with viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", defaultAppName)
	v.SetDefault("app.environment", defaultEnvironment)
	v.SetDefault("app.debug", false)

	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeoutSec*time.Second)
	v.SetDefault("server.write_timeout", defaultWriteTimeoutSec*time.Second)
	v.SetDefault("server.idle_timeout", defaultIdleTimeoutSec*time.Second)

	v.SetDefault("pool.base_cooldown", defaultPoolBaseCooldown)
	v.SetDefault("pool.max_cooldown", defaultPoolMaxCooldown)

	v.SetDefault("session.min_health_threshold", defaultMinHealth)
	v.SetDefault("session.refresh_window", defaultRefreshWindow)
	v.SetDefault("session.rotation_interval", defaultRotationInterval)

	v.SetDefault("scheduler.staleness_threshold", defaultStalenessThreshold)
	v.SetDefault("scheduler.cool_off_window", defaultCoolOffWindow)
	v.SetDefault("scheduler.importance", map[string]int{
		"company": 3,
		"profile": 2,
		"job":     1,
	})

	v.SetDefault("executor.max_retries", defaultMaxRetries)
	v.SetDefault("executor.max_execution_time", defaultMaxExecutionTime)
	v.SetDefault("executor.workers", defaultWorkers)

	v.SetDefault("store.backend", defaultStoreBackend)
	v.SetDefault("store.redis.addr", defaultRedisAddr)
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", defaultKeyPrefix)

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.addresses", []string{defaultESURL})
	v.SetDefault("elasticsearch.index_prefix", defaultKeyPrefix)

	v.SetDefault("logger.level", defaultLogLevel)
	v.SetDefault("logger.encoding", defaultLogEncoding)

	v.SetDefault("maintenance.schedule", defaultMaintenanceSpec)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in (0,65535]")
	}
	if c.Pool.BaseCooldown <= 0 {
		return fmt.Errorf("pool base cooldown must be positive")
	}
	if c.Pool.MaxCooldown < c.Pool.BaseCooldown {
		return fmt.Errorf("pool max cooldown must be >= base cooldown")
	}
	if c.Executor.MaxRetries <= 0 {
		return fmt.Errorf("executor max retries must be positive")
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor workers must be positive")
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Elasticsearch.Enabled && len(c.Elasticsearch.Addresses) == 0 && c.Elasticsearch.CloudID == "" {
		return fmt.Errorf("elasticsearch enabled but no addresses configured")
	}
	return nil
}
