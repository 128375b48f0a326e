// Package config loads docsql settings from defaults, an optional config file
// and DOCSQL_ prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for every setting.
const EnvPrefix = "DOCSQL_"

// Join strategies accepted by JoinConfig.Strategy.
const (
	JoinStrategyHash       = "hash"
	JoinStrategyNestedLoop = "nested_loop"
	JoinStrategyAuto       = "auto"
)

// Config holds process-wide settings.
type Config struct {
	DataDir         string        `mapstructure:"data_dir"`
	InMemory        bool          `mapstructure:"in_memory"`
	DefaultDatabase string        `mapstructure:"default_database"`
	Cache           CacheConfig   `mapstructure:"cache"`
	Join            JoinConfig    `mapstructure:"join"`
	Storage         StorageConfig `mapstructure:"storage"`
	Notify          NotifyConfig  `mapstructure:"notify"`
	Auth            AuthConfig    `mapstructure:"auth"`
	HTTP            HTTPConfig    `mapstructure:"http"`
	Log             LogConfig     `mapstructure:"log"`
}

// CacheConfig configures the SELECT result cache.
type CacheConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// JoinConfig selects the physical join operator.
type JoinConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// StorageConfig configures the pebble stores.
type StorageConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	CacheSize     int64         `mapstructure:"cache_size"`
}

// NotifyConfig sizes the notification worker pool.
type NotifyConfig struct {
	Workers int `mapstructure:"workers"`
}

// AuthConfig controls the bootstrap admin account.
type AuthConfig struct {
	RequireAuth   bool   `mapstructure:"require_auth"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool `mapstructure:"pprof"`
}

// LogConfig configures the logger package.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:         "./data",
		DefaultDatabase: "main",
		Cache:           CacheConfig{Capacity: 1000, TTL: 60 * time.Second},
		Join:            JoinConfig{Strategy: JoinStrategyHash},
		Storage:         StorageConfig{FlushInterval: 5 * time.Second, CacheSize: 64 << 20},
		Notify:          NotifyConfig{Workers: 16},
		Auth:            AuthConfig{AdminUser: "admin", AdminPassword: "admin"},
		HTTP:            HTTPConfig{Addr: ":8080"},
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("in_memory", d.InMemory)
	v.SetDefault("default_database", d.DefaultDatabase)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("join.strategy", d.Join.Strategy)
	v.SetDefault("storage.flush_interval", d.Storage.FlushInterval)
	v.SetDefault("storage.cache_size", d.Storage.CacheSize)
	v.SetDefault("notify.workers", d.Notify.Workers)
	v.SetDefault("auth.require_auth", d.Auth.RequireAuth)
	v.SetDefault("auth.admin_user", d.Auth.AdminUser)
	v.SetDefault("auth.admin_password", d.Auth.AdminPassword)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.pprof", d.HTTP.Pprof)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration. path may be empty, in which case only defaults and
// environment variables apply. Environment keys map DOCSQL_CACHE_TTL to cache.ttl;
// the first underscore after the prefix separates a section from its field.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	known := make(map[string]bool)
	for _, k := range v.AllKeys() {
		known[k] = true
	}
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if prop := envToKey(strings.TrimPrefix(key, EnvPrefix), known); prop != "" {
			v.Set(prop, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envToKey resolves an env suffix such as CACHE_TTL or DATA_DIR against the
// known keys, trying a section split first and the flat form second.
func envToKey(suffix string, known map[string]bool) string {
	lower := strings.ToLower(suffix)
	if section, field, ok := strings.Cut(lower, "_"); ok {
		if k := section + "." + field; known[k] {
			return k
		}
	}
	if known[lower] {
		return lower
	}
	return ""
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.Join.Strategy {
	case JoinStrategyHash, JoinStrategyNestedLoop, JoinStrategyAuto:
	default:
		return fmt.Errorf("invalid join.strategy %q", c.Join.Strategy)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.DefaultDatabase == "" {
		return fmt.Errorf("default_database must not be empty")
	}
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("data_dir must be set unless in_memory is enabled")
	}
	return nil
}
