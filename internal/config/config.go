// Package config loads the chatflow runtime configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, a .env file, CHATFLOW_* environment variables and finally
// command line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHATFLOW_"

// DefaultFile is read when no config file is given and it exists.
const DefaultFile = "chatflow.yaml"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Bots     BotsConfig     `yaml:"bots" mapstructure:"bots"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Sandbox  SandboxConfig  `yaml:"sandbox" mapstructure:"sandbox"`
	Security SecurityConfig `yaml:"security" mapstructure:"security"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Validate bool   `yaml:"validate" mapstructure:"validate"`
	Metrics  bool   `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// BotsConfig locates bot definitions.
type BotsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Dir is the session directory of the file driver.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// DSN is the connection string of the SQL drivers.
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	Prefix        string        `yaml:"prefix" mapstructure:"prefix"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`

	// Lock enables the redis distributed lock across replicas.
	Lock bool `yaml:"lock" mapstructure:"lock"`
}

// EngineConfig bounds flow execution.
type EngineConfig struct {
	MaxSteps     int `yaml:"max_steps" mapstructure:"max_steps"`
	MaxInputSize int `yaml:"max_input_size" mapstructure:"max_input_size"`
}

// SandboxConfig limits custom code nodes.
type SandboxConfig struct {
	MaxTimeout   time.Duration `yaml:"max_timeout" mapstructure:"max_timeout"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" mapstructure:"http_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AllowedHosts []string      `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
}

// SecurityConfig configures the store middleware.
type SecurityConfig struct {
	EncryptionKey string   `yaml:"encryption_key" mapstructure:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
	PIIPatterns   []string `yaml:"pii_patterns" mapstructure:"pii_patterns"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:     ":8080",
			Validate: true,
			Metrics:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bots: BotsConfig{
			Dir: "bots",
		},
		Engine: EngineConfig{
			MaxInputSize: 4096,
		},
		Store: StoreConfig{
			Driver:    DriverFile,
			Dir:       ".chatflow/sessions",
			RedisAddr: "localhost:6379",
			Prefix:    "chatflow:session:",
		},
		Sandbox: SandboxConfig{
			MaxTimeout:   30 * time.Second,
			HTTPTimeout:  10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path, the
// given .env files and the environment. An empty path falls back to
// DefaultFile when present. Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := cfg.mergeEnv(os.Environ()); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeEnv overlays CHATFLOW_<SECTION>_<KEY> variables, e.g. CHATFLOW_STORE_REDIS_ADDR.
func (c *Config) mergeEnv(environ []string) error {
	sections := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_")
		if !ok || key == "" {
			continue
		}
		m, _ := sections[section].(map[string]any)
		if m == nil {
			m = make(map[string]any)
			sections[section] = m
		}
		m[key] = value
	}
	if len(sections) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.DecodeHookFuncType(stringToSliceHook),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(sections); err != nil {
		return fmt.Errorf("invalid %s environment: %w", EnvPrefix, err)
	}
	return nil
}

// stringToSliceHook splits comma separated values and drops empty items.
func stringToSliceHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
		return data, nil
	}
	var out []string
	for _, part := range strings.Split(data.(string), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverRedis:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Lock && c.Store.Driver != DriverRedis {
		return errors.New("store lock requires the redis driver")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Engine.MaxSteps < 0 || c.Engine.MaxInputSize < 0 {
		return errors.New("engine limits must not be negative")
	}
	return nil
}
