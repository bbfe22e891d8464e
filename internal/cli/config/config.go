package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/silaforge/silac/internal/compiler/cache"
	"github.com/silaforge/silac/internal/compiler/protoc"
)

// EnvPrefix prefixes the environment variables that override config keys,
// e.g. SILAC_SERVER_ADDRESS for server.address
const EnvPrefix = "SILAC"

// Config represents the silac configuration
type Config struct {
	Compiler CompilerConfig `mapstructure:"compiler"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// CompilerConfig configures the protoc invocation
type CompilerConfig struct {
	Protoc       string        `mapstructure:"protoc" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	IncludePaths []string      `mapstructure:"include_paths"`
}

// CacheConfig configures the binding cache
type CacheConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis none"`
	Size    int           `mapstructure:"size" validate:"gt=0"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig configures the Redis cache backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// ServerConfig configures silac serve
type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
	// AdminAddress is where the admin HTTP server listens; empty disables it
	AdminAddress      string        `mapstructure:"admin_address"`
	Profiling         bool          `mapstructure:"profiling"`
	ExecutionLifetime time.Duration `mapstructure:"execution_lifetime"`

	Name        string `mapstructure:"name" validate:"required,max=255"`
	Type        string `mapstructure:"type" validate:"required,server_type"`
	UUID        string `mapstructure:"uuid" validate:"omitempty,uuid"`
	Description string `mapstructure:"description"`
	Version     string `mapstructure:"version" validate:"required,server_version"`
	VendorURL   string `mapstructure:"vendor_url" validate:"required,url"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// Load reads silac.yaml from the working directory, or the file at path when
// it is not empty. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("silac")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file or environment
// overrides are present
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// the defaults always decode
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("compiler.protoc", "protoc")
	v.SetDefault("compiler.timeout", 60*time.Second)
	v.SetDefault("compiler.include_paths", []string{})

	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("server.address", ":50052")
	v.SetDefault("server.admin_address", ":8080")
	v.SetDefault("server.profiling", false)
	v.SetDefault("server.execution_lifetime", 10*time.Minute)
	v.SetDefault("server.name", "SiLA Server")
	v.SetDefault("server.type", "SilacServer")
	v.SetDefault("server.uuid", "")
	v.SetDefault("server.description", "SiLA 2 server powered by silac")
	v.SetDefault("server.version", "1.0")
	v.SetDefault("server.vendor_url", "https://github.com/silaforge/silac")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

var (
	serverTypePattern    = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
	serverVersionPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(\.(0|[1-9][0-9]*))?(_[_a-zA-Z0-9]+)?$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "server_type", func(fl validator.FieldLevel) bool {
		return serverTypePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "server_version", func(fl validator.FieldLevel) bool {
		return serverVersionPattern.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Validate checks the configuration values. The first failing key is
// reported by its dotted name.
func Validate(cfg *Config) error {
	if cfg.Cache.Backend == cache.BackendRedis && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("invalid configuration: cache.redis.addr is required for the redis backend")
	}
	err := newValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fe := fieldErrors[0]
	key := strings.TrimPrefix(strings.ToLower(fe.Namespace()), "config.")
	return fmt.Errorf("invalid configuration: %s: %s", key, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "server_type":
		return fmt.Sprintf("%q must start with an upper case letter followed by letters or digits", fe.Value())
	case "server_version":
		return fmt.Sprintf("%q is not a version like 1.0 or 2.1.3", fe.Value())
	case "url":
		return fmt.Sprintf("%q is not a URL", fe.Value())
	case "uuid":
		return fmt.Sprintf("%q is not a UUID", fe.Value())
	default:
		return fmt.Sprintf("failed %s=%s check", fe.Tag(), fe.Param())
	}
}

// CacheBackend creates the configured binding cache
func (c *Config) CacheBackend() (cache.Cache, error) {
	common := cache.Config{
		DefaultTTL: c.Cache.TTL,
		Prefix:     cache.DefaultConfig().Prefix,
		Size:       c.Cache.Size,
	}
	redisConfig := cache.RedisConfig{
		Addr:     c.Cache.Redis.Addr,
		Password: c.Cache.Redis.Password,
		DB:       c.Cache.Redis.DB,
	}
	backend, err := cache.New(c.Cache.Backend, common, redisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cache: %w", c.Cache.Backend, err)
	}
	return backend, nil
}

// ProtocOptions returns the protoc invoker options
func (c *Config) ProtocOptions() *protoc.Options {
	return &protoc.Options{
		Protoc:       c.Compiler.Protoc,
		IncludePaths: c.Compiler.IncludePaths,
		Timeout:      c.Compiler.Timeout,
	}
}
