package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "AUTHCLIENT_"
	configFileKey = "CONFIG"
)

// Storage drivers understood by the command
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// LookupFunc resolves a configuration key, same contract as os.LookupEnv
type LookupFunc func(key string) (string, bool)

// BaseConfig aggregates the client options
type BaseConfig struct {
	BaseURL        string        `koanf:"base_url" json:"base_url"`
	APIPrefix      string        `koanf:"api_prefix" json:"api_prefix"`
	StorageDriver  string        `koanf:"storage_driver" json:"storage_driver"`
	StorageDir     string        `koanf:"storage_dir" json:"storage_dir,omitempty"`
	StorageKey     string        `koanf:"storage_key" json:"storage_key"`
	RedisAddr      string        `koanf:"redis_addr" json:"redis_addr,omitempty"`
	RedisPassword  string        `koanf:"redis_password" json:"-"`
	RedisDB        int           `koanf:"redis_db" json:"redis_db"`
	RedisPrefix    string        `koanf:"redis_prefix" json:"redis_prefix,omitempty"`
	SQLiteDSN      string        `koanf:"sqlite_dsn" json:"sqlite_dsn,omitempty"`
	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout"`
	ActivityLog    string        `koanf:"activity_log" json:"activity_log,omitempty"`
	Debug          bool          `koanf:"debug" json:"debug"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *BaseConfig {
	return &BaseConfig{
		BaseURL:       "http://localhost:8000",
		APIPrefix:     "/api",
		StorageDriver: StorageFile,
		StorageKey:    "token",
		RedisAddr:     "localhost:6379",
		RedisPrefix:   "authclient:",
		SQLiteDSN:     "file:authclient.db?cache=shared",
	}
}

// Load reads the configuration from the process environment
func Load() (*BaseConfig, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom layers Defaults, the optional JSON file named by
// AUTHCLIENT_CONFIG and the AUTHCLIENT_* keys resolved through lookup.
func LoadFrom(lookup LookupFunc) (*BaseConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path, ok := lookupValue(lookup, configFileKey); ok {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(confmap.Provider(envValues(lookup), "."), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &BaseConfig{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.DecodeHookFuncType(secondsHook),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Files that do not exist are skipped, existing variables are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var found []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if len(found) == 0 {
		return nil
	}
	return godotenv.Load(found...)
}

// ReadDotEnv returns a LookupFunc backed by the .env file at path,
// falling back to the process environment for missing keys.
func ReadDotEnv(path string) (LookupFunc, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if v, ok := values[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}, nil
}

func (c BaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.StorageDriver,
			validation.Required,
			validation.In(StorageFile, StorageMemory, StorageRedis, StorageSQLite),
		),
		validation.Field(&c.StorageKey, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RedisDB, validation.Min(0)),
	)
}

func (c BaseConfig) GetBaseURL() string {
	return c.BaseURL
}

func (c BaseConfig) GetAPIPrefix() string {
	return c.APIPrefix
}

func (c BaseConfig) GetStorageKey() string {
	return c.StorageKey
}

func (c BaseConfig) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

// envKeys maps AUTHCLIENT_* suffixes to configuration keys
var envKeys = map[string]string{
	"BASE_URL":       "base_url",
	"API_PREFIX":     "api_prefix",
	"STORAGE":        "storage_driver",
	"STORAGE_DIR":    "storage_dir",
	"STORAGE_KEY":    "storage_key",
	"REDIS_ADDR":     "redis_addr",
	"REDIS_PASSWORD": "redis_password",
	"REDIS_DB":       "redis_db",
	"REDIS_PREFIX":   "redis_prefix",
	"SQLITE_DSN":     "sqlite_dsn",
	"TIMEOUT":        "request_timeout",
	"ACTIVITY_LOG":   "activity_log",
	"DEBUG":          "debug",
}

func envValues(lookup LookupFunc) map[string]any {
	out := make(map[string]any, len(envKeys))
	for suffix, key := range envKeys {
		if v, ok := lookupValue(lookup, suffix); ok {
			out[key] = v
		}
	}
	return out
}

// lookupValue ignores unset and blank keys
func lookupValue(lookup LookupFunc, suffix string) (string, bool) {
	v, ok := lookup(envPrefix + suffix)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// secondsHook reads bare numbers as whole seconds
func secondsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}
