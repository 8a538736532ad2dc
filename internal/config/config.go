package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: CHATTMPL_BACKEND__BASE_URL sets backend.base_url.
const EnvPrefix = "CHATTMPL_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	Codec     CodecConfig     `koanf:"codec"`
	Tokens    TokensConfig    `koanf:"tokens"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"` // Duration string like "120s"
	// APIKeys gates /v1 behind bearer keys when non-empty.
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"` // SHA-256 hex, see `chattmpl keygen`
	Description string `koanf:"description"`
}

// BackendConfig points at an OpenAI-compatible text completion server.
type BackendConfig struct {
	BaseURL           string   `koanf:"base_url"`
	APIKey            string   `koanf:"api_key"`
	Model             string   `koanf:"model"`
	Temperature       float32  `koanf:"temperature"`
	MaxTokens         int      `koanf:"max_tokens"`
	Stop              []string `koanf:"stop"` // Stop sequences sent with every completion
	KeepSpecialTokens bool     `koanf:"keep_special_tokens"`
}

type CodecConfig struct {
	Family string `koanf:"family"` // Default family for requests that name none
	Effort string `koanf:"effort"` // high, medium, low
}

type TokensConfig struct {
	Encoding string `koanf:"encoding"` // tiktoken encoding for non-OpenAI models
	// UseBackend counts with the backend's /tokenize endpoint when it
	// knows the model, falling back to tiktoken.
	UseBackend bool `koanf:"use_backend"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	SampleRatio float64 `koanf:"sample_ratio"` // fraction of root traces kept
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":            8080,
	"server.request_timeout": "120s",
	"backend.base_url":       "http://localhost:8000/v1",
	"backend.temperature":    0.001,
	"backend.max_tokens":     4096,
	"codec.family":           "k2",
	"codec.effort":           "medium",
	"tokens.encoding":        "o200k_base",
	"storage.type":           "memory",
	"storage.sqlite.path":    "chattmpl.db",
	"telemetry.service_name": "chattmpl",
	"telemetry.sample_ratio": 1.0,
	"log.level":              "info",
	"log.format":             "json",
}

// Load layers defaults, the YAML file at path (a missing file is fine),
// CHATTMPL_ environment variables and finally any flags the user set.
// Flag names are the dotted keys, e.g. --codec.family.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		k.Set(key, value)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Backend.APIKey = substituteEnvVars(cfg.Backend.APIKey)
	cfg.Backend.BaseURL = substituteEnvVars(cfg.Backend.BaseURL)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
