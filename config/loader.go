package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/symbolws/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "SYMBOLWS"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix replaces the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, every layer in order, then environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.applyFile(cfg, path); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// applyFile decodes a layer over cfg; fields absent from the file keep their value.
func (l *Loader) applyFile(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return fmt.Errorf("invalid JSON structure: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	}
	return nil
}

func (l *Loader) env(name string) (string, bool, error) {
	key := l.envPrefix + "_" + name
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", false, nil
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false, err
	}
	return val, true, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	texts := map[string]*string{
		"NETWORK":           &cfg.Network.Name,
		"NATS_URL":          &cfg.NATS.URL,
		"NATS_TOKEN":        &cfg.NATS.Token,
		"POSTGRES_DSN":      &cfg.Price.PostgresDSN,
		"REDIS_ADDR":        &cfg.Price.Redis.Addr,
		"REDIS_PASSWORD":    &cfg.Price.Redis.Password,
		"COINGECKO_API_KEY": &cfg.Price.CoinGecko.APIKey,
		"HTTP_ADDR":         &cfg.HTTP.Addr,
		"LOG_LEVEL":         &cfg.Logging.Level,
		"LOG_FORMAT":        &cfg.Logging.Format,
	}
	for name, target := range texts {
		val, ok, err := l.env(name)
		if err != nil {
			return err
		}
		if ok {
			*target = val
		}
	}

	lists := map[string]*[]string{
		"NODES":      &cfg.Network.Nodes,
		"SYMBOLS":    &cfg.Price.Symbols,
		"CURRENCIES": &cfg.Price.Currencies,
	}
	for name, target := range lists {
		val, ok, err := l.env(name)
		if err != nil {
			return err
		}
		if ok {
			*target = splitList(val)
		}
	}

	bools := map[string]*bool{
		"REQUIRE_TLS":   &cfg.Client.RequireTLS,
		"NATS_ENABLED":  &cfg.NATS.Enabled,
		"PRICE_ENABLED": &cfg.Price.Enabled,
	}
	for name, target := range bools {
		val, ok, err := l.env(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_%s=%q is not a boolean", errors.ErrInvalidConfig, l.envPrefix, name, val)
		}
		*target = b
	}
	return nil
}

// SaveToFile writes the configuration as YAML or JSON by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode configuration")
	}
	return safeWriteFile(path, data)
}
