package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the variable that points at the endpoint file when no path is given.
const EnvConfig = "ROOST_CONFIG"

// Load builds a Config in layers:
//  1. Defaults
//  2. the .env files (".env" when none are named; a missing default file is ignored)
//  3. the YAML file at path, or $ROOST_CONFIG, with ${VAR} references expanded
//  4. ROOST_* environment overrides
//  5. Validate
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse expands ${VAR} references in data and decodes it over cfg.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func loadEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("ROOST_INPUT", &cfg.Endpoint.Input)
	set("ROOST_HOST", &cfg.Endpoint.Host)
	set("ROOST_SERIALIZER", &cfg.Endpoint.Serializer)
	set("ROOST_POLICY", &cfg.Endpoint.Policy)
	set("ROOST_TRANSPORT", &cfg.Transport.Kind)
	set("ROOST_TRANSPORT_URL", &cfg.Transport.URL)
	set("ROOST_METRICS_LISTEN", &cfg.Metrics.Listen)
	set("ROOST_LOG_LEVEL", &cfg.Log.Level)
	if v := os.Getenv("ROOST_KAFKA_BROKERS"); v != "" {
		cfg.Transport.Brokers = strings.Split(v, ",")
	}
}
