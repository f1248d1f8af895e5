package configuration

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// redisEnv carries the environment-only overrides for the Redis
// connection. Credentials never live in the config file.
type redisEnv struct {
	Addr     string `env:"CASCADE_REDIS_ADDR"`
	Password string `env:"CASCADE_REDIS_PASSWORD"`
	DB       int    `env:"CASCADE_REDIS_DB" envDefault:"-1"`
}

// LoadFile reads and validates a YAML configuration file, then applies
// environment overrides. Unknown fields are rejected to catch typos early.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(data)
}

// Load parses YAML configuration bytes, applies environment overrides,
// and validates the result.
func Load(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment-provided connection settings onto the
// configuration. Only set variables override; absent ones leave the file
// values intact.
func ApplyEnv(cfg *Config) error {
	var re redisEnv
	if err := env.Parse(&re); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if re.Addr != "" {
		cfg.Cache.RedisAddr = re.Addr
	}
	if re.Password != "" {
		cfg.Cache.RedisPassword = re.Password
	}
	if re.DB >= 0 {
		cfg.Cache.RedisDB = re.DB
	}
	return nil
}
