// Package config loads the sessionctl configuration from the environment,
// with optional .env file support for local development.
package config

import (
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config wires the CLI to concrete stores and backends.
type Config struct {
	AppName string `env:"APP_NAME,default=Session Kit"`
	Env     string `env:"ENV,default=DEV"`

	// One base URL per brand backend; the wire contract is identical.
	RetailBaseURL string `env:"RETAIL_BASE_URL,default=https://api.retail.omnibrand.example"`
	HealthBaseURL string `env:"HEALTH_BASE_URL,default=https://api.health.omnibrand.example"`
	JewelBaseURL  string `env:"JEWEL_BASE_URL,default=https://api.jewel.omnibrand.example"`

	// Store selects the durable store backing: file, redis or memory.
	Store string `env:"SESSION_STORE,default=file"`

	StorePath       string `env:"SESSION_STORE_PATH,default=./data/session.kv"`
	StorePassphrase string `env:"SESSION_STORE_PASSPHRASE,default="`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD,default="`
	RedisDB       int    `env:"REDIS_DB,default=0"`
}

// Load reads .env (when present) and decodes the environment.
func Load() (Config, error) {
	// Missing .env is fine; the environment may be fully set already.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] envdecode.Decode")
	}
	return cfg, nil
}
