package config

import (
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	FirebaseProject            string `env:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebaseServiceAccountPath string `env:"FIREBASE_SERVICE_ACCOUNT_PATH"`

	// StoreDriver selects "firestore" or the in-process "memory" store.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"firestore"`
	SubgraphURL string `env:"SUBGRAPH_URL"`

	MessageWindow    int `env:"MESSAGE_WINDOW" envDefault:"50"`
	ProfileCacheSize int `env:"PROFILE_CACHE_SIZE" envDefault:"1024"`

	DeliveryRetryBase time.Duration `env:"DELIVERY_RETRY_BASE" envDefault:"200ms"`
	DeliveryRetryMax  uint64        `env:"DELIVERY_RETRY_MAX" envDefault:"5"`
	FanoutRetryMax    uint64        `env:"FANOUT_RETRY_MAX" envDefault:"2"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

func Load() (*Config, error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = 50
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
