package main

import (
	"github.com/ilyakaznacheev/cleanenv"
)

type ServiceConfig struct {
	Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
	SentryDSN   string `env:"SENTRY_DSN"`
	Port        string `env:"PORT" env-default:"8080"`
	LogLevel    string `env:"HOTSPOT_LOG_LEVEL" env-default:"info"`

	// StorageURL selects where analysis summaries are kept: badger://dir,
	// gs://bucket or any gocloud blob URL. Empty disables storage.
	StorageURL string `env:"HOTSPOT_STORAGE_URL"`

	KafkaBrokers []string `env:"HOTSPOT_KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"HOTSPOT_KAFKA_TOPIC" env-default:"hotspot-analyses"`

	NumWorkers        int      `env:"HOTSPOT_NUM_WORKERS"`
	ResolverCacheSize int      `env:"HOTSPOT_RESOLVER_CACHE_SIZE" env-default:"65536"`
	PathMap           []string `env:"HOTSPOT_PATH_MAP" env-separator:";"`
	MaxRequestSize    int64    `env:"HOTSPOT_MAX_REQUEST_SIZE" env-default:"1048576"`
}

func readConfig() (ServiceConfig, error) {
	var c ServiceConfig
	err := cleanenv.ReadEnv(&c)
	return c, err
}
