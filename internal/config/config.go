// Package config loads process settings from ORDERFLOW_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable read by Load.
const Prefix = "ORDERFLOW"

type Config struct {
	DataDir         string        `envconfig:"DATA_DIR" default:"orders"`
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":5000"`
	APIKey          string        `envconfig:"API_KEY"`
	RateLimit       RateLimit     `envconfig:"RATE_LIMIT" default:"100/minute"`
	ServiceName     string        `envconfig:"SERVICE_NAME" default:"mailorder-bridge"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile   string `envconfig:"LOG_FILE"`

	FeedQueueURL        string        `envconfig:"FEED_QUEUE_URL"`
	NotifyQueueURL      string        `envconfig:"NOTIFY_QUEUE_URL"`
	CloudWatchNamespace string        `envconfig:"CLOUDWATCH_NAMESPACE"`
	DedupWindow         time.Duration `envconfig:"DEDUP_WINDOW" default:"10m"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.DataDir == "" {
		return nil, fmt.Errorf("load config: %s_DATA_DIR must not be empty", Prefix)
	}
	return &c, nil
}

// UsesAWS reports whether any AWS-backed integration is configured.
func (c *Config) UsesAWS() bool {
	return c.FeedQueueURL != "" || c.NotifyQueueURL != "" || c.CloudWatchNamespace != ""
}
