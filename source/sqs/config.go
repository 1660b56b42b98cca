package sqs

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type BackoffCfg struct {
	Base     time.Duration `koanf:"base"`     // first retry delay
	Factor   float64       `koanf:"factor"`   // multiplier per attempt
	Cap      time.Duration `koanf:"cap"`      // upper bound per sleep
	Attempts int           `koanf:"attempts"` // receive attempts before surfacing
}

type Config struct {
	Region          string `koanf:"region"`
	QueueURL        string `koanf:"queue_url"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	Endpoint        string `koanf:"endpoint"` // override for local stacks

	WaitTime          time.Duration `koanf:"wait_time"`          // long-poll bound (0–20s)
	VisibilityTimeout time.Duration `koanf:"visibility_timeout"` // 0 = queue default

	Backoff BackoffCfg `koanf:"backoff"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// LoadConfig merges YAML (if present) with env-vars
// (prefix `SLUICE_SQS__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("sqs schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("SLUICE_SQS__", "__", nil), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.WaitTime <= 0 {
		c.WaitTime = 20 * time.Second
	}
	if c.WaitTime > 20*time.Second {
		c.WaitTime = 20 * time.Second
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = 500 * time.Millisecond
	}
	if c.Backoff.Factor < 1 {
		c.Backoff.Factor = 2
	}
	if c.Backoff.Cap <= 0 {
		c.Backoff.Cap = 30 * time.Second
	}
	if c.Backoff.Attempts <= 0 {
		c.Backoff.Attempts = 5
	}
}
