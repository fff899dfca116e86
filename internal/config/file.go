package config

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of the client configuration.
type File struct {
	API struct {
		BaseURL  string        `yaml:"base_url"`
		QuoteURL string        `yaml:"quote_url"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Cache struct {
		DefaultTTL    time.Duration `yaml:"default_ttl"`
		MaxEntries    int           `yaml:"max_entries"`
		HotCache      *bool         `yaml:"hot_cache"`
		BloomFilter   *bool         `yaml:"bloom_filter"`
		Serialization string        `yaml:"serialization"`
	} `yaml:"cache"`

	Retry struct {
		Attempts int           `yaml:"attempts"`
		Initial  time.Duration `yaml:"initial_interval"`
		Max      time.Duration `yaml:"max_interval"`
		Backoff  string        `yaml:"backoff"`
	} `yaml:"retry"`

	Queue struct {
		ReplayPerSecond float64 `yaml:"replay_per_second"`
		ReplayBurst     int     `yaml:"replay_burst"`
	} `yaml:"queue"`

	Store struct {
		Type       string `yaml:"type"`
		SQLitePath string `yaml:"sqlite_path"`
		DSN        string `yaml:"dsn"`
		RedisAddr  string `yaml:"redis_addr"`
	} `yaml:"store"`

	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		OutputPath string `yaml:"output_path"`
	} `yaml:"log"`

	Timezone string `yaml:"timezone"`
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &f, nil
}

// Options converts the file into config options. Zero values keep defaults.
func (f *File) Options() ([]Option, error) {
	var opts []Option

	if f.API.BaseURL != "" {
		opts = append(opts, WithAPIBaseURL(f.API.BaseURL))
	}
	if f.API.QuoteURL != "" {
		opts = append(opts, WithQuoteURL(f.API.QuoteURL))
	}
	if f.API.Timeout > 0 {
		timeout := f.API.Timeout
		opts = append(opts, func(c *Config) error {
			c.HTTPTimeouts.Request = timeout
			return nil
		})
	}
	if f.Cache.DefaultTTL > 0 {
		opts = append(opts, WithDefaultExpiration(f.Cache.DefaultTTL))
	}
	if f.Cache.MaxEntries > 0 {
		opts = append(opts, WithMaxEntries(f.Cache.MaxEntries))
	}
	if f.Cache.HotCache != nil {
		opts = append(opts, WithHotCache(*f.Cache.HotCache))
	}
	if f.Cache.BloomFilter != nil {
		opts = append(opts, WithBloomFilter(*f.Cache.BloomFilter))
	}
	if f.Cache.Serialization != "" {
		opts = append(opts, WithSerialization(f.Cache.Serialization))
	}
	if f.Retry.Attempts > 0 || f.Retry.Initial > 0 || f.Retry.Max > 0 {
		retry := f.Retry
		opts = append(opts, func(c *Config) error {
			if retry.Attempts > 0 {
				c.ResilienceConfig.MaxRetries = retry.Attempts
			}
			if retry.Initial > 0 {
				c.ResilienceConfig.InitialInterval = retry.Initial
			}
			if retry.Max > 0 {
				c.ResilienceConfig.MaxInterval = retry.Max
			}
			return nil
		})
	}
	if f.Retry.Backoff != "" {
		opts = append(opts, WithBackoff(f.Retry.Backoff))
	}
	if f.Queue.ReplayPerSecond > 0 {
		opts = append(opts, WithReplayRate(rate.Limit(f.Queue.ReplayPerSecond), f.Queue.ReplayBurst))
	}
	if f.Timezone != "" {
		loc, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", f.Timezone, err)
		}
		opts = append(opts, WithLocation(loc))
	}

	return opts, nil
}
