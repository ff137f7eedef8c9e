package h5zarr

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/h5zarr/source"
)

// Config is the YAML form of a consolidation job. Sizes accept units
// ("64MiB", "1GB") and durations use Go syntax ("30s").
type Config struct {
	Source string `yaml:"source"`
	Store  string `yaml:"store"`

	Mode               string `yaml:"mode"`
	Group              string `yaml:"group"`
	StorePath          string `yaml:"store_path"`
	MetadataKey        string `yaml:"metadata_key"`
	DimensionSeparator string `yaml:"dimension_separator"`
	MaxChunkSize       string `yaml:"max_chunk_size"`
	Strict             bool   `yaml:"strict"`
	SkipUnsupported    bool   `yaml:"skip_unsupported"`

	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
	CacheSize   string `yaml:"cache_size"`

	Retry *RetryConfig `yaml:"retry"`
}

// RetryConfig enables retries of failed range fetches.
type RetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Min      string `yaml:"min"`
	Max      string `yaml:"max"`
}

// LoadConfig reads a YAML config file. A leading ~ in path is expanded.
func LoadConfig(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %q", path)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", expanded)
	}
	conf := &Config{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "parsing config %q", expanded)
	}
	opts, err := conf.Options()
	if err == nil {
		err = NewOptions(opts...).Validate()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "config %q", expanded)
	}
	return conf, nil
}

// Options converts the config into options.
func (c *Config) Options() ([]Option, error) {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithMode(mode),
		WithRootGroup(c.Group),
		WithStorePath(c.StorePath),
		WithMetadataKey(c.MetadataKey),
		WithDimensionSeparator(c.DimensionSeparator),
	}
	if c.MaxChunkSize != "" {
		n, err := humanize.ParseBytes(c.MaxChunkSize)
		if err != nil {
			return nil, errors.Wrapf(err, "max_chunk_size %q", c.MaxChunkSize)
		}
		opts = append(opts, WithMaxChunkBytes(int64(n)))
	}
	if c.Strict {
		opts = append(opts, WithStrict())
	}
	if c.SkipUnsupported {
		opts = append(opts, WithSkipUnsupported())
	}
	if c.Concurrency > 0 {
		opts = append(opts, WithConcurrency(c.Concurrency))
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "timeout %q", c.Timeout)
		}
		opts = append(opts, WithFetchTimeout(d))
	}
	if _, err := c.CacheBytes(); err != nil {
		return nil, err
	}
	if _, err := c.RetryPolicy(); err != nil {
		return nil, err
	}
	return opts, nil
}

// CacheBytes returns the store cache size, 0 when the cache is off.
func (c *Config) CacheBytes() (int64, error) {
	if c.CacheSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.CacheSize)
	if err != nil {
		return 0, errors.Wrapf(err, "cache_size %q", c.CacheSize)
	}
	return int64(n), nil
}

// RetryPolicy returns the fetch retry policy, or nil when retries are off.
func (c *Config) RetryPolicy() (*source.Retry, error) {
	if c.Retry == nil {
		return nil, nil
	}
	policy := source.DefaultRetry()
	if c.Retry.Attempts > 0 {
		policy.Attempts = c.Retry.Attempts
	}
	for _, d := range []struct {
		val string
		dst *time.Duration
	}{{c.Retry.Min, &policy.Min}, {c.Retry.Max, &policy.Max}} {
		if d.val == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.val)
		if err != nil {
			return nil, errors.Wrapf(err, "retry duration %q", d.val)
		}
		*d.dst = parsed
	}
	return &policy, nil
}
