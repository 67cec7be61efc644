// Package config loads and validates the archiver configuration from the
// environment. Every value the processing pipeline depends on is injected
// here; invalid configuration refuses to start rather than silently
// misprocessing every record.
package config

import (
	"compress/gzip"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/kinarch/kinarch/partition"
)

// StartingPosition controls where the poller begins reading shards it has
// not seen before.
type StartingPosition string

const (
	StartingPositionTrimHorizon StartingPosition = "TRIM_HORIZON"
	StartingPositionLatest      StartingPosition = "LATEST"
)

// MaxRecordsPerBatch is the Kinesis GetRecords limit on records per call.
const MaxRecordsPerBatch = 10000

// Config holds the full configuration surface of the archiver.
type Config struct {
	// destination
	Bucket string `mapstructure:"log_s3_bucket"`
	Prefix string `mapstructure:"log_s3_prefix"`

	// field names used to classify decoded entries
	IDField        string `mapstructure:"log_id_field"`
	TypeField      string `mapstructure:"log_type_field"`
	TimestampField string `mapstructure:"log_timestamp_field"`

	// classification policy
	UnknownTypePrefix string `mapstructure:"log_type_unknown_prefix"`
	// TypeWhitelist arrives as a single comma-separated env value and is
	// split and trimmed after unmarshalling
	TypeWhitelist []string `mapstructure:"-"`

	// partitioning
	TimeBucket string `mapstructure:"time_bucket"`

	// batching and writing
	MaxBatchSize        int `mapstructure:"max_batch_size"`
	WriteMaxRetries     int `mapstructure:"write_max_retries"`
	WriteMinRetryDelay  int `mapstructure:"write_min_retry_delay_ms"`
	WriteMaxConcurrency int `mapstructure:"write_max_concurrency"`
	// WriteRateLimit caps destination writes per second; 0 disables the
	// rate limit, leaving only the concurrency cap
	WriteRateLimit float64 `mapstructure:"write_rate_limit"`
	WriteRateBurst int     `mapstructure:"write_rate_burst"`

	GzipLevel           int  `mapstructure:"gzip_level"`
	RetryDecodeFailures bool `mapstructure:"retry_decode_failures"`

	// stream consumption
	StreamName       string `mapstructure:"stream_name"`
	StartingPosition string `mapstructure:"starting_position"`

	// AWS client setup
	Region      string `mapstructure:"aws_region"`
	Profile     string `mapstructure:"aws_profile"`
	AccessKey   string `mapstructure:"aws_access_key_id"`
	SecretKey   string `mapstructure:"aws_secret_access_key"`
	EndpointURL string `mapstructure:"aws_endpoint_url"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("log_id_field", "log_id")
	v.SetDefault("log_type_field", "log_type")
	v.SetDefault("log_timestamp_field", "time")
	v.SetDefault("log_type_unknown_prefix", "unknown")
	v.SetDefault("time_bucket", string(partition.GranularityHour))
	v.SetDefault("max_batch_size", 100)
	v.SetDefault("write_max_retries", 4)
	v.SetDefault("write_min_retry_delay_ms", 25)
	v.SetDefault("write_max_concurrency", 5)
	v.SetDefault("write_rate_limit", 0.0)
	v.SetDefault("write_rate_burst", 1)
	v.SetDefault("gzip_level", gzip.BestCompression)
	v.SetDefault("retry_decode_failures", false)
	v.SetDefault("starting_position", string(StartingPositionTrimHorizon))

	v.AutomaticEnv()

	// viper needs explicit bindings for keys that are only set via env
	for _, key := range []string{
		"log_s3_bucket", "log_s3_prefix",
		"log_id_field", "log_type_field", "log_timestamp_field",
		"log_type_unknown_prefix", "log_type_whitelist",
		"time_bucket", "max_batch_size",
		"write_max_retries", "write_min_retry_delay_ms", "write_max_concurrency",
		"write_rate_limit", "write_rate_burst",
		"gzip_level", "retry_decode_failures",
		"stream_name", "starting_position",
		"aws_region", "aws_profile", "aws_access_key_id", "aws_secret_access_key", "aws_endpoint_url",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.TypeWhitelist = splitWhitelist(v.GetString("log_type_whitelist"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, returning an error describing every
// problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Bucket == "" {
		errs = append(errs, errors.New("log_s3_bucket is required"))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("log_s3_prefix is required"))
	}
	if c.IDField == "" {
		errs = append(errs, errors.New("log_id_field must not be empty"))
	}
	if c.TypeField == "" {
		errs = append(errs, errors.New("log_type_field must not be empty"))
	}
	if c.TimestampField == "" {
		errs = append(errs, errors.New("log_timestamp_field must not be empty"))
	}
	if c.UnknownTypePrefix == "" {
		errs = append(errs, errors.New("log_type_unknown_prefix must not be empty"))
	}
	for _, t := range c.TypeWhitelist {
		if strings.ContainsAny(t, "/ ") {
			errs = append(errs, fmt.Errorf("invalid whitelist entry %q: types must not contain slashes or spaces", t))
		}
	}
	if _, err := partition.ParseGranularity(c.TimeBucket); err != nil {
		errs = append(errs, err)
	}
	if c.MaxBatchSize < 1 || c.MaxBatchSize > MaxRecordsPerBatch {
		errs = append(errs, fmt.Errorf("max_batch_size must be between 1 and %d, got %d", MaxRecordsPerBatch, c.MaxBatchSize))
	}
	if c.WriteMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("write_max_retries must not be negative, got %d", c.WriteMaxRetries))
	}
	if c.WriteMinRetryDelay < 1 {
		errs = append(errs, fmt.Errorf("write_min_retry_delay_ms must be at least 1, got %d", c.WriteMinRetryDelay))
	}
	if c.WriteMaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("write_max_concurrency must be at least 1, got %d", c.WriteMaxConcurrency))
	}
	if c.WriteRateLimit < 0 {
		errs = append(errs, fmt.Errorf("write_rate_limit must not be negative, got %v", c.WriteRateLimit))
	}
	if c.WriteRateLimit > 0 && c.WriteRateBurst < 1 {
		errs = append(errs, fmt.Errorf("write_rate_burst must be at least 1 when write_rate_limit is set, got %d", c.WriteRateBurst))
	}
	if c.GzipLevel < gzip.BestSpeed || c.GzipLevel > gzip.BestCompression {
		errs = append(errs, fmt.Errorf("gzip_level must be between %d and %d, got %d", gzip.BestSpeed, gzip.BestCompression, c.GzipLevel))
	}
	switch StartingPosition(c.StartingPosition) {
	case StartingPositionTrimHorizon, StartingPositionLatest:
	default:
		errs = append(errs, fmt.Errorf("invalid starting_position %q: expected TRIM_HORIZON or LATEST", c.StartingPosition))
	}

	return errors.Join(errs...)
}

// Granularity returns the parsed time-bucket granularity.
// Validate must have succeeded first.
func (c *Config) Granularity() partition.Granularity {
	g, _ := partition.ParseGranularity(c.TimeBucket)
	return g
}

func splitWhitelist(s string) []string {
	if s == "" {
		return nil
	}
	var types []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types = append(types, t)
		}
	}
	return types
}
