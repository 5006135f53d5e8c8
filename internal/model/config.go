package model

import (
	"fmt"
	"time"
)

// Advisory modes
const (
	AdvisoryModeOff    = "off"
	AdvisoryModeErrors = "errors"
	AdvisoryModeAll    = "all"
)

// Config is the complete application configuration
type Config struct {
	Rules       RulesConfig       `mapstructure:"rules" yaml:"rules"`
	Validation  ValidationConfig  `mapstructure:"validation" yaml:"validation"`
	Advisory    AdvisoryConfig    `mapstructure:"advisory" yaml:"advisory"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// RulesConfig locates and caches rule documents
type RulesConfig struct {
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	DefaultTenant string        `mapstructure:"default_tenant" yaml:"default_tenant"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// ValidationConfig tunes the static stages
type ValidationConfig struct {
	MedicalEngine  bool     `mapstructure:"medical_engine" yaml:"medical_engine"`
	ExpectedFields []string `mapstructure:"expected_fields" yaml:"expected_fields"`
}

// AdvisoryConfig configures the LLM-backed advisory evaluator
type AdvisoryConfig struct {
	Mode              string  `mapstructure:"mode" yaml:"mode"`
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Model             string  `mapstructure:"model" yaml:"model"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout           int     `mapstructure:"timeout" yaml:"timeout"` // seconds
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Workers           int     `mapstructure:"workers" yaml:"workers"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	TopK              int     `mapstructure:"top_k" yaml:"top_k"`
	AssumeMedicalPass bool    `mapstructure:"assume_medical_pass_without_rules" yaml:"assume_medical_pass_without_rules"`
	HTTPProxy         string  `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy        string  `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy           string  `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// DatabaseConfig enables the Postgres store when URL is set
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url,omitempty"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns int32  `mapstructure:"min_conns" yaml:"min_conns"`
}

// OutputConfig controls rendered results
type OutputConfig struct {
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	Formats []string `mapstructure:"formats" yaml:"formats"` // json, parquet
	Verbose bool     `mapstructure:"verbose" yaml:"verbose"`
	JSONLog bool     `mapstructure:"json_log" yaml:"json_log"`
}

// ConcurrencyConfig bounds multi-file processing
type ConcurrencyConfig struct {
	Files int `mapstructure:"files" yaml:"files"`
}

// MetricsConfig controls Prometheus textfile export
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"`
}

// DefaultExpectedFields are the columns a complete claim row carries
func DefaultExpectedFields() []string {
	return []string{
		"encounter_type",
		"service_date",
		"national_id",
		"member_id",
		"facility_id",
		"service_code",
		"paid_amount_aed",
	}
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Rules: RulesConfig{
			Dir:           "./rules",
			DefaultTenant: "default",
			CacheTTL:      time.Hour,
		},
		Validation: ValidationConfig{
			MedicalEngine:  true,
			ExpectedFields: DefaultExpectedFields(),
		},
		Advisory: AdvisoryConfig{
			Mode:              AdvisoryModeOff,
			Provider:          "",
			Model:             "gpt-4o-mini",
			Timeout:           60,
			MaxTokens:         2000,
			Workers:           4,
			RequestsPerSecond: 2,
			Burst:             4,
			TopK:              30,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			MinConns: 1,
		},
		Output: OutputConfig{
			Dir:     "./claimcheck-results",
			Formats: []string{"json"},
		},
		Concurrency: ConcurrencyConfig{
			Files: 2,
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.Advisory.Mode {
	case AdvisoryModeOff, AdvisoryModeErrors, AdvisoryModeAll:
	default:
		return fmt.Errorf("advisory.mode must be one of off, errors, all (got %q)", c.Advisory.Mode)
	}
	if c.Advisory.Mode != AdvisoryModeOff && c.Advisory.Provider == "" {
		return fmt.Errorf("advisory.provider is required when advisory.mode is %q", c.Advisory.Mode)
	}
	if c.Rules.DefaultTenant == "" {
		return fmt.Errorf("rules.default_tenant must not be empty")
	}
	for _, f := range c.Output.Formats {
		if f != "json" && f != "parquet" {
			return fmt.Errorf("output.formats: unsupported format %q (supported: json, parquet)", f)
		}
	}
	return nil
}
