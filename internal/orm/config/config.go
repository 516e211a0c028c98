// Package config loads ORM behaviour settings
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Naming strategies for hydrated attribute keys
const (
	NamingNone  = "none"
	NamingCamel = "camel"
)

// Config represents the ORM configuration
type Config struct {
	// Environment names the running environment; "testing" enables the
	// lazy-loading test exception
	Environment     string               `mapstructure:"environment"`
	Timestamps      TimestampsConfig     `mapstructure:"timestamps"`
	SoftDeletes     SoftDeletesConfig    `mapstructure:"soft_deletes"`
	EnforceFillable bool                 `mapstructure:"enforce_fillable"`
	MassAssignment  MassAssignmentConfig `mapstructure:"mass_assignment"`
	LazyLoading     LazyLoadingConfig    `mapstructure:"lazy_loading"`
	Dates           DatesConfig          `mapstructure:"dates"`
	Validation      ValidationConfig     `mapstructure:"validation"`
	Naming          NamingConfig         `mapstructure:"naming"`
	Cache           CacheConfig          `mapstructure:"cache"`
}

// TimestampsConfig controls automatic created/updated columns
type TimestampsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CreatedAtColumn string `mapstructure:"created_at_column"`
	UpdatedAtColumn string `mapstructure:"updated_at_column"`
}

// SoftDeletesConfig controls the delete-marker column
type SoftDeletesConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DeletedAtColumn string `mapstructure:"deleted_at_column"`
}

// MassAssignmentConfig decides what happens to rejected keys
type MassAssignmentConfig struct {
	ThrowOnViolation bool `mapstructure:"throw_on_violation"`
}

// LazyLoadingConfig controls the lazy-loading guard
type LazyLoadingConfig struct {
	Prevent          bool     `mapstructure:"prevent"`
	AllowTesting     bool     `mapstructure:"allow_testing"`
	AllowedRelations []string `mapstructure:"allowed_relations"`
}

// DatesConfig controls datetime casts
type DatesConfig struct {
	// Timezone is an IANA name; empty means UTC
	Timezone string `mapstructure:"timezone"`
	// Format is a Go time layout
	Format string `mapstructure:"format"`
}

// ValidationConfig toggles validator calls on save
type ValidationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NamingConfig controls the attribute naming transform
type NamingConfig struct {
	Hydrate string `mapstructure:"hydrate"`
}

// CacheConfig controls the find-by-key row cache
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "production",
		Timestamps: TimestampsConfig{
			Enabled:         true,
			CreatedAtColumn: "created_at",
			UpdatedAtColumn: "updated_at",
		},
		SoftDeletes: SoftDeletesConfig{
			Enabled:         false,
			DeletedAtColumn: "deleted_at",
		},
		EnforceFillable: true,
		MassAssignment:  MassAssignmentConfig{ThrowOnViolation: true},
		LazyLoading: LazyLoadingConfig{
			AllowedRelations: []string{},
		},
		Dates: DatesConfig{
			Format: time.RFC3339,
		},
		Validation: ValidationConfig{Enabled: true},
		Naming:     NamingConfig{Hydrate: NamingNone},
		Cache:      CacheConfig{TTL: 5 * time.Minute},
	}
}

// Load reads configuration from path, or from orm.yml in the working
// directory when path is empty. Environment variables prefixed with ORM_
// override file values (ORM_LAZY_LOADING_PREVENT=true).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("orm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix("orm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("environment", d.Environment)
	v.SetDefault("timestamps.enabled", d.Timestamps.Enabled)
	v.SetDefault("timestamps.created_at_column", d.Timestamps.CreatedAtColumn)
	v.SetDefault("timestamps.updated_at_column", d.Timestamps.UpdatedAtColumn)
	v.SetDefault("soft_deletes.enabled", d.SoftDeletes.Enabled)
	v.SetDefault("soft_deletes.deleted_at_column", d.SoftDeletes.DeletedAtColumn)
	v.SetDefault("enforce_fillable", d.EnforceFillable)
	v.SetDefault("mass_assignment.throw_on_violation", d.MassAssignment.ThrowOnViolation)
	v.SetDefault("lazy_loading.prevent", d.LazyLoading.Prevent)
	v.SetDefault("lazy_loading.allow_testing", d.LazyLoading.AllowTesting)
	v.SetDefault("lazy_loading.allowed_relations", d.LazyLoading.AllowedRelations)
	v.SetDefault("dates.timezone", d.Dates.Timezone)
	v.SetDefault("dates.format", d.Dates.Format)
	v.SetDefault("validation.enabled", d.Validation.Enabled)
	v.SetDefault("naming.hydrate", d.Naming.Hydrate)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

// Validate checks option values that cannot be caught by decoding
func (c *Config) Validate() error {
	switch c.Naming.Hydrate {
	case "", NamingNone, NamingCamel:
	default:
		return fmt.Errorf("naming.hydrate must be %q or %q, got: %s", NamingNone, NamingCamel, c.Naming.Hydrate)
	}
	if c.Dates.Format == "" {
		return fmt.Errorf("dates.format must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Timestamps.Enabled && (c.Timestamps.CreatedAtColumn == "" || c.Timestamps.UpdatedAtColumn == "") {
		return fmt.Errorf("timestamps columns must be set when timestamps are enabled")
	}
	if c.SoftDeletes.DeletedAtColumn == "" {
		return fmt.Errorf("soft_deletes.deleted_at_column must not be empty")
	}
	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Dates.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Dates.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid dates.timezone %q: %w", c.Dates.Timezone, err)
	}
	return loc, nil
}

// IsTesting reports whether the environment is the test environment
func (c *Config) IsTesting() bool {
	return strings.EqualFold(c.Environment, "testing")
}

// CamelCase reports whether hydrated keys are camel-cased
func (c *Config) CamelCase() bool {
	return c.Naming.Hydrate == NamingCamel
}
