// Package config loads installer settings from an optional config file,
// MEI_* environment variables and built-in defaults, in that order of
// precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
	"github.com/maithemewp/mai-engine-installer/internal/installer"
	"github.com/maithemewp/mai-engine-installer/internal/lock"
	"github.com/maithemewp/mai-engine-installer/internal/migrate"
)

// EnvPrefix is prepended to every environment override, e.g.
// MEI_DESCRIPTOR_PATH overrides descriptor.path.
const EnvPrefix = "MEI"

// StateDir holds the registry and log file under the site root.
const StateDir = ".mei"

// Config holds all configuration settings for the installer.
type Config struct {
	SiteRoot string `mapstructure:"site_root"`

	Descriptor struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"descriptor"`

	Migration struct {
		LegacyURIs  []string `mapstructure:"legacy_uris"`
		MissingFile string   `mapstructure:"missing_file"`
		EmptyFile   string   `mapstructure:"empty_file"`
		Backup      bool     `mapstructure:"backup"`
	} `mapstructure:"migration"`

	Replacement struct {
		Name     string `mapstructure:"name"`
		Host     string `mapstructure:"host"`
		Slug     string `mapstructure:"slug"`
		URI      string `mapstructure:"uri"`
		Branch   string `mapstructure:"branch"`
		Optional bool   `mapstructure:"optional"`
		// Token is written as null when empty.
		Token string `mapstructure:"token"`
	} `mapstructure:"replacement"`

	Components struct {
		Legacy string `mapstructure:"legacy"`
		Self   string `mapstructure:"self"`
	} `mapstructure:"components"`

	Registry struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"registry"`

	Lock struct {
		Timeout    time.Duration `mapstructure:"timeout"`
		RetryDelay time.Duration `mapstructure:"retry_delay"`
		Dir        string        `mapstructure:"dir"`
	} `mapstructure:"lock"`

	Log struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Verbose    bool   `mapstructure:"verbose"`
	} `mapstructure:"log"`

	Watch struct {
		Debounce time.Duration `mapstructure:"debounce"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"watch"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	rep := migrate.DefaultReplacement()
	lk := lock.DefaultOptions()

	v.SetDefault("site_root", ".")
	v.SetDefault("descriptor.path", "")
	v.SetDefault("migration.legacy_uris", migrate.DefaultLegacyURIs())
	v.SetDefault("migration.missing_file", string(migrate.MissingSkip))
	v.SetDefault("migration.empty_file", string(migrate.EmptyInitialize))
	v.SetDefault("migration.backup", false)
	v.SetDefault("replacement.name", rep.Name)
	v.SetDefault("replacement.host", rep.Host)
	v.SetDefault("replacement.slug", rep.Slug)
	v.SetDefault("replacement.uri", rep.URI)
	v.SetDefault("replacement.branch", rep.Branch)
	v.SetDefault("replacement.optional", rep.Optional)
	v.SetDefault("replacement.token", "")
	v.SetDefault("components.legacy", installer.LegacyComponentID)
	v.SetDefault("components.self", installer.SelfComponentID)
	v.SetDefault("registry.path", "")
	v.SetDefault("lock.timeout", lk.Timeout)
	v.SetDefault("lock.retry_delay", lk.RetryDelay)
	v.SetDefault("lock.dir", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.verbose", false)
	v.SetDefault("watch.debounce", 250*time.Millisecond)
	v.SetDefault("watch.interval", 30*time.Second)
}

// Load reads configuration. configFile may be empty, in which case an
// optional mei.{yaml,toml,json} in the current directory is used.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("mei")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the migrator would refuse.
func (c *Config) Validate() error {
	if _, err := migrate.ParseMissingFilePolicy(c.Migration.MissingFile); err != nil {
		return err
	}
	if _, err := migrate.ParseEmptyFilePolicy(c.Migration.EmptyFile); err != nil {
		return err
	}
	rec := c.ReplacementRecord()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: replacement: %v", migrate.ErrInvalidOptions, err)
	}
	if len(c.Migration.LegacyURIs) == 0 {
		return fmt.Errorf("%w: migration.legacy_uris is empty", migrate.ErrInvalidOptions)
	}
	for _, uri := range c.Migration.LegacyURIs {
		if uri == c.Replacement.URI {
			return fmt.Errorf("%w: replacement uri %s is also a legacy uri", migrate.ErrInvalidOptions, uri)
		}
	}
	if c.Lock.Timeout < 0 || c.Lock.RetryDelay < 0 {
		return fmt.Errorf("%w: lock durations must not be negative", migrate.ErrInvalidOptions)
	}
	return nil
}

// DescriptorPath returns descriptor.path, or the standard location under
// site_root when it is unset.
func (c *Config) DescriptorPath() string {
	if c.Descriptor.Path != "" {
		return c.Descriptor.Path
	}
	return filepath.Join(c.SiteRoot, filepath.FromSlash(descriptor.DefaultRelPath))
}

// RegistryPath returns registry.path or <site_root>/.mei/registry.db.
func (c *Config) RegistryPath() string {
	if c.Registry.Path != "" {
		return c.Registry.Path
	}
	return filepath.Join(c.SiteRoot, StateDir, "registry.db")
}

// LogPath returns log.file or <site_root>/.mei/mei.log.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.SiteRoot, StateDir, "mei.log")
}

// LockDir returns lock.dir or <site_root>/.mei/locks.
func (c *Config) LockDir() string {
	if c.Lock.Dir != "" {
		return c.Lock.Dir
	}
	return filepath.Join(c.SiteRoot, StateDir, "locks")
}

// ReplacementRecord builds the record written over legacy entries.
func (c *Config) ReplacementRecord() descriptor.Record {
	rec := descriptor.Record{
		Name:     c.Replacement.Name,
		Host:     c.Replacement.Host,
		Slug:     c.Replacement.Slug,
		URI:      c.Replacement.URI,
		Branch:   c.Replacement.Branch,
		Optional: c.Replacement.Optional,
	}
	if c.Replacement.Token != "" {
		token := c.Replacement.Token
		rec.Token = &token
	}
	return rec
}

// MigrationOptions converts the settings into migrator options. Call Validate first.
func (c *Config) MigrationOptions() migrate.Options {
	opts := migrate.DefaultOptions(c.DescriptorPath())
	opts.Replacement = c.ReplacementRecord()
	opts.LegacyURIs = append([]string(nil), c.Migration.LegacyURIs...)
	opts.MissingFile = migrate.MissingFilePolicy(c.Migration.MissingFile)
	opts.EmptyFile = migrate.EmptyFilePolicy(c.Migration.EmptyFile)
	opts.Backup = c.Migration.Backup
	opts.Lock = lock.Options{Timeout: c.Lock.Timeout, RetryDelay: c.Lock.RetryDelay, Dir: c.LockDir()}
	return opts
}
