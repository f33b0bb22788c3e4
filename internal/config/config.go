package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for journal-sync.
// Command-line flags override individual fields before Finalize runs.
type Config struct {
	// Remote application endpoint and credentials. Only required by
	// commands that talk to the remote, see RequireRemote.
	FoundryURL      string `env:"FOUNDRY_URL" validate:"omitempty,url"`
	FoundryUser     string `env:"FOUNDRY_USER" envDefault:"Gamemaster" validate:"required"`
	FoundryPassword string `env:"FOUNDRY_SYNC_PASSWORD"`

	// Root of the local journal tree.
	RootDir string `env:"ROOT_DIR" envDefault:"./journal" validate:"required"`

	// Local text format pages are written in. Must name an entry of the
	// format table.
	TargetFormat string `env:"TARGET_FORMAT" envDefault:"org" validate:"required"`

	// Optional YAML file extending or overriding the built-in format table.
	FormatsFile string `env:"FORMATS_FILE"`

	// Metadata database. Relative paths are resolved against RootDir.
	MetadataDB string `env:"METADATA_DB" envDefault:".journal-sync.db" validate:"required"`

	// Doublestar patterns, relative to RootDir, excluded from local reads.
	IgnorePatterns []string `env:"IGNORE_PATTERNS" envSeparator:","`

	PandocPath string `env:"PANDOC_PATH" envDefault:"pandoc" validate:"required"`

	// How long a downloaded remote tree is reused for upload decisions.
	// Zero disables the cache.
	RemoteCacheTTL time.Duration `env:"REMOTE_CACHE_TTL" envDefault:"5m" validate:"gte=0"`

	// Timeout for a single remote request.
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"60s" validate:"gt=0"`

	// When true, a local folder or entry whose parent has no metadata
	// fails instead of being treated as root-level.
	StrictParents bool `env:"STRICT_PARENTS" envDefault:"false"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development" validate:"oneof=development production"`

	// Optional rotating log file in addition to stdout.
	LogFile string `env:"LOG_FILE"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file usually carries the remote
// password.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Finalize validates the configuration and resolves RootDir to an
// absolute path. It is safe to call more than once, which the CLI does
// after applying flag overrides.
func (c *Config) Finalize() error {
	c.TargetFormat = strings.ToLower(strings.TrimSpace(c.TargetFormat))
	c.IgnorePatterns = compact(c.IgnorePatterns)

	if err := c.validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Path containment checks in the projector compare string prefixes,
	// which only works with absolute paths.
	absDir, err := filepath.Abs(c.RootDir)
	if err != nil {
		return fmt.Errorf("resolving root dir to absolute path: %w", err)
	}

	c.RootDir = absDir

	return nil
}

func (c *Config) validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
		return name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}

	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}

// RequireRemote checks the settings needed by commands that contact the
// remote application.
func (c *Config) RequireRemote() error {
	if c.FoundryURL == "" {
		return fmt.Errorf("FOUNDRY_URL is required for remote commands")
	}

	if c.FoundryPassword == "" {
		return fmt.Errorf("FOUNDRY_SYNC_PASSWORD is required for remote commands")
	}

	return nil
}

// MetadataPath returns the absolute path of the metadata database.
func (c *Config) MetadataPath() string {
	if filepath.IsAbs(c.MetadataDB) {
		return c.MetadataDB
	}

	return filepath.Join(c.RootDir, c.MetadataDB)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}
