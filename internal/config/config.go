// Package config loads pgq settings from pgq.ini and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shipq/pgq/dburl"
	"github.com/shipq/pgq/inifile"
	"github.com/shipq/pgq/query/compile"
)

// ConfigFilename is the name of the config file.
const ConfigFilename = "pgq.ini"

// ValidLogFormats is the list of supported log formats.
var ValidLogFormats = []string{"json", "pretty", "text"}

var ErrNoDatabaseURL = errors.New("no database URL: set [db] url in pgq.ini, PGQ_DB_URL or DATABASE_URL")

// Config holds the complete configuration.
type Config struct {
	// ConfigDir is the directory pgq.ini was looked up in.
	ConfigDir string
	// FromFile is false when no pgq.ini exists and only defaults and the
	// environment apply.
	FromFile bool

	DB      DBConfig
	Compile CompileConfig
	Log     LogConfig
}

// DBConfig holds the [db] section.
type DBConfig struct {
	URL string
	// Queries is the IR document the CLI reads named queries from.
	Queries string
}

// CompileConfig holds the [compile] section.
type CompileConfig struct {
	BindLimit int
}

// LogConfig holds the [log] section.
type LogConfig struct {
	Format string
	Level  string
}

// Options returns the compile options the config selects.
func (c CompileConfig) Options() []compile.Option {
	return []compile.Option{compile.WithBindLimit(c.BindLimit)}
}

// RequireURL returns the database URL or ErrNoDatabaseURL.
func (c *Config) RequireURL() (string, error) {
	if c.DB.URL == "" {
		return "", ErrNoDatabaseURL
	}
	return c.DB.URL, nil
}

// QueriesPath is the IR document path, resolved against ConfigDir when
// relative.
func (c *Config) QueriesPath() string {
	if filepath.IsAbs(c.DB.Queries) {
		return c.DB.Queries
	}
	return filepath.Join(c.ConfigDir, c.DB.Queries)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.queries", "queries.yaml")
	v.SetDefault("compile.bind_limit", compile.DefaultBindLimit)
	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
}

// Load reads pgq.ini from dir (or CWD if empty). A .env file next to it is
// loaded into the environment first without overriding variables already
// set. A missing pgq.ini is not an error.
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if err := v.BindEnv("db.url", "PGQ_DB_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("PGQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{ConfigDir: dir}

	iniPath := filepath.Join(dir, ConfigFilename)
	f, err := inifile.ParseFile(iniPath)
	switch {
	case err == nil:
		if err := v.MergeConfigMap(f.Map()); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", ConfigFilename, err)
		}
		cfg.FromFile = true
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFilename, err)
	}

	cfg.DB = DBConfig{
		URL:     v.GetString("db.url"),
		Queries: v.GetString("db.queries"),
	}
	cfg.Compile = CompileConfig{BindLimit: v.GetInt("compile.bind_limit")}
	cfg.Log = LogConfig{
		Format: strings.ToLower(v.GetString("log.format")),
		Level:  strings.ToLower(v.GetString("log.level")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.URL != "" {
		if err := dburl.Validate(c.DB.URL); err != nil {
			return fmt.Errorf("db.url: %w", err)
		}
	}
	if c.Compile.BindLimit <= 0 || c.Compile.BindLimit > compile.DefaultBindLimit {
		return fmt.Errorf("compile.bind_limit must be between 1 and %d, got %d",
			compile.DefaultBindLimit, c.Compile.BindLimit)
	}
	valid := false
	for _, f := range ValidLogFormats {
		if c.Log.Format == f {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("invalid log.format %q (valid: %s)", c.Log.Format, strings.Join(ValidLogFormats, ", "))
	}
	return nil
}

// WriteDefault writes a pgq.ini holding the default settings into dir. It
// refuses to overwrite an existing file.
func WriteDefault(dir, dbURL string) (string, error) {
	path := filepath.Join(dir, ConfigFilename)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists in %s", ConfigFilename, dir)
	}

	v := viper.New()
	setDefaults(v)
	if dbURL != "" {
		if err := dburl.Validate(dbURL); err != nil {
			return "", err
		}
		v.Set("db.url", dbURL)
	}

	f, err := inifile.FromMap(v.AllSettings())
	if err != nil {
		return "", err
	}
	if err := f.WriteFile(path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
