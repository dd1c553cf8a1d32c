// Package config loads project settings from opsql.ini.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shipq/opsql/dburl"
	"github.com/shipq/opsql/inifile"
	"github.com/shipq/opsql/logging"
	"github.com/shipq/opsql/query/compile"
)

// ConfigFilename is the name of the project config file.
const ConfigFilename = "opsql.ini"

// ErrConfigNotFound is returned by Load when opsql.ini is missing.
var ErrConfigNotFound = errors.New(ConfigFilename + " not found")

// Config holds the settings from opsql.ini.
type Config struct {
	// ConfigDir is the directory holding opsql.ini; "" when defaults are used.
	ConfigDir string

	Compiler CompilerConfig
	Database DatabaseConfig
	Log      LogConfig
}

// CompilerConfig is the [compiler] section.
type CompilerConfig struct {
	// Dialect is a compile.DialectByName name. Empty means infer from the
	// database URL.
	Dialect       string
	Parameterized bool
	MaxParameters int
}

// DatabaseConfig is the [database] section.
type DatabaseConfig struct {
	URL string
}

// LogConfig is the [log] section.
type LogConfig struct {
	Format logging.Format
	Level  slog.Level
}

// Default returns the settings used without an opsql.ini.
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Parameterized: true,
			MaxParameters: compile.DefaultMaxParameters,
		},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Log:      LogConfig{Format: logging.FormatJSON, Level: slog.LevelInfo},
	}
}

// Load reads opsql.ini from dir (or the working directory when dir is "").
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	path := filepath.Join(dir, ConfigFilename)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrConfigNotFound, dir)
	}

	f, err := inifile.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFilename, err)
	}

	cfg := Default()
	cfg.ConfigDir = dir
	if err := cfg.apply(f); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigFilename, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load that falls back to Default when opsql.ini is
// missing.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Is(err, ErrConfigNotFound) {
		return Default(), nil
	}
	return cfg, err
}

func (cfg *Config) apply(f *inifile.File) error {
	var err error

	if v := f.Get("compiler", "dialect"); v != "" {
		d, err := compile.DialectByName(v)
		if err != nil {
			return fmt.Errorf("invalid compiler.dialect: %w", err)
		}
		cfg.Compiler.Dialect = d.Name()
	}
	if cfg.Compiler.Parameterized, err = f.Bool("compiler", "parameterized", cfg.Compiler.Parameterized); err != nil {
		return err
	}
	if cfg.Compiler.MaxParameters, err = f.Int("compiler", "max_parameters", cfg.Compiler.MaxParameters); err != nil {
		return err
	}
	if cfg.Compiler.MaxParameters <= 0 {
		return fmt.Errorf("compiler.max_parameters must be positive, got %d", cfg.Compiler.MaxParameters)
	}

	if v := f.Get("database", "url"); v != "" {
		if _, err := dburl.InferDialectFromDBUrl(v); err != nil {
			return fmt.Errorf("invalid database.url: %w", err)
		}
		cfg.Database.URL = v
	}

	if cfg.Log.Format, err = logging.ParseFormat(f.Get("log", "format")); err != nil {
		return err
	}
	if cfg.Log.Level, err = logging.ParseLevel(f.Get("log", "level")); err != nil {
		return err
	}
	return nil
}

// Dialect returns the configured dialect, or the one implied by the
// database URL.
func (cfg *Config) Dialect() (compile.Dialect, error) {
	if cfg.Compiler.Dialect != "" {
		return compile.DialectByName(cfg.Compiler.Dialect)
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("no dialect configured: set compiler.dialect or database.url")
	}
	name, err := dburl.InferDialectFromDBUrl(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return compile.DialectByName(name)
}

// CompilerOptions turns the [compiler] settings into compile options.
func (cfg *Config) CompilerOptions() []compile.Option {
	return []compile.Option{
		compile.WithParameterized(cfg.Compiler.Parameterized),
		compile.WithMaxParameters(cfg.Compiler.MaxParameters),
	}
}

// Write stores cfg as opsql.ini in dir.
func (cfg *Config) Write(dir string) error {
	f := &inifile.File{}
	if cfg.Compiler.Dialect != "" {
		f.Set("compiler", "dialect", cfg.Compiler.Dialect)
	}
	f.Set("compiler", "parameterized", fmt.Sprint(cfg.Compiler.Parameterized))
	f.Set("compiler", "max_parameters", fmt.Sprint(cfg.Compiler.MaxParameters))
	if cfg.Database.URL != "" {
		f.Set("database", "url", cfg.Database.URL)
	}
	f.Set("log", "format", string(cfg.Log.Format))
	f.Set("log", "level", cfg.Log.Level.String())
	return f.WriteFile(filepath.Join(dir, ConfigFilename))
}

// Exists reports whether opsql.ini exists in dir.
func Exists(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ConfigFilename))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
