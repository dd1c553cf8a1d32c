package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shipq/opsql/logging"
	"github.com/shipq/opsql/query/compile"
)

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("error should name the directory, got: %v", err)
	}

	cfg, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.ConfigDir != "" {
		t.Errorf("defaults should not carry a ConfigDir, got %q", cfg.ConfigDir)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	writeFile(t, dir, ConfigFilename, "")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConfigDir != dir {
		t.Errorf("ConfigDir = %q", cfg.ConfigDir)
	}
	if !cfg.Compiler.Parameterized {
		t.Error("parameterized should default to true")
	}
	if cfg.Compiler.MaxParameters != compile.DefaultMaxParameters {
		t.Errorf("max_parameters = %d", cfg.Compiler.MaxParameters)
	}
	if cfg.Log.Format != logging.FormatJSON || cfg.Log.Level != slog.LevelInfo {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_AllSections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFilename, `
[compiler]
dialect = MSSQL
parameterized = false
max_parameters = 2100

[database]
url = postgres://localhost/app

[log]
format = pretty
level = debug
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Compiler.Dialect != "sqlserver" {
		t.Errorf("dialect = %q, want the canonical name", cfg.Compiler.Dialect)
	}
	if cfg.Compiler.Parameterized {
		t.Error("parameterized should be false")
	}
	if cfg.Compiler.MaxParameters != 2100 {
		t.Errorf("max_parameters = %d", cfg.Compiler.MaxParameters)
	}
	if cfg.Database.URL != "postgres://localhost/app" {
		t.Errorf("url = %q", cfg.Database.URL)
	}
	if cfg.Log.Format != logging.FormatPretty || cfg.Log.Level != slog.LevelDebug {
		t.Errorf("log = %+v", cfg.Log)
	}

	d, err := cfg.Dialect()
	if err != nil {
		t.Fatal(err)
	}
	if d != compile.SQLServer {
		t.Errorf("explicit dialect should win over the URL, got %s", d.Name())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown dialect", "[compiler]\ndialect = db2\n", "compiler.dialect"},
		{"bad boolean", "[compiler]\nparameterized = maybe\n", "compiler.parameterized"},
		{"bad integer", "[compiler]\nmax_parameters = lots\n", "compiler.max_parameters"},
		{"zero limit", "[compiler]\nmax_parameters = 0\n", "must be positive"},
		{"unknown url scheme", "[database]\nurl = mongodb://x/y\n", "database.url"},
		{"bad log format", "[log]\nformat = xml\n", "unknown format"},
		{"bad log level", "[log]\nlevel = loud\n", "unknown level"},
		{"malformed line", "[compiler\n", "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ConfigFilename, tt.content)

			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://root@localhost/app")
	dir := t.TempDir()
	writeFile(t, dir, ConfigFilename, "[log]\nlevel = warn\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.URL != "mysql://root@localhost/app" {
		t.Errorf("url = %q", cfg.Database.URL)
	}
	d, err := cfg.Dialect()
	if err != nil {
		t.Fatal(err)
	}
	if d != compile.MySQL {
		t.Errorf("dialect = %s, want inferred mysql", d.Name())
	}

	writeFile(t, dir, ConfigFilename, "[database]\nurl = sqlite:app.db\n")
	cfg, err = Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.URL != "sqlite:app.db" {
		t.Errorf("the file should win over DATABASE_URL, got %q", cfg.Database.URL)
	}
}

func TestDialectRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Default().Dialect(); err == nil {
		t.Error("expected an error without dialect or URL")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Compiler.Dialect = "oracle"
	cfg.Compiler.MaxParameters = 500
	cfg.Database.URL = "oracle://scott@localhost/XE"
	cfg.Log.Level = slog.LevelDebug

	if err := cfg.Write(dir); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ok, err := Exists(dir)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	back, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Compiler != cfg.Compiler || back.Database != cfg.Database || back.Log != cfg.Log {
		t.Errorf("round trip changed settings:\n got %+v\nwant %+v", back, cfg)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()

	exists, err := Exists(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected opsql.ini to not exist")
	}

	writeFile(t, dir, ConfigFilename, "")
	exists, err = Exists(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected opsql.ini to exist")
	}
}

func TestCompilerOptions(t *testing.T) {
	cfg := Default()
	cfg.Compiler.Parameterized = false
	c := compile.NewCompiler(compile.SQLite, nil, cfg.CompilerOptions()...)
	if c.Dialect() != compile.SQLite {
		t.Errorf("dialect = %s", c.Dialect().Name())
	}
	if got := len(cfg.CompilerOptions()); got != 2 {
		t.Errorf("got %d options", got)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}
