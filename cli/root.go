// Package cli implements the opsql command line: compiling query files to
// dialect SQL, running them against a database and watching them for
// changes.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/shipq/opsql/internal/config"
	"github.com/shipq/opsql/internal/project"
	"github.com/shipq/opsql/internal/queryfile"
	"github.com/shipq/opsql/logging"
	"github.com/shipq/opsql/query/compile"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string
	LogFormat string
	ConfigDir string

	config *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command for the opsql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "opsql",
		Short: "Compile query operation sequences to SQL",
		Long: `opsql compiles operation sequences (where, select, orderBy, skip, take,
joins, aggregates, insert, update, delete) into SQL for SQL Server, Oracle,
MySQL, PostgreSQL and SQLite, with parameters in text order.

Settings are read from the nearest opsql.ini in the working directory or
one of its parents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log compiled and executed SQL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|pretty), overrides opsql.ini")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "", "directory containing opsql.ini (default: nearest enclosing directory with one)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewDialectsCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))

	return cmd
}

func (opts *RootOptions) setup(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, opts.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
	}

	dir, err := project.ConfigDir(opts.ConfigDir)
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return err
	}
	opts.config = cfg

	format := cfg.Log.Format
	if opts.LogFormat != "" {
		if format, err = logging.ParseFormat(opts.LogFormat); err != nil {
			return err
		}
	}
	level := cfg.Log.Level
	if opts.Verbose {
		level = slog.LevelDebug
	}
	opts.logger = logging.New(cmd.ErrOrStderr(), format, level)
	return nil
}

func (opts *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
}

// compilerFor loads a query file and builds a compiler for d over the
// file's entities.
func (opts *RootOptions) compilerFor(path string, d compile.Dialect, literal bool) (*queryfile.File, *compile.Compiler, error) {
	f, err := queryfile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	reg, err := f.Registry()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	copts := append(opts.config.CompilerOptions(), compile.WithLogger(opts.logger))
	if literal {
		copts = append(copts, compile.WithParameterized(false))
	}
	return f, compile.NewCompiler(d, reg, copts...), nil
}

// dialect resolves the dialect flag, falling back to opsql.ini.
func (opts *RootOptions) dialect(flag string) (compile.Dialect, error) {
	if flag != "" {
		return compile.DialectByName(flag)
	}
	return opts.config.Dialect()
}
