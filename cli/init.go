package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shipq/opsql/dburl"
	"github.com/shipq/opsql/internal/config"
	"github.com/shipq/opsql/query/compile"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Dialect     string
	DatabaseURL string
	Force       bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an opsql.ini with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "default dialect")
	cmd.Flags().StringVar(&opts.DatabaseURL, "db", "", "database URL")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing opsql.ini")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	dir := opts.ConfigDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = wd
	}

	exists, err := config.Exists(dir)
	if err != nil {
		return err
	}
	if exists && !opts.Force {
		return fmt.Errorf("%s already exists in %s (use --force to overwrite)", config.ConfigFilename, dir)
	}

	cfg := config.Default()
	cfg.Database.URL = ""
	if opts.Dialect != "" {
		d, err := compile.DialectByName(opts.Dialect)
		if err != nil {
			return err
		}
		cfg.Compiler.Dialect = d.Name()
	}
	if opts.DatabaseURL != "" {
		if _, err := dburl.InferDialectFromDBUrl(opts.DatabaseURL); err != nil {
			return err
		}
		cfg.Database.URL = opts.DatabaseURL
	}

	if err := cfg.Write(dir); err != nil {
		return err
	}
	opts.printer(cmd).Successf("wrote %s", config.ConfigFilename)
	return nil
}
