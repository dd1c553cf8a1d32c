package cli

import (
	"github.com/spf13/cobra"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
	Literal bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Print the SQL and parameters of every statement in a query file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "target dialect (default: from opsql.ini)")
	cmd.Flags().BoolVar(&opts.Literal, "literal", false, "inline literals instead of bound parameters")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command, path string) error {
	d, err := opts.dialect(opts.Dialect)
	if err != nil {
		return err
	}
	f, c, err := opts.compilerFor(path, d, opts.Literal)
	if err != nil {
		return err
	}
	results, err := f.Compile(c)
	if err != nil {
		return err
	}
	return opts.printer(cmd).Results(opts.Format, results)
}
