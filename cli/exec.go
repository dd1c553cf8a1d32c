package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/runner"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	DatabaseURL string
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <query-file>",
		Short: "Compile a query file for a database and run it",
		Long: `Compile every statement for the dialect of the database URL and run the
commands in file order. Queries print their rows, inserts print the generated
identity and other statements print the affected row count.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DatabaseURL, "db", "", "database URL (default: database.url in opsql.ini, then DATABASE_URL)")

	return cmd
}

func runExec(opts *ExecOptions, cmd *cobra.Command, path string) error {
	url := opts.DatabaseURL
	if url == "" {
		url = opts.config.Database.URL
	}
	if url == "" {
		return errors.New("no database URL: pass --db, set database.url in opsql.ini or DATABASE_URL")
	}

	ctx := cmd.Context()
	r, err := runner.Open(ctx, url, runner.WithLogger(opts.logger))
	if err != nil {
		return err
	}
	defer r.Close()

	f, c, err := opts.compilerFor(path, r.Dialect(), false)
	if err != nil {
		return err
	}
	results, err := f.Compile(c)
	if err != nil {
		return err
	}

	p := opts.printer(cmd)
	for _, res := range results {
		p.Infof("-- %s", res.Name)
		for _, command := range res.Commands {
			if err := execOne(cmd, r, p, command); err != nil {
				return err
			}
		}
	}
	return nil
}

func execOne(cmd *cobra.Command, r *runner.Runner, p *Printer, command *query.Command) error {
	ctx := cmd.Context()
	_, hasOutput := command.Output()

	switch {
	case command.Kind == query.KindQuery:
		rows, err := r.Query(ctx, command)
		if err != nil {
			return err
		}
		defer rows.Close()
		n, err := p.Rows(rows)
		if err != nil {
			return err
		}
		p.Infof("(%d row(s))", n)
	case command.Kind == query.KindIdentity || hasOutput:
		id, err := r.Insert(ctx, command)
		if err != nil {
			return err
		}
		p.Successf("inserted id %d", id)
	case command.Kind == query.KindScalar:
		var v any
		if err := r.Scalar(ctx, command, &v); err != nil {
			return err
		}
		p.Infof("%s", cell(v))
	default:
		n, err := r.Exec(ctx, command)
		if err != nil {
			return err
		}
		p.Successf("%d row(s) affected", n)
	}
	return nil
}
