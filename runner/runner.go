// Package runner executes compiled commands through database/sql.
//
// Positional dialects (postgres, mysql, sqlite) receive the parameter values
// in order. SQL Server and Oracle receive sql.Named arguments, with sql.Out
// for output parameters.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/shipq/opsql/dburl"
	"github.com/shipq/opsql/logging"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/compile"
)

// Querier is the interface for executing commands.
// Both *sql.DB and *sql.Tx implement this interface.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// txBeginner is implemented by *sql.DB.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ErrNoIdentity is returned by Insert for commands that do not produce a
// generated key.
var ErrNoIdentity = errors.New("runner: command returns no identity")

// Runner runs commands compiled for one dialect.
type Runner struct {
	db      Querier
	dialect compile.Dialect
	logger  *slog.Logger
	closer  func() error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger logs every executed command at debug level and failures at
// error level.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a runner over db for commands compiled with d.
func New(db Querier, d compile.Dialect, opts ...Option) *Runner {
	r := &Runner{db: db, dialect: d, logger: logging.Discard}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open connects to dbURL, pings it and returns a runner for the URL's
// dialect. The runner owns the connection pool; call Close.
func Open(ctx context.Context, dbURL string, opts ...Option) (*Runner, error) {
	target, err := dburl.Resolve(dbURL)
	if err != nil {
		return nil, err
	}
	d, err := compile.DialectByName(target.Dialect)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if target.Driver == "pgx" {
		cfg, err := pgx.ParseConfig(target.DSN)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		db = stdlib.OpenDB(*cfg)
	} else {
		db, err = sql.Open(target.Driver, target.DSN)
		if err != nil {
			return nil, fmt.Errorf("runner: open %s: %w", target.Dialect, err)
		}
	}
	if target.Dialect == dburl.DialectSQLite {
		// One writer; also keeps :memory: databases on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("runner: ping %s: %w", dburl.Redact(dbURL), err)
	}

	r := New(db, d, opts...)
	r.closer = db.Close
	return r, nil
}

// Close releases the connection pool opened by Open. It is a no-op for
// runners built with New.
func (r *Runner) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Dialect returns the runner's dialect.
func (r *Runner) Dialect() compile.Dialect {
	return r.dialect
}

// DB returns the runner's database connection.
func (r *Runner) DB() Querier {
	return r.db
}

// WithTx returns a runner using the given transaction.
func (r *Runner) WithTx(tx *sql.Tx) *Runner {
	return &Runner{db: tx, dialect: r.dialect, logger: r.logger}
}

// Exec runs cmds in order and returns the total affected rows. When the
// connection can begin transactions, all commands share one that is rolled
// back on the first failure.
func (r *Runner) Exec(ctx context.Context, cmds ...*query.Command) (int64, error) {
	b, ok := r.db.(txBeginner)
	if !ok || len(cmds) < 2 {
		return r.execAll(ctx, cmds)
	}

	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("runner: begin: %w", err)
	}
	n, err := r.WithTx(tx).execAll(ctx, cmds)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, errors.Join(err, fmt.Errorf("runner: rollback: %w", rbErr))
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("runner: commit: %w", err)
	}
	return n, nil
}

func (r *Runner) execAll(ctx context.Context, cmds []*query.Command) (int64, error) {
	var total int64
	for i, cmd := range cmds {
		err := r.track(ctx, "sql_exec", cmd, func(ctx context.Context) error {
			args, _ := r.args(cmd)
			res, err := r.db.ExecContext(ctx, cmd.Text, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("runner: command %d: %w", i, err)
		}
	}
	return total, nil
}

// Query runs a command that returns rows.
func (r *Runner) Query(ctx context.Context, cmd *query.Command) (*sql.Rows, error) {
	var rows *sql.Rows
	err := r.track(ctx, "sql_query", cmd, func(ctx context.Context) error {
		args, _ := r.args(cmd)
		var err error
		rows, err = r.db.QueryContext(ctx, cmd.Text, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	return rows, nil
}

// Scalar runs a command that returns one value, such as a count.
func (r *Runner) Scalar(ctx context.Context, cmd *query.Command, dest any) error {
	err := r.track(ctx, "sql_scalar", cmd, func(ctx context.Context) error {
		args, _ := r.args(cmd)
		return r.db.QueryRowContext(ctx, cmd.Text, args...).Scan(dest)
	})
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	return nil
}

// Insert runs an insert command and returns the generated identity, read
// from RETURNING, the driver's last insert id or the output parameter,
// depending on how the command was compiled.
func (r *Runner) Insert(ctx context.Context, cmd *query.Command) (int64, error) {
	var id int64
	err := r.track(ctx, "sql_insert", cmd, func(ctx context.Context) error {
		args, out := r.args(cmd)
		switch {
		case cmd.Kind == query.KindScalar:
			return r.db.QueryRowContext(ctx, cmd.Text, args...).Scan(&id)
		case out != nil:
			if _, err := r.db.ExecContext(ctx, cmd.Text, args...); err != nil {
				return err
			}
			var err error
			id, err = toInt64(*out)
			return err
		case cmd.Kind == query.KindIdentity:
			res, err := r.db.ExecContext(ctx, cmd.Text, args...)
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		}
		return ErrNoIdentity
	})
	if err != nil {
		return 0, fmt.Errorf("runner: %w", err)
	}
	return id, nil
}

// args converts the command parameters for the driver. out points at the
// destination of the output parameter, if there is one.
func (r *Runner) args(cmd *query.Command) (args []any, out *any) {
	if !named(r.dialect) {
		return cmd.Args(), nil
	}
	args = make([]any, len(cmd.Parameters))
	for i, p := range cmd.Parameters {
		switch p.Direction {
		case query.DirOutput, query.DirInputOutput, query.DirReturn:
			dest := p.Value
			out = &dest
			args[i] = sql.Named(p.Name, sql.Out{Dest: out, In: p.Direction == query.DirInputOutput})
		default:
			args[i] = sql.Named(p.Name, p.Value)
		}
	}
	return args, out
}

func named(d compile.Dialect) bool {
	switch d.Name() {
	case "sqlserver", "sqlserver2005", "oracle":
		return true
	}
	return false
}

func (r *Runner) track(ctx context.Context, event string, cmd *query.Command, fn func(context.Context) error) error {
	return logging.Track(ctx, r.logger, event, fn,
		"dialect", r.dialect.Name(),
		"kind", string(cmd.Kind),
		"params", len(cmd.Parameters),
		"sql", cmd.Text,
	)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		var id int64
		_, err := fmt.Sscan(string(n), &id)
		return id, err
	case string:
		var id int64
		_, err := fmt.Sscan(n, &id)
		return id, err
	case nil:
		return 0, ErrNoIdentity
	}
	return 0, fmt.Errorf("runner: unexpected identity type %T", v)
}
