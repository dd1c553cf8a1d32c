// Package compile turns parsed query infos into dialect-specific SQL
// commands.
//
// A statement is compiled level by level: each SELECT level gets its own
// alias table, nested levels become indented derived tables, and bound
// parameters are written as tokens that are numbered only when the command
// text is final. This keeps parameter order equal to text order across
// nested levels, unions and merged batches.
package compile

import (
	"fmt"
	"log/slog"

	"github.com/shipq/opsql/logging"
	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/parse"
)

// DefaultMaxParameters is the parameter limit of one command.
const DefaultMaxParameters = 1000

// maxRows is the most rows one multi-row VALUES list may carry.
const maxRows = 1000

// Compiler compiles operation sequences for one dialect. It is safe for
// concurrent use; every call owns its compilation state.
type Compiler struct {
	dialect       Dialect
	provider      meta.Provider
	parameterized bool
	maxParams     int
	logger        *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithParameterized selects bound parameters (true, the default) or inline
// literals for strings, bytes, times and GUIDs.
func WithParameterized(on bool) Option {
	return func(c *Compiler) { c.parameterized = on }
}

// WithMaxParameters sets the parameter limit used to split bulk inserts and
// batches.
func WithMaxParameters(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.maxParams = n
		}
	}
}

// WithLogger logs every compiled command at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompiler returns a compiler for d resolving entities through provider.
func NewCompiler(d Dialect, provider meta.Provider, opts ...Option) *Compiler {
	c := &Compiler{
		dialect:       d,
		provider:      provider,
		parameterized: true,
		maxParams:     DefaultMaxParameters,
		logger:        logging.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// Compile parses and compiles one statement. Entity inserts and deletes may
// need several commands; every other statement compiles to one.
func (c *Compiler) Compile(seq query.Sequence) ([]*query.Command, error) {
	info, err := parse.Parse(seq, c.provider)
	if err != nil {
		return nil, err
	}
	return c.CompileInfo(info)
}

// CompileQuery compiles a sequence that must produce one command, such as a
// SELECT, a count or an existence check.
func (c *Compiler) CompileQuery(seq query.Sequence) (*query.Command, error) {
	cmds, err := c.Compile(seq)
	if err != nil {
		return nil, err
	}
	if len(cmds) != 1 {
		return nil, fmt.Errorf("opsql: statement compiled to %d commands", len(cmds))
	}
	return cmds[0], nil
}

// CompileInfo compiles an already parsed statement.
func (c *Compiler) CompileInfo(info query.Info) ([]*query.Command, error) {
	st := c.newState()
	pending, err := st.statement(info)
	if err != nil {
		return nil, err
	}
	cmds := make([]*query.Command, len(pending))
	for i, p := range pending {
		cmds[i] = st.finish(p)
	}
	return cmds, nil
}

// state is the compilation state of one call, shared by every level and
// command it produces.
type state struct {
	c        *Compiler
	d        Dialect
	provider meta.Provider
	f        *ValueFormatter
	b        *binder
	// children numbers correlated subqueries.
	children int
}

func (c *Compiler) newState() *state {
	b := newBinder()
	return &state{
		c:        c,
		d:        c.dialect,
		provider: c.provider,
		f:        newValueFormatter(c.dialect, c.parameterized, b),
		b:        b,
	}
}

// pendingCommand is a command whose parameters are still tokens.
type pendingCommand struct {
	text string
	kind query.CommandKind
	cols []query.OutputColumn
}

func (st *state) statement(info query.Info) ([]pendingCommand, error) {
	switch v := info.(type) {
	case *query.SelectInfo:
		cmd, err := st.selectCommand(v)
		if err != nil {
			return nil, err
		}
		return []pendingCommand{cmd}, nil
	case *query.InsertInfo:
		return st.insert(v)
	case *query.UpdateInfo:
		return st.update(v)
	case *query.DeleteInfo:
		return st.delete(v)
	}
	return nil, query.Unsupported("statement", "%T", info)
}

func (st *state) selectCommand(info *query.SelectInfo) (pendingCommand, error) {
	tb, p, err := st.selectLevel(info, levelTop)
	if err != nil {
		return pendingCommand{}, err
	}
	if info.Aggregate != nil || info.Any {
		return pendingCommand{text: tb.String(), kind: query.KindScalar}, nil
	}
	return pendingCommand{text: tb.String(), kind: query.KindQuery, cols: p.outputColumns()}, nil
}

// finish numbers the parameters of p and logs the command.
func (st *state) finish(p pendingCommand) *query.Command {
	text, params := st.b.finalize(st.d, p.text)
	cmd := &query.Command{Text: text, Parameters: params, Kind: p.kind, Columns: p.cols}
	st.c.logger.Debug("compiled command",
		"dialect", st.d.Name(),
		"kind", string(cmd.Kind),
		"params", len(cmd.Parameters),
		"sql", cmd.Text,
	)
	return cmd
}

// hasOutput reports whether text binds an output parameter.
func (st *state) hasOutput(text string) bool {
	for _, id := range tokenIDs(text) {
		if p := st.b.params[id]; p.Direction != query.DirInput {
			return true
		}
	}
	return false
}
