package query

import "strings"

// CommandKind tells the execution layer how to run a command.
type CommandKind string

const (
	// KindQuery returns rows.
	KindQuery CommandKind = "query"
	// KindExec returns an affected-row count.
	KindExec CommandKind = "exec"
	// KindScalar returns a single value, e.g. an identity through RETURNING.
	KindScalar CommandKind = "scalar"
	// KindIdentity is an exec whose identity comes from the driver's
	// last-insert-id.
	KindIdentity CommandKind = "identity"
)

// Direction is the direction of a command parameter.
type Direction string

const (
	DirInput       Direction = "input"
	DirOutput      Direction = "output"
	DirInputOutput Direction = "inputoutput"
	DirReturn      Direction = "return"
)

// DBParameter is one bound parameter of a command.
type DBParameter struct {
	Name      string
	Value     any
	DBType    string
	Size      int
	Precision int
	Scale     int
	Direction Direction
}

// OutputColumn is one column of a SELECT's result, named as in the SQL text.
// Path is the member path in the projection ("Id", "Client.Name", "Items.Id").
type OutputColumn struct {
	Name string
	Path string
}

// Command is compiled SQL text plus its parameters in first-appearance order.
type Command struct {
	Text       string
	Parameters []DBParameter
	Kind       CommandKind
	Columns    []OutputColumn
}

// Args returns the parameter values in order.
func (c *Command) Args() []any {
	args := make([]any, len(c.Parameters))
	for i, p := range c.Parameters {
		args[i] = p.Value
	}
	return args
}

// Output returns the output parameter, if any.
func (c *Command) Output() (DBParameter, bool) {
	for _, p := range c.Parameters {
		if p.Direction == DirOutput || p.Direction == DirInputOutput {
			return p, true
		}
	}
	return DBParameter{}, false
}

func (c *Command) String() string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, p := range c.Parameters {
		b.WriteString("\n-- ")
		b.WriteString(p.Name)
		b.WriteString(" = ")
		b.WriteString(Constant{Value: p.Value}.String())
	}
	return b.String()
}
