package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shipq/opsql/internal/queryfile"
	"github.com/shipq/opsql/query"
)

// Printer writes command output. Messages go to Out, warnings to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// Infof prints a formatted informational message.
func (p *Printer) Infof(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}

// Successf prints a formatted success message.
func (p *Printer) Successf(format string, args ...any) {
	fmt.Fprintf(p.Out, "✓ "+format+"\n", args...)
}

// Warnf prints a formatted warning.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintf(p.Err, "warning: "+format+"\n", args...)
}

// Errorf prints a formatted error.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintf(p.Err, "error: "+format+"\n", args...)
}

// Results prints compiled statements as SQL text with parameter comments,
// or as JSON.
func (p *Printer) Results(format string, results []queryfile.Result) error {
	if format == FormatJSON {
		return p.resultsJSON(results)
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(p.Out)
		}
		for j, cmd := range r.Commands {
			if j > 0 {
				fmt.Fprintln(p.Out)
			}
			header := r.Name
			if len(r.Commands) > 1 {
				header = fmt.Sprintf("%s (%d/%d)", r.Name, j+1, len(r.Commands))
			}
			fmt.Fprintf(p.Out, "-- %s [%s]\n", header, cmd.Kind)
			fmt.Fprintln(p.Out, cmd.Text)
			for _, param := range cmd.Parameters {
				fmt.Fprintf(p.Out, "-- %s\n", describeParam(param))
			}
		}
	}
	return nil
}

func describeParam(param query.DBParameter) string {
	var b strings.Builder
	b.WriteString(param.Name)
	if param.DBType != "" {
		b.WriteString(" ")
		b.WriteString(param.DBType)
		if param.Size > 0 {
			fmt.Fprintf(&b, "(%d)", param.Size)
		}
	}
	switch param.Direction {
	case query.DirOutput, query.DirReturn:
		b.WriteString(" ")
		b.WriteString(string(param.Direction))
	default:
		b.WriteString(" = ")
		b.WriteString(query.Constant{Value: param.Value}.String())
	}
	return b.String()
}

type jsonParam struct {
	Name      string `json:"name"`
	Value     any    `json:"value,omitempty"`
	DBType    string `json:"dbType,omitempty"`
	Size      int    `json:"size,omitempty"`
	Direction string `json:"direction"`
}

type jsonCommand struct {
	Kind       string      `json:"kind"`
	SQL        string      `json:"sql"`
	Parameters []jsonParam `json:"parameters"`
	Columns    []string    `json:"columns,omitempty"`
}

type jsonResult struct {
	Name     string        `json:"name"`
	Commands []jsonCommand `json:"commands"`
}

func (p *Printer) resultsJSON(results []queryfile.Result) error {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{Name: r.Name, Commands: make([]jsonCommand, len(r.Commands))}
		for j, cmd := range r.Commands {
			jc := jsonCommand{Kind: string(cmd.Kind), SQL: cmd.Text, Parameters: []jsonParam{}}
			for _, param := range cmd.Parameters {
				jc.Parameters = append(jc.Parameters, jsonParam{
					Name:      param.Name,
					Value:     param.Value,
					DBType:    param.DBType,
					Size:      param.Size,
					Direction: string(param.Direction),
				})
			}
			for _, c := range cmd.Columns {
				jc.Columns = append(jc.Columns, c.Path)
			}
			out[i].Commands[j] = jc
		}
	}
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Rows prints a result set as an aligned table and returns the row count.
func (p *Printer) Rows(rows *sql.Rows) (int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	tw := tabwriter.NewWriter(p.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))

	n := 0
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	cells := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}
		for i, v := range vals {
			cells[i] = cell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, tw.Flush()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
