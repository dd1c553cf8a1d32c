package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shipq/opsql/query/compile"
)

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the supported SQL dialects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.printer(cmd).Dialects(rootOpts.Format, compile.Dialects())
		},
	}
}

type jsonDialect struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Paging      string `json:"paging"`
	Identity    string `json:"identity"`
	Batch       bool   `json:"batch"`
}

// Dialects prints one line per dialect with its parameter marker, paging
// and identity strategy.
func (p *Printer) Dialects(format string, dialects []compile.Dialect) error {
	if format == FormatJSON {
		out := make([]jsonDialect, len(dialects))
		for i, d := range dialects {
			out[i] = jsonDialect{
				Name:        d.Name(),
				Placeholder: d.Placeholder(0),
				Paging:      d.Paging().String(),
				Identity:    d.Identity().String(),
				Batch:       d.MergesBatches(),
			}
		}
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(p.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPLACEHOLDER\tPAGING\tIDENTITY\tBATCH")
	for _, d := range dialects {
		batch := "no"
		if d.MergesBatches() {
			batch = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name(), d.Placeholder(0), d.Paging(), d.Identity(), batch)
	}
	return tw.Flush()
}
