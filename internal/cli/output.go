package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

// Printer renders command output as a table, JSON or YAML.
type Printer struct {
	out    io.Writer
	format string
}

func NewPrinter(out io.Writer, format string) *Printer {
	return &Printer{out: out, format: format}
}

// Structured reports whether output should be machine readable.
func (p *Printer) Structured() bool {
	return p.format == "json" || p.format == "yaml"
}

// Value writes v in the structured format.
func (p *Printer) Value(v interface{}) error {
	if p.format == "yaml" {
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(toPlain(v))
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) Success(format string, a ...interface{}) {
	successColor.Fprintf(p.out, "✓ "+format+"\n", a...)
}

func (p *Printer) Info(format string, a ...interface{}) {
	infoColor.Fprintf(p.out, format+"\n", a...)
}

func (p *Printer) Warn(format string, a ...interface{}) {
	warnColor.Fprintf(p.out, "⚠ "+format+"\n", a...)
}

func (p *Printer) Error(format string, a ...interface{}) {
	errorColor.Fprintf(p.out, "✗ "+format+"\n", a...)
}

// toPlain round-trips v through JSON so YAML output uses the JSON field names.
func toPlain(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var plain interface{}
	if err := json.Unmarshal(data, &plain); err != nil {
		return v
	}
	return plain
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers, rows: [][]string{}}
}

func (t *Table) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, header := range t.headers {
		headerColor.Fprintf(w, "%-*s  ", widths[i], header)
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}
