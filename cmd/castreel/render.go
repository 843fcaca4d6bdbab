package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"castreel/internal/queue"
)

// level grades a status line or a job state for display.
type level int

const (
	levelInfo level = iota
	levelOK
	levelWarn
	levelError
)

func (l level) tag() string {
	switch l {
	case levelOK:
		return "OK"
	case levelWarn:
		return "WARN"
	case levelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l level) colors() text.Colors {
	switch l {
	case levelOK:
		return text.Colors{text.FgGreen}
	case levelWarn:
		return text.Colors{text.FgYellow}
	case levelError:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgCyan}
	}
}

// stateLevel maps a job state to the colour it is shown in: published jobs
// are done, failed jobs need an operator, running jobs are in flight.
func stateLevel(state string) level {
	s := queue.State(state)
	switch {
	case s == queue.StatePublished:
		return levelOK
	case s == queue.StateFailed:
		return levelError
	case s.IsRunning():
		return levelInfo
	default:
		return levelWarn
	}
}

const labelWidth = 20

// printer writes the human-readable CLI views, colouring them only when out
// is a terminal.
type printer struct {
	out   io.Writer
	color bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, color: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *printer) paint(l level, s string) string {
	if !p.color {
		return s
	}
	return l.colors().Sprint(s)
}

// section prints a blank separator (except before the first section) and a title.
func (p *printer) section(title string, first bool) {
	if !first {
		fmt.Fprintln(p.out)
	}
	title = strings.ToUpper(strings.TrimSpace(title))
	if p.color {
		title = text.Colors{text.Bold}.Sprint(title)
	}
	fmt.Fprintln(p.out, title)
}

// statusLine formats "  label:   [TAG] message".
func (p *printer) statusLine(label string, l level, message string) string {
	tag := "[" + l.tag() + "]"
	if message = strings.TrimSpace(message); message != "" {
		tag += " " + message
	}
	return fmt.Sprintf("  %-*s %s", labelWidth, label+":", p.paint(l, tag))
}

func (p *printer) line(label string, l level, message string) {
	fmt.Fprintln(p.out, p.statusLine(label, l, message))
}

func (p *printer) print(s string) {
	fmt.Fprintln(p.out, s)
}

// column describes one table column. Numeric columns align right; state
// columns are coloured by job state.
type column struct {
	title   string
	numeric bool
	state   bool
}

func (p *printer) table(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if col.numeric {
			cfg.Align = text.AlignRight
		}
		if col.state && p.color {
			cfg.Transformer = func(val interface{}) string {
				s := fmt.Sprint(val)
				return stateLevel(s).colors().Sprint(s)
			}
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// printJSON writes v as indented JSON.
func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
