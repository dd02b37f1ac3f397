package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// commandWidth caps the command column of the history table.
const commandWidth = 60

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer

	heading lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
}

// NewFormatter creates a new formatter. Styles degrade to plain text when
// writer is not a terminal.
func NewFormatter(writer io.Writer) *Formatter {
	r := lipgloss.NewRenderer(writer)
	return &Formatter{
		writer:  writer,
		heading: r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("#73F59F")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("#FF8787")),
	}
}

// FormatListJSON formats a case listing as JSON
func (f *Formatter) FormatListJSON(list ListDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}

// FormatHistoryJSON formats ledger entries as JSON
func (f *Formatter) FormatHistoryJSON(entries []EntryDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

// FormatList prints available then selected cases. With dump set, each
// selected case is followed by its full record as YAML.
func (f *Formatter) FormatList(list ListDTO, dump bool) error {
	byName := make(map[string]CaseDTO, len(list.Available))

	var b strings.Builder
	b.WriteString(f.heading.Render("Available cases:") + "\n")
	for _, c := range list.Available {
		byName[c.Name] = c
		b.WriteString("    " + c.Name + "\n")
	}

	b.WriteString(f.heading.Render("Selected cases:") + "\n")
	for _, name := range list.Selected {
		b.WriteString("    " + name)
		if c, ok := byName[name]; ok && c.Base != c.Name {
			b.WriteString(" " + f.dim.Render("("+c.Base+")"))
		}
		b.WriteString("\n")
		if !dump {
			continue
		}
		c, ok := byName[name]
		if !ok {
			continue
		}
		record, err := f.dumpCase(c)
		if err != nil {
			return err
		}
		b.WriteString(record)
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

// dumpCase renders c as YAML indented under its name.
func (f *Formatter) dumpCase(c CaseDTO) (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding case %s: %w", c.Name, err)
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		b.WriteString("      " + line + "\n")
	}
	return b.String(), nil
}

// FormatHistory prints ledger entries as an aligned table, newest first.
func (f *Formatter) FormatHistory(entries []EntryDTO) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(f.writer, f.dim.Render("No recorded runs."))
		return err
	}

	headers := []string{"ID", "RUN", "CASE", "PHASE", "OUTCOME", "EXIT", "DURATION", "WHEN", "COMMAND"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			shortRunID(e.RunID),
			e.Case,
			e.Phase,
			e.Outcome,
			strconv.Itoa(e.ExitCode),
			(time.Duration(e.DurationMs) * time.Millisecond).String(),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			runewidth.Truncate(strings.Join(e.Command, " "), commandWidth, "…"),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	b.WriteString(f.heading.Render(joinRow(headers, widths)) + "\n")
	for _, row := range rows {
		line := joinRow(row, widths)
		switch row[4] {
		case "ok":
			line = f.ok.Render(line)
		case "failed":
			line = f.failed.Render(line)
		}
		b.WriteString(line + "\n")
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// joinRow pads every cell but the last to its column width.
func joinRow(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			padded[i] = cell
			continue
		}
		padded[i] = runewidth.FillRight(cell, widths[i])
	}
	return strings.Join(padded, "  ")
}

// shortRunID keeps the first block of a UUID.
func shortRunID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
