// Package ui renders ormctl terminal output
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// KeyValueTable renders aligned key: value lines
type KeyValueTable struct {
	writer  io.Writer
	rows    [][2]string
	noColor bool
}

// NewKeyValueTable creates an empty table writing to w
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow appends a key-value pair
func (t *KeyValueTable) AddRow(key, value string) {
	t.rows = append(t.rows, [2]string{key, value})
}

// Render writes the table; an empty table writes nothing
func (t *KeyValueTable) Render() {
	width := 0
	for _, row := range t.rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for _, row := range t.rows {
		cyan.Fprint(t.writer, padRight(row[0]+":", width+1))
		fmt.Fprintf(t.writer, " %s\n", row[1])
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Success prints a green check line
func Success(w io.Writer, noColor bool, format string, args ...interface{}) {
	status(w, noColor, color.New(color.FgGreen, color.Bold), "✓", format, args...)
}

// Failure prints a red cross line
func Failure(w io.Writer, noColor bool, format string, args ...interface{}) {
	status(w, noColor, color.New(color.FgRed, color.Bold), "✗", format, args...)
}

func status(w io.Writer, noColor bool, c *color.Color, symbol, format string, args ...interface{}) {
	if noColor {
		c.DisableColor()
	}
	c.Fprintf(w, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}
