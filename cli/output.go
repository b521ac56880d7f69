// Package cli holds the terminal output helpers of the pgq command.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Output streams. Tests swap them for buffers.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	headerColor  = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

// Fatal prints a message to stderr and exits with code 1.
func Fatal(msg string) {
	fmt.Fprintln(Stderr, errorColor.Sprint("error:"), msg)
	os.Exit(1)
}

// FatalErr prints an error message with details to stderr and exits with code 1.
func FatalErr(msg string, err error) {
	fmt.Fprintf(Stderr, "%s %s: %v\n", errorColor.Sprint("error:"), msg, err)
	os.Exit(1)
}

// Error prints an error to stderr without exiting.
func Error(err error) {
	fmt.Fprintln(Stderr, errorColor.Sprint("error:"), err)
}

// Info prints an informational message to stdout.
func Info(msg string) {
	fmt.Fprintln(Stdout, msg)
}

// Infof prints a formatted informational message to stdout.
func Infof(format string, args ...any) {
	fmt.Fprintf(Stdout, format+"\n", args...)
}

// Success prints a success message to stdout.
func Success(msg string) {
	fmt.Fprintln(Stdout, successColor.Sprint("✓"), msg)
}

// Successf prints a formatted success message to stdout.
func Successf(format string, args ...any) {
	Success(fmt.Sprintf(format, args...))
}

// Warn prints a warning message to stderr.
func Warn(msg string) {
	fmt.Fprintln(Stderr, warnColor.Sprint("warning:"), msg)
}

// Warnf prints a formatted warning message to stderr.
func Warnf(format string, args ...any) {
	Warn(fmt.Sprintf(format, args...))
}

// Statement prints one compiled statement with its bind values.
func Statement(title, sql string, values []any) {
	fmt.Fprintln(Stdout, headerColor.Sprint("-- "+title))
	fmt.Fprintln(Stdout, sql)
	for i, v := range values {
		fmt.Fprintln(Stdout, dimColor.Sprintf("--   $%d = %#v", i+1, v))
	}
}

// Table prints rows as tab separated columns under a header line.
func Table(columns []string, rows [][]any) {
	fmt.Fprintln(Stdout, headerColor.Sprint(strings.Join(columns, "\t")))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = dimColor.Sprint("NULL")
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(Stdout, strings.Join(cells, "\t"))
	}
	fmt.Fprintln(Stdout, dimColor.Sprintf("(%d rows)", len(rows)))
}
