package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func success(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, a...))
}

func warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

// failure prints title and explanation to w and returns an error carrying the
// title for the exit code.
func failure(w io.Writer, title string, err error, hint string) error {
	red.Fprintf(w, "%s\n\n", title)
	fmt.Fprintf(w, "%v\n", err)
	if strings.TrimSpace(hint) != "" {
		fmt.Fprintf(w, "\n%s\n", hint)
	}
	return fmt.Errorf("%s: %w", title, err)
}
