// Package utils holds terminal helpers shared by the CLI commands.
package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

type MessageType int

const (
	DefaultMessage MessageType = iota
	SuccessMessage
	ErrorMessage
	StatusMessage
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	statusColor  = color.New(color.FgCyan)
)

// DecorateText colors s by message type. Colors are dropped when output is
// not a terminal or NO_COLOR is set.
func DecorateText(s string, msgType MessageType) string {
	switch msgType {
	case SuccessMessage:
		return successColor.Sprint(s)
	case ErrorMessage:
		return errorColor.Sprint(s)
	case StatusMessage:
		return statusColor.Sprint(s)
	default:
		return s
	}
}

// FormatTime renders a duration as seconds with one decimal below a minute
// and as minutes and seconds above.
func FormatTime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %.1fs", int(d.Minutes()), (d % time.Minute).Seconds())
	}
	return fmt.Sprintf("%dh %dm %.1fs", int(d.Hours()), int((d%time.Hour)/time.Minute), (d % time.Minute).Seconds())
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
