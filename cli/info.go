package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/krau/birefnet-go/config"
)

type infoResult struct {
	Model      string `json:"model"`
	Device     string `json:"device"`
	DeviceName string `json:"device_name"`
	Version    string `json:"version"`
}

func (a *App) info(cfg config.Config, args []string) int {
	fs := newFlagSet("info", a.Stderr, "birefnet info [--json] [--device D]")
	jsonOut := fs.Bool("json", false, "JSON output")
	deviceFlag := fs.String("device", "", "auto|coreml|cuda|cpu")
	if _, err := parseInterspersed(fs, args); err != nil {
		return flagExit(err)
	}
	device, err := resolveDevice(*deviceFlag, cfg.Device)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	p := a.build(cfg, device, nil)
	defer p.Close()
	d := p.Device()

	res := infoResult{
		Model:      cfg.ModelID,
		Device:     d.String(),
		DeviceName: d.Label(),
		Version:    Version,
	}
	if *jsonOut {
		writeJSON(a.Stdout, res)
		return ExitSuccess
	}

	bold := color.New(color.Bold).SprintFunc()
	lines := []string{
		fmt.Sprintf("%s   %s", bold("Model:"), res.Model),
		fmt.Sprintf("%s  %s (%s)", bold("Device:"), res.Device, res.DeviceName),
		fmt.Sprintf("%s %s", bold("Version:"), res.Version),
	}
	fmt.Fprint(a.Stdout, panel("BiRefNet Info", lines))
	return ExitSuccess
}

// panel frames lines in a box with title in the top border.
func panel(title string, lines []string) string {
	width := utf8.RuneCountInString(title) + 2
	plain := make([]int, len(lines))
	for i, l := range lines {
		plain[i] = visibleLen(l)
		width = max(width, plain[i])
	}
	border := color.New(color.FgBlue).SprintFunc()

	var b strings.Builder
	pad := width + 2 - utf8.RuneCountInString(title) - 2
	b.WriteString(border("╭" + strings.Repeat("─", pad/2) + " " + title + " " + strings.Repeat("─", pad-pad/2) + "╮"))
	b.WriteByte('\n')
	for i, l := range lines {
		b.WriteString(border("│") + " " + l + strings.Repeat(" ", width-plain[i]) + " " + border("│"))
		b.WriteByte('\n')
	}
	b.WriteString(border("╰" + strings.Repeat("─", width+2) + "╯"))
	b.WriteByte('\n')
	return b.String()
}

// visibleLen counts runes outside ANSI escape sequences.
func visibleLen(s string) int {
	n, esc := 0, false
	for _, r := range s {
		switch {
		case esc:
			if r == 'm' {
				esc = false
			}
		case r == '\x1b':
			esc = true
		default:
			n++
		}
	}
	return n
}
