package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm prints a warning box and reads one line from in. It returns true
// only when the line equals phrase, ignoring case and surrounding space.
func Confirm(in io.Reader, p *Printer, title string, warnings []string, phrase string) bool {
	lines := []string{
		"",
		lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
			Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)),
		"",
	}
	for _, w := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render("   • "+w))
	}
	lines = append(lines, "")

	p.Println(ResultBoxStyle(p.Width(), WarningColor).Render(strings.Join(lines, "\n")))
	p.Newline()
	p.Print(lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
		Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	p.Newline()
	if err != nil && input == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(input), phrase) {
		return true
	}

	p.Println(lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	p.Newline()
	return false
}

// ConfirmOverwrite asks before replacing an existing configuration file.
func ConfirmOverwrite(in io.Reader, p *Printer, path string) bool {
	return Confirm(in, p, "OVERWRITE CONFIGURATION",
		[]string{
			"A configuration file already exists at " + path,
			"Its session, keyboard and profile settings will be replaced with defaults",
		},
		"yes",
	)
}
