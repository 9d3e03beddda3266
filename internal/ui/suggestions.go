package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/squidly/internal/predict"
)

// RenderSuggestions renders the suggestion bar shown above the keyboard.
// selected is the index accepted by tab; -1 highlights nothing. Suggestions
// that do not fit in width are left out.
func RenderSuggestions(input string, suggestions []predict.WordEntry, selected, width int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	var cells []string
	used := 0
	for i, s := range suggestions {
		style := SuggestionStyle
		if i == selected {
			style = SelectedSuggestionStyle
		}
		cell := style.Render(s.Word)
		if s.Freq > 0 {
			cell += FrequencyStyle.Render(formatFreq(s.Freq))
		}
		w := lipgloss.Width(cell) + 1
		if used+w > width && len(cells) > 0 {
			break
		}
		cells = append(cells, cell)
		used += w
	}

	bar := strings.Join(cells, " ")
	if input == "" {
		return bar
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		HeaderParamKeyStyle.Render("input:")+" "+HeaderParamValueStyle.Render(input),
		"  "+bar,
	)
}

// formatFreq prints a corpus frequency compactly.
func formatFreq(f float64) string {
	switch {
	case f >= 1e6:
		return fmt.Sprintf("%.1fM", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("%.1fk", f/1e3)
	case f == float64(int64(f)):
		return fmt.Sprintf("%d", int64(f))
	default:
		return fmt.Sprintf("%.2g", f)
	}
}
