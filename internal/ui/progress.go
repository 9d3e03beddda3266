package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/squidly/internal/walkthrough"
)

// StepStatus is where a step sits relative to the current one
type StepStatus int

const (
	StepPending StepStatus = iota // After the current step
	StepCurrent                   // The step on screen
	StepVisited                   // Before the current step
)

// StepLine is one row of the step list
type StepLine struct {
	ID     string
	Title  string
	Status StepStatus
	Note   string // e.g., the settings path the step opens
}

// Progress shows how far a walkthrough has got: a bar and the step list in
// catalog order.
type Progress struct {
	Label     string
	Steps     []StepLine
	Current   int // 1-based, 0 when no step is current
	Width     int
	ShowBar   bool
	ShowSteps bool
	bar       progress.Model
}

// NewProgress creates a progress display for steps in the order given.
func NewProgress(label string, steps []walkthrough.Step) *Progress {
	lines := make([]StepLine, len(steps))
	for i, s := range steps {
		lines[i] = StepLine{
			ID:    s.ID,
			Title: plainText(s.Title),
			Note:  s.SettingsPath,
		}
	}

	p := &Progress{
		Label:     label,
		Steps:     lines,
		ShowBar:   true,
		ShowSteps: true,
	}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	return p
}

// SetCurrent marks id as the current step. Steps listed before it are
// visited, the rest pending. An unknown or empty id clears the marker.
func (p *Progress) SetCurrent(id string) {
	p.Current = 0
	for i := range p.Steps {
		if p.Steps[i].ID == id && id != "" {
			p.Current = i + 1
		}
	}
	for i := range p.Steps {
		switch {
		case p.Current == 0 || i+1 > p.Current:
			p.Steps[i].Status = StepPending
		case i+1 == p.Current:
			p.Steps[i].Status = StepCurrent
		default:
			p.Steps[i].Status = StepVisited
		}
	}
}

// Percent returns the fraction of steps reached, 0 to 1.
func (p *Progress) Percent() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	return float64(p.Current) / float64(len(p.Steps))
}

// Render returns the styled progress display as a string
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(HeaderTitleStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	if p.ShowBar {
		b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(
			fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent()), p.Percent()*100, p.Current, len(p.Steps))))
		b.WriteString("\n\n")
	}

	if p.ShowSteps {
		lines := make([]string, 0, len(p.Steps))
		for i, s := range p.Steps {
			lines = append(lines, p.renderStepLine(i+1, s))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	return b.String()
}

func (p *Progress) renderStepLine(n int, step StepLine) string {
	var (
		marker string
		style  lipgloss.Style
	)
	switch step.Status {
	case StepCurrent:
		marker, style = StepMarkerCurrent, StepCurrentStyle
	case StepVisited:
		marker, style = StepMarkerVisited, StepVisitedStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	name := step.ID
	if step.Title != "" {
		name += " - " + strings.ReplaceAll(step.Title, "\n", " ")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s [%*d/%d] ", style.Render(marker), len(fmt.Sprint(len(p.Steps))), n, len(p.Steps)))
	b.WriteString(style.Render(name))
	if step.Note != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Note + ")"))
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
