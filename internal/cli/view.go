package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sphcal/internal/model"
	"sphcal/internal/render"
)

var (
	colorAccent = lipgloss.Color("#fe8019")
	colorDim    = lipgloss.Color("#928374")
	colorFg     = lipgloss.Color("#ebdbb2")
	colorWarn   = lipgloss.Color("#fabd2f")

	styleTitle   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(colorFg)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleWarn    = lipgloss.NewStyle().Foreground(colorWarn)
	styleCurrent = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleBox     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

var _ render.View = (*model.Frame)(nil)

// formatter renders frames and days for the terminal. With plain set no
// styling is applied.
type formatter struct {
	plain bool
}

func (f formatter) style(s lipgloss.Style, text string) string {
	if f.plain {
		return text
	}
	return s.Render(text)
}

// Frame formats one render: the title and info lines, then the day that
// was shown, if any.
func (f formatter) Frame(fr *model.Frame) string {
	var b strings.Builder
	if fr.Unavailable != "" {
		b.WriteString(f.style(styleWarn, fr.Unavailable))
		b.WriteString("\n")
	}
	if fr.Title != "" {
		b.WriteString(f.style(styleTitle, fr.Title))
		b.WriteString("\n")
	}
	for _, line := range strings.Split(fr.Info, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(f.style(styleInfo, line))
		b.WriteString("\n")
	}
	if fr.Day != nil {
		b.WriteString("\n")
		b.WriteString(f.Day(*fr.Day, fr.IsToday && fr.State == string(render.StateDuringSchool), fr.Info))
	}
	return b.String()
}

// Day formats a resolved day as a header and a period table. When
// highlight is set, the period whose block the info text names as current
// is emphasized.
func (f formatter) Day(d model.Day, highlight bool, info string) string {
	header := fmt.Sprintf("%s  %s", d.Date.Format("Mon Jan 2, 2006"), d.Description)
	if d.Semester > 0 {
		header += f.style(styleDim, fmt.Sprintf("  (semester %d)", d.Semester))
	}
	if len(d.Periods) == 0 {
		return header + "\n"
	}

	current := ""
	if highlight {
		if first, _, _ := strings.Cut(info, "\n"); strings.HasPrefix(first, "Block ") {
			current = strings.TrimPrefix(first, "Block ")
		}
	}

	rows := make([]string, 0, len(d.Periods))
	for _, p := range d.Periods {
		teacher := p.Teacher
		if teacher == "" {
			teacher = "-"
		}
		row := fmt.Sprintf("%s-%s  %-2s %s", p.Start, p.End, p.Block, teacher)
		if p.Block == current {
			row = f.style(styleCurrent, row)
		}
		rows = append(rows, row)
	}
	table := strings.Join(rows, "\n")
	if f.plain {
		return header + "\n" + table + "\n"
	}
	return header + "\n" + styleBox.Render(table) + "\n"
}
