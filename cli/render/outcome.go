package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/drover-io/drover/types"
)

var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	outcomeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 2)

	outcomeLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Width(10)
)

// RenderOutcome writes a run outcome in the configured format. Table
// format gets a styled summary box; json and yaml emit the raw outcome.
func (r *Renderer) RenderOutcome(outcome *types.TaskOutcome) error {
	if r.format != FormatTable {
		return r.Render(outcome)
	}

	statusStyle := lipgloss.NewStyle().Bold(true)
	if !r.noColor {
		if outcome.Status == types.OutcomeSuccess {
			statusStyle = statusStyle.Foreground(successColor)
		} else {
			statusStyle = statusStyle.Foreground(errorColor)
		}
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(outcomeLabelStyle.Render(label + ":"))
		b.WriteString(" " + value + "\n")
	}

	b.WriteString(statusStyle.Render(strings.ToUpper(string(outcome.Status))))
	b.WriteString("\n")
	row("platform", outcome.Platform)
	row("run", outcome.RunID)
	row("items", fmt.Sprintf("%d", len(outcome.Items)))
	row("pages", fmt.Sprintf("%d", outcome.PagesProcessed))
	row("duration", outcome.Performance.Duration.Round(time.Millisecond).String())
	if outcome.Performance.Retries > 0 {
		row("retries", fmt.Sprintf("%d", outcome.Performance.Retries))
	}
	if outcome.Failure != nil {
		row("error", fmt.Sprintf("%s: %s", outcome.Failure.Code, outcome.Failure.Message))
	}

	box := outcomeBoxStyle
	if r.noColor {
		box = box.BorderForeground(lipgloss.NoColor{})
	}
	fmt.Fprintln(r.out, box.Render(strings.TrimRight(b.String(), "\n")))
	return nil
}
