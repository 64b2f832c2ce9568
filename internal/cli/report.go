package cli

import (
	"fmt"
	"impexdeploy/internal/job"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the color scheme for console output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// Reporter prints the user-facing progress and result of a run.
type Reporter struct {
	out      io.Writer
	theme    Theme
	renderer *lipgloss.Renderer
}

// NewReporter creates a reporter writing to w. Colors are only emitted when
// w is a terminal.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{out: w, theme: defaultTheme, renderer: lipgloss.NewRenderer(w)}
}

func (r *Reporter) style(c lipgloss.Color) lipgloss.Style {
	return r.renderer.NewStyle().Foreground(c)
}

// Info prints a labelled line.
func (r *Reporter) Info(label, text string) {
	fmt.Fprintf(r.out, "%s %s\n", r.style(r.theme.Status).Render(label+":"), text)
}

// Block prints an indented multi-line block in the hint style.
func (r *Reporter) Block(text string) {
	hint := r.style(r.theme.Hint)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(r.out, hint.Render("  "+line))
	}
}

// Succeed prints a success line.
func (r *Reporter) Succeed(text string) {
	fmt.Fprintln(r.out, r.style(r.theme.Success).Bold(true).Render("✓ "+text))
}

// Fail prints a failure line.
func (r *Reporter) Fail(text string) {
	fmt.Fprintln(r.out, r.style(r.theme.Error).Bold(true).Render("✗ "+text))
}

// Outcome prints the result of a run.
func (r *Reporter) Outcome(o *job.Outcome) {
	switch o.Kind {
	case job.KindSuccess:
		r.Succeed("Import finished successfully")
	case job.KindFailure:
		r.Fail("Import job finished with errors")
		for _, step := range o.Steps {
			line := fmt.Sprintf("%s: %s", step.StepID, step.Status)
			if step.ErrorMessage != "" {
				line += " - " + step.ErrorMessage
			}
			r.Block(line)
		}
	default:
		r.Fail(fmt.Sprintf("%s: %v", o.Kind, o.Err))
	}

	if o.Handle.ExecutionID != "" {
		r.Info("Execution", o.Handle.JobID+" "+o.Handle.ExecutionID)
	}
	if o.LogURL != "" {
		r.Info("Log", o.LogURL)
	}
	if o.Summary != "" {
		r.Info("Summary", "")
		r.Block(o.Summary)
	}
}
