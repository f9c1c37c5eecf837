package cli

import (
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// importProgressMsg reports how far the importer has come.
type importProgressMsg struct {
	done  int
	total int
}

// importDoneMsg carries the final result.
type importDoneMsg struct {
	result importResult
	err    error
}

// importResult aggregates one finished import run.
type importResult struct {
	Messages int
	Tokens   int
	Moments  int
	Skipped  []string
}

// importModel is the bubbletea model for import progress.
type importModel struct {
	sessionID string
	progress  progress.Model
	theme     Theme

	done  int
	total int

	finished bool
	canceled bool
	result   importResult
	err      error
}

func newImportModel(sessionID string, total int) importModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return importModel{
		sessionID: sessionID,
		progress:  prog,
		theme:     defaultTheme,
		total:     total,
	}
}

// Init returns the initial command.
func (m importModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m importModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.canceled = true
			return m, tea.Quit
		}

	case importProgressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, nil

	case importDoneMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m importModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m importModel) renderContent() string {
	if m.finished || m.canceled {
		return m.finalView()
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[importing %s]", m.sessionID))
	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d messages", m.done, m.total)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to abort")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

func (m importModel) finalView() string {
	if m.canceled {
		return m.theme.hintStyle().Render("\nImport aborted.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Import failed: %s\n", m.err))
	}

	output := m.theme.completedStyle().Render("✓ Imported") + "\n\n"
	output += fmt.Sprintf("  Messages stored: %d\n", m.result.Messages)
	output += fmt.Sprintf("  Tokens counted:  %d\n", m.result.Tokens)
	if m.result.Moments > 0 {
		output += fmt.Sprintf("  Moments built:   %d\n", m.result.Moments)
	}
	if len(m.result.Skipped) > 0 {
		output += m.theme.errorStyle().Render(fmt.Sprintf("\nSkipped lines (%d):\n", len(m.result.Skipped)))
		for _, e := range m.result.Skipped {
			output += fmt.Sprintf("  • %s\n", e)
		}
	}
	return output
}
