package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/gridq/manager"
	"github.com/franksops/gridq/store"
)

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    UIState
	controls Controls
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	warnStyle    lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically to update the UI state
type TUIUpdateMsg struct {
	State UIState
}

func NewTUIModel(initial UIState, controls Controls) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        initial,
		controls:     controls,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		warnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			if m.controls != nil {
				m.controls.Pause()
				m.state.Paused = true
			}
		case "r":
			if m.controls != nil {
				m.controls.Resume()
				m.state.Paused = false
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 7
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case TUIUpdateMsg:
		m.state = msg.State
		if m.state.Done {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder
	st := m.state

	header := fmt.Sprintf("%s gridq %s", m.spinner.View(), m.titleStyle.Render("Transfer Queue"))
	sb.WriteString(header + "\n")

	statusInfo := fmt.Sprintf("Worker: %s | Health: %s | Queued: %d | Done: %d | Failed: %d | %s",
		st.Running, m.renderHealth(st.Errors), st.Queued, st.Completed, st.Failed, formatSpeed(st.ThroughputBPS))
	sb.WriteString(m.infoStyle.Render(statusInfo) + "\n")

	if cur := st.Current; cur != nil {
		sb.WriteString(fmt.Sprintf("%s %s  item %d/%d\n", cur.Kind, shortID(cur.RecordID), cur.ItemIndex, cur.ItemCount))
		sb.WriteString(m.progress.ViewAs(cur.Progress()) + "\n")
		sb.WriteString(m.streamStyle.Render(truncatePath(cur.Item, 60)) + "\n")
	} else {
		sb.WriteString(m.infoStyle.Render("No active transfer") + "\n\n\n")
	}
	if st.LastError != "" {
		sb.WriteString(m.errorStyle.Render("Last error: "+truncatePath(st.LastError, 80)) + "\n")
	}

	sb.WriteString("\nRecent:\n")
	var recent strings.Builder
	if len(st.Recent) == 0 {
		recent.WriteString(m.infoStyle.Render("Queue is empty"))
	}
	for _, rec := range st.Recent {
		recent.WriteString(fmt.Sprintf("%-10s %-9s %s  %s -> %s\n",
			m.renderState(rec.State), rec.Kind, shortID(rec.ID),
			truncatePath(rec.Source(), 30), truncatePath(rec.Target(), 30)))
	}
	m.viewport.SetContent(recent.String())
	sb.WriteString(m.viewport.View())

	help := m.helpStyle.Render("q/ctrl+c: quit • p: pause • r: resume")
	switch {
	case st.Done:
		help = m.successStyle.Render("Queue drained!") + " Press 'q' to exit."
	case st.Paused && st.Running == manager.Processing:
		help = m.warnStyle.Render("Pausing after current transfer...") + " r: resume"
	case st.Paused:
		help = m.warnStyle.Render("Paused.") + " r: resume • q: quit"
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func (m TUIModel) renderHealth(s manager.ErrorStatus) string {
	switch s {
	case manager.Error:
		return m.errorStyle.Render(string(s))
	case manager.Warning:
		return m.warnStyle.Render(string(s))
	}
	return m.successStyle.Render(string(s))
}

func (m TUIModel) renderState(s store.State) string {
	switch s {
	case store.StateError:
		return m.errorStyle.Render(string(s))
	case store.StateComplete:
		return m.successStyle.Render(string(s))
	case store.StateProcessing:
		return m.streamStyle.Render(string(s))
	}
	return m.infoStyle.Render(string(s))
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/(1024*1024*1024))
	} else if bytesPerSec >= 1024*1024 {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	} else if bytesPerSec >= 1024 {
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

func truncatePath(p string, n int) string {
	if len(p) <= n || n < 4 {
		return p
	}
	return "..." + p[len(p)-(n-3):]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
