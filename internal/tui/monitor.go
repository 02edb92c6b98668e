// Package tui is the operator's run monitoring view: a live list of runs
// from the store with per-run progress, refreshed on a timer. Runs are
// triggered via the API or CLI; from here they can only be inspected or
// paused.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/model"
	"github.com/rendis/venuegrid/internal/tui/styles"
)

// Run opens the store at dbPath and blocks in the monitor until quit.
func Run(dbPath string) error {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	_, err = tea.NewProgram(newMonitor(store), tea.WithAltScreen()).Run()
	return err
}

type monitorModel struct {
	store    *storage.Store
	runs     []model.Run
	cursor   int
	progress progress.Model
	err      error
	width    int
	height   int
}

type tickMsg time.Time

type runsMsg struct {
	runs []model.Run
	err  error
}

type pausedMsg struct{ err error }

func newMonitor(store *storage.Store) monitorModel {
	return monitorModel{
		store: store,
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.fetchRuns(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) fetchRuns() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		runs, err := store.ListRuns(context.Background(), 30)
		return runsMsg{runs: runs, err: err}
	}
}

func (m monitorModel) pauseSelected() tea.Cmd {
	if m.cursor >= len(m.runs) {
		return nil
	}
	store := m.store
	id := m.runs[m.cursor].ID
	return func() tea.Msg {
		return pausedMsg{err: store.PauseRun(context.Background(), id)}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.runs)-1 {
				m.cursor++
			}
		case "p":
			return m, m.pauseSelected()
		}
	case tickMsg:
		return m, tea.Batch(m.fetchRuns(), tick())
	case runsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.runs = msg.runs
			if m.cursor >= len(m.runs) && len(m.runs) > 0 {
				m.cursor = len(m.runs) - 1
			}
		}
	case pausedMsg:
		// A failed pause (run already terminal) is not worth surfacing;
		// the next refresh shows the true status.
		return m, m.fetchRuns()
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m monitorModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("venuegrid runs"))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	if len(m.runs) == 0 {
		b.WriteString(styles.InactiveItem.Render("no runs yet"))
		b.WriteString("\n")
	}

	for i, r := range m.runs {
		line := fmt.Sprintf("#%-4d %-9s %-28s %4d/%-4d tiles  +%d ~%d -%d",
			r.ID, r.Status, truncate(r.RegionLabel, 28),
			r.CompletedTiles, r.TotalTiles, r.Inserted, r.Updated, r.Skipped)
		if i == m.cursor {
			b.WriteString(styles.ActiveItem.Render("> " + line))
		} else {
			b.WriteString(styles.InactiveItem.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if m.cursor < len(m.runs) {
		b.WriteString("\n")
		b.WriteString(m.renderSelected(m.runs[m.cursor]))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑/↓ select • p pause • q quit"))
	return b.String()
}

func (m monitorModel) renderSelected(r model.Run) string {
	var sb strings.Builder

	row := func(label, value string) {
		sb.WriteString(styles.Label.Render(label))
		sb.WriteString(styles.Value.Render(value))
		sb.WriteString("\n")
	}

	row("Provider:", r.Provider)
	row("Region:", r.RegionLabel)
	row("Status:", statusStyled(r.Status))
	row("Discovered:", fmt.Sprintf("%d", r.Discovered))
	row("Outcome:", fmt.Sprintf("%d inserted, %d updated, %d skipped", r.Inserted, r.Updated, r.Skipped))
	if len(r.Errors) > 0 {
		last := r.Errors[len(r.Errors)-1]
		row("Errors:", fmt.Sprintf("%d (last: %s)", len(r.Errors), truncate(last.Message, 48)))
	}

	var pct float64
	if r.TotalTiles > 0 {
		pct = float64(r.CompletedTiles) / float64(r.TotalTiles)
	}
	sb.WriteString("\n")
	sb.WriteString(m.progress.ViewAs(pct))
	sb.WriteString("\n")

	return styles.Border.Render(sb.String())
}

func statusStyled(status string) string {
	switch status {
	case model.RunCompleted:
		return lipgloss.NewStyle().Foreground(styles.Success).Render(status)
	case model.RunFailed:
		return lipgloss.NewStyle().Foreground(styles.Error).Render(status)
	case model.RunRunning:
		return lipgloss.NewStyle().Foreground(styles.Secondary).Render(status)
	case model.RunPaused:
		return lipgloss.NewStyle().Foreground(styles.Warning).Render(status)
	default:
		return status
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
