package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	printingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

type watchJob struct {
	ID          string
	ProductName string
	Status      string
	Quantity    int
	Error       string
	AddedAt     time.Time
}

type jobsMsg struct {
	jobs     []watchJob
	degraded bool
	err      error
}

type tickMsg time.Time

// watchModel is the live queue view
type watchModel struct {
	relayURL string
	jobs     []watchJob
	degraded bool
	cursor   int
	spinner  spinner.Model
	err      error
	message  string
}

func newWatchModel(relayURL string) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return watchModel{
		relayURL: relayURL,
		spinner:  sp,
	}
}

func cmdWatch(relayURL string) error {
	p := tea.NewProgram(newWatchModel(relayURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchJobs(m.relayURL), tick())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchJobs(relayURL string) tea.Cmd {
	return func() tea.Msg {
		resp, err := getJSON(relayURL + "/jobs")
		if err != nil {
			return jobsMsg{err: err}
		}

		var msg jobsMsg
		msg.degraded, _ = resp["degraded"].(bool)

		raw, _ := resp["jobs"].([]interface{})
		for _, j := range raw {
			job, ok := j.(map[string]interface{})
			if !ok {
				continue
			}
			w := watchJob{}
			w.ID, _ = job["id"].(string)
			w.ProductName, _ = job["productName"].(string)
			w.Status, _ = job["status"].(string)
			w.Error, _ = job["error"].(string)
			if q, ok := job["quantity"].(float64); ok {
				w.Quantity = int(q)
			}
			if added, ok := job["addedAt"].(string); ok {
				w.AddedAt, _ = time.Parse(time.RFC3339, added)
			}
			msg.jobs = append(msg.jobs, w)
		}
		return msg
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.jobs)-1 {
				m.cursor++
			}
		case "x":
			if m.cursor < len(m.jobs) {
				id := m.jobs[m.cursor].ID
				return m, cancelJob(m.relayURL, id)
			}
		case "r":
			return m, fetchJobs(m.relayURL)
		}

	case tickMsg:
		return m, tea.Batch(fetchJobs(m.relayURL), tick())

	case jobsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.jobs = msg.jobs
			m.degraded = msg.degraded
			if m.cursor >= len(m.jobs) && len(m.jobs) > 0 {
				m.cursor = len(m.jobs) - 1
			}
		}
		return m, nil

	case cancelResultMsg:
		m.message = string(msg)
		return m, fetchJobs(m.relayURL)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

type cancelResultMsg string

func cancelJob(relayURL, id string) tea.Cmd {
	return func() tea.Msg {
		if _, err := deleteJSON(relayURL + "/job/" + id); err != nil {
			return cancelResultMsg(fmt.Sprintf("cancel failed: %v", err))
		}
		return cancelResultMsg("cancelled " + id)
	}
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Label Queue"))
	b.WriteString("  ")
	b.WriteString(m.spinner.View())
	if m.degraded {
		b.WriteString("  " + failedStyle.Render("⚠ persistence degraded"))
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(failedStyle.Render(fmt.Sprintf("✗ %v", m.err)))
		b.WriteString("\n")
	} else if len(m.jobs) == 0 {
		b.WriteString(mutedStyle.Render("Queue is empty.\n"))
	} else {
		for i, job := range m.jobs {
			cursor := "  "
			if i == m.cursor {
				cursor = "▸ "
			}

			var statusStyle lipgloss.Style
			switch job.Status {
			case "pending":
				statusStyle = pendingStyle
			case "printing":
				statusStyle = printingStyle
			case "failed":
				statusStyle = failedStyle
			default:
				statusStyle = mutedStyle
			}

			age := ""
			if !job.AddedAt.IsZero() {
				age = time.Since(job.AddedAt).Truncate(time.Second).String()
			}

			line := fmt.Sprintf("%s%-24s ×%-3d %s  %s",
				cursor, truncate(job.ProductName, 24), job.Quantity,
				statusStyle.Render(fmt.Sprintf("%-9s", job.Status)),
				mutedStyle.Render(age))
			if i == m.cursor {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")

			if i == m.cursor && job.Error != "" {
				b.WriteString(failedStyle.Render("    " + job.Error))
				b.WriteString("\n")
			}
		}
	}

	if m.message != "" {
		b.WriteString("\n" + mutedStyle.Render(m.message) + "\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ select  x cancel  r refresh  q quit"))
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
