// Package board renders a live terminal view of one shared plan: task
// progress, members and the latest discussion, refreshed by polling.
package board

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dailycompanion/companion/internal/client"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	maxMessages     = 8
	fetchTimeout    = 5 * time.Second
)

// Source is the subset of the API the board reads from.
type Source interface {
	GetPlan(ctx context.Context, planID string) (sharedplan.PlanView, error)
	Messages(ctx context.Context, planID string, since time.Time, limit int) ([]sharedplan.Message, error)
}

// Model is the BubbleTea board model.
type Model struct {
	src      Source
	planID   string
	interval time.Duration
	now      func() time.Time

	plan       sharedplan.PlanView
	loaded     bool
	messages   []sharedplan.Message
	since      time.Time
	activity   []float64
	lastUpdate time.Time
	err        error
	gone       bool
	quitting   bool

	taskProgress progress.Model
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a board for planID refreshed every interval.
func NewModel(src Source, planID string, interval time.Duration) Model {
	return Model{
		src:      src,
		planID:   planID,
		interval: interval,
		now:      time.Now,
		activity: make([]float64, 0, historySize),
		taskProgress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// Err returns the last fetch error.
func (m Model) Err() error { return m.err }

// Gone reports whether the board stopped because the plan was deleted or
// the user lost access to it.
func (m Model) Gone() bool { return m.gone }

type tickMsg time.Time

type snapshotMsg struct {
	plan     sharedplan.PlanView
	messages []sharedplan.Message
}

type errMsg struct{ err error }

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), m.fetch())
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetch loads the plan and the messages after the current cursor.
func (m Model) fetch() tea.Cmd {
	src, planID, since := m.src, m.planID, m.since
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		plan, err := src.GetPlan(ctx, planID)
		if err != nil {
			return errMsg{err}
		}
		msgs, err := src.Messages(ctx, planID, since, 0)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{plan: plan, messages: msgs}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tickMsg:
		return m, tea.Batch(tick(m.interval), m.fetch())

	case snapshotMsg:
		m.plan = msg.plan
		m.loaded = true
		m.activity = appendToHistory(m.activity, float64(len(msg.messages)))
		if n := len(msg.messages); n > 0 {
			m.since = msg.messages[n-1].CreatedAt
			m.messages = append(m.messages, msg.messages...)
			if len(m.messages) > maxMessages {
				m.messages = m.messages[len(m.messages)-maxMessages:]
			}
		}
		m.lastUpdate = m.now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		switch client.StatusOf(msg.err) {
		case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
			m.gone = true
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.loaded {
		if m.err != nil {
			return m.renderError()
		}
		return dimStyle.Render("Loading plan " + m.planID + "...")
	}
	return m.renderBoard()
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" companion board ") + "\n\n")
	b.WriteString(errorStyle.Render("Cannot load plan "+m.planID) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry"))
	return containerStyle.Render(b.String())
}

func (m Model) renderBoard() string {
	var b strings.Builder
	now := m.now()

	b.WriteString(headerStyle.Render(" "+m.plan.Name+" ") + "  " +
		labelStyle.Render("role: ") + valueStyle.Render(m.plan.Role.String()) + "  " +
		dimStyle.Render("updated "+FormatAge(m.lastUpdate, now)) + "\n")
	if m.plan.Description != "" {
		b.WriteString(dimStyle.Render(m.plan.Description) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("refresh failed: "+m.err.Error()) + "\n")
	}

	done := 0
	for _, t := range m.plan.Tasks {
		if t.Status == sharedplan.TaskCompleted {
			done++
		}
	}
	b.WriteString(sectionStyle.Render("┃ Tasks") + "\n")
	b.WriteString(labelStyle.Render("  Done: ") +
		m.taskProgress.ViewAs(Ratio(done, len(m.plan.Tasks))) + " " +
		dimStyle.Render(FormatProgress(done, len(m.plan.Tasks))) + "\n")
	if len(m.plan.Tasks) == 0 {
		b.WriteString(dimStyle.Render("  no tasks") + "\n")
	}
	for _, t := range m.plan.Tasks {
		assignee := "unassigned"
		if t.AssignedTo != nil {
			assignee = "@" + *t.AssignedTo
		}
		b.WriteString("  " + statusBadge(t.Status) + " " + valueStyle.Render(t.Title) + " " + dimStyle.Render(assignee) + "\n")
	}

	b.WriteString(sectionStyle.Render("┃ Members") + "\n")
	b.WriteString("  " + valueStyle.Render(m.plan.OwnerID) + dimStyle.Render(" owner") + "\n")
	for _, mem := range m.plan.Members {
		b.WriteString("  " + valueStyle.Render(mem.UserID) + dimStyle.Render(" "+string(mem.Role)) + "\n")
	}

	b.WriteString(sectionStyle.Render("┃ Discussion") + "   " + createSparkline(m.activity) + "\n")
	if len(m.messages) == 0 {
		b.WriteString(dimStyle.Render("  no messages yet") + "\n")
	}
	for _, msg := range m.messages {
		b.WriteString("  " + dimStyle.Render(msg.CreatedAt.Local().Format(time.TimeOnly)) + " " +
			labelStyle.Render(msg.SenderID+":") + " " + msg.Content + "\n")
	}

	b.WriteString(footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval)))

	return containerStyle.Render(b.String())
}

func statusBadge(s sharedplan.TaskStatus) string {
	switch s {
	case sharedplan.TaskCompleted:
		return doneStyle.Render("[✓]")
	case sharedplan.TaskInProgress:
		return activeStyle.Render("[~]")
	default:
		return dimStyle.Render("[ ]")
	}
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}
