// Package tui renders a live batch as a terminal dashboard.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ytbatch/internal/events"
	"ytbatch/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	summaryStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	defaultBarWidth = 30
	titleWidth      = 36
	chromeRows      = 6
)

// StopFunc asks the running batch to stop. It must not block.
type StopFunc func() bool

type jobRow struct {
	id    string
	title string
	ev    model.ProgressEvent
}

// Model is the bubbletea model for one batch.
type Model struct {
	order []string
	rows  map[string]*jobRow

	sub  <-chan events.Message
	stop StopFunc

	bar     progress.Model
	spinner spinner.Model

	stopping bool
	summary  *model.BatchSummary
	width    int
	height   int
}

type eventMsg events.Message

type closedMsg struct{}

// New builds a dashboard for jobs fed by sub. titles may be nil or partial;
// job IDs stand in for missing titles.
func New(jobs []model.Job, titles map[string]string, sub <-chan events.Message, stop StopFunc) Model {
	m := Model{
		rows:    make(map[string]*jobRow, len(jobs)),
		sub:     sub,
		stop:    stop,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth), progress.WithoutPercentage()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(activeStyle)),
	}
	for _, j := range jobs {
		if _, dup := m.rows[j.ID]; dup {
			continue
		}
		title := strings.TrimSpace(titles[j.ID])
		if title == "" {
			title = j.ID
		}
		m.order = append(m.order, j.ID)
		m.rows[j.ID] = &jobRow{id: j.ID, title: title, ev: model.ProgressEvent{JobID: j.ID, Status: model.StatusPending}}
	}
	return m
}

// Summary is set once the batch has finished.
func (m Model) Summary() *model.BatchSummary {
	return m.summary
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.sub))
}

func waitForEvent(sub <-chan events.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return closedMsg{}
		}
		return eventMsg(msg)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := msg.Width - titleWidth - 40
		if w > defaultBarWidth {
			w = defaultBarWidth
		}
		if w < 10 {
			w = 10
		}
		m.bar.Width = w
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	case eventMsg:
		return m.apply(events.Message(msg))
	case closedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s", "ctrl+c", "q", "esc":
		if m.summary != nil {
			return m, tea.Quit
		}
		if !m.stopping {
			m.stopping = true
			if m.stop != nil {
				m.stop()
			}
		}
	case "enter":
		if m.summary != nil {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) apply(msg events.Message) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case events.TypeProgress:
		if msg.Event == nil {
			break
		}
		row, ok := m.rows[msg.Event.JobID]
		if !ok {
			row = &jobRow{id: msg.Event.JobID, title: msg.Event.JobID}
			m.rows[row.id] = row
			m.order = append(m.order, row.id)
		}
		row.ev = *msg.Event
	case events.TypeStopping:
		m.stopping = true
	case events.TypeStopped:
		m.summary = msg.Summary
		return m, tea.Quit
	}
	return m, waitForEvent(m.sub)
}

func (m Model) counts() (done, failed, cancelled, active int) {
	for _, id := range m.order {
		switch m.rows[id].ev.Status {
		case model.StatusCompleted:
			done++
		case model.StatusError:
			failed++
		case model.StatusCancelled:
			cancelled++
		case model.StatusDownloading, model.StatusProcessing:
			active++
		}
	}
	return
}

func (m Model) View() string {
	done, failed, cancelled, active := m.counts()
	total := len(m.order)

	var b strings.Builder
	header := titleStyle.Render("ytbatch") + "  " +
		mutedStyle.Render(fmt.Sprintf("%d/%d done  %d active  %d failed  %d cancelled", done, total, active, failed, cancelled))
	b.WriteString(header + "\n\n")

	visible, hidden := m.visibleRows()
	for _, row := range visible {
		b.WriteString(m.renderRow(row) + "\n")
	}
	if hidden > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  ... and %d more", hidden)) + "\n")
	}
	b.WriteString("\n")

	switch {
	case m.summary != nil:
		b.WriteString(renderSummary(*m.summary) + "\n")
		b.WriteString(mutedStyle.Render("enter/q: exit") + "\n")
	case m.stopping:
		b.WriteString(warnStyle.Render("stopping: waiting for running downloads to exit...") + "\n")
	default:
		b.WriteString(mutedStyle.Render("s/ctrl+c: stop all") + "\n")
	}
	return b.String()
}

// visibleRows keeps active jobs on screen when the list is taller than the
// terminal.
func (m Model) visibleRows() ([]*jobRow, int) {
	rows := make([]*jobRow, 0, len(m.order))
	for _, id := range m.order {
		rows = append(rows, m.rows[id])
	}
	limit := m.height - chromeRows
	if m.height <= 0 || len(rows) <= limit {
		return rows, 0
	}
	if limit < 1 {
		limit = 1
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rowRank(rows[i].ev.Status) < rowRank(rows[j].ev.Status)
	})
	return rows[:limit], len(rows) - limit
}

func rowRank(s model.Status) int {
	switch s {
	case model.StatusDownloading, model.StatusProcessing:
		return 0
	case model.StatusError:
		return 1
	case model.StatusPending:
		return 2
	default:
		return 3
	}
}

func (m Model) renderRow(row *jobRow) string {
	ev := row.ev
	title := truncate(row.title, titleWidth)
	title = title + strings.Repeat(" ", titleWidth-lipgloss.Width(title))

	var icon, detail string
	switch ev.Status {
	case model.StatusPending:
		icon = mutedStyle.Render("·")
		detail = mutedStyle.Render("waiting")
	case model.StatusDownloading:
		icon = m.spinner.View()
		detail = fmt.Sprintf("%5.1f%%  %s", ev.Progress, mutedStyle.Render(joinNonEmpty("  ", ev.TotalSize, ev.Speed, etaLabel(ev.ETA))))
	case model.StatusProcessing:
		icon = m.spinner.View()
		detail = activeStyle.Render("converting")
	case model.StatusCompleted:
		icon = okStyle.Render("✓")
		detail = okStyle.Render("done")
	case model.StatusError:
		icon = errorStyle.Render("✗")
		detail = errorStyle.Render(truncate(firstLine(ev.Error), 60))
	case model.StatusCancelled:
		icon = warnStyle.Render("■")
		detail = warnStyle.Render(fmt.Sprintf("cancelled at %.1f%%", ev.Progress))
	}
	return fmt.Sprintf("%s %s %s %s", icon, title, m.bar.ViewAs(ev.Progress/100), detail)
}

func renderSummary(s model.BatchSummary) string {
	line := fmt.Sprintf("%d completed  %d failed  %d cancelled  of %d", s.Completed, s.Failed, s.Cancelled, s.Total)
	if s.Stopped {
		line = warnStyle.Render("stopped") + "  " + line
	} else {
		line = okStyle.Render("finished") + "  " + line
	}
	return summaryStyle.Render(line)
}

func etaLabel(eta string) string {
	if eta == "" {
		return ""
	}
	return "ETA " + eta
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
