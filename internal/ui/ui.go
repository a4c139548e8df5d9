package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/runs"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ChooseView ViewState = iota
	ConfirmView
	ProgressView
	ResultView
)

// Executor runs one migration request. [runs.Service] implements it.
type Executor interface {
	Execute(ctx context.Context, req runs.Request, progress chan<- tasks.ProgressUpdate) (*runs.Execution, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	executor Executor
	request  runs.Request
	width    int
	height   int
	subjects list.Model
	bar      progress.Model
	updates  chan tasks.ProgressUpdate
	done     chan runOutcome
	progress tasks.ProgressUpdate
	users    models.Counters
	channels int
	exec     *runs.Execution
	err      error
	expanded bool
	help     help.Model
	keys     keyMap
}

// NewModel creates a dashboard that runs template. Without a bulk operation in template the user picks one first.
func NewModel(ctx context.Context, executor Executor, template runs.Request) *Model {
	subjects := list.New(subjectItems(), list.NewDefaultDelegate(), 0, 0)
	subjects.Title = "What should be migrated?"
	subjects.SetShowStatusBar(false)
	subjects.SetFilteringEnabled(false)

	view := ChooseView
	switch template.Operation {
	case models.OperationUsers, models.OperationChannels:
		view = ConfirmView
	}

	return &Model{
		ctx:      ctx,
		view:     view,
		executor: executor,
		request:  template,
		subjects: subjects,
		bar:      progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

// Init has nothing to load; the subjects are static.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.subjects.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = min(max(msg.Width-8, 10), 80)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ChooseView:
			return m.handleChooseKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ProgressView:
			if key.Matches(msg, m.keys.abort) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.applyProgress(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgRunComplete:
			outcome := msg.data.(runOutcome)
			m.exec, m.err = outcome.exec, outcome.err
			m.updates, m.done = nil, nil
			m.view = ResultView
			return m, nil
		}
	}

	if m.view == ChooseView {
		var cmd tea.Cmd
		m.subjects, cmd = m.subjects.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ChooseView:
		return m.renderChoose()
	case ConfirmView:
		return m.renderConfirm()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleChooseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.subjects.SelectedItem().(subjectItem); ok {
			m.request.Operation = item.operation
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.subjects, cmd = m.subjects.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = ProgressView
		return m, m.startRun()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = ChooseView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.errors):
		m.expanded = !m.expanded
		return m, nil
	case key.Matches(msg, m.keys.restart):
		m.view = ChooseView
		m.exec, m.err, m.expanded = nil, nil, false
		m.progress = tasks.ProgressUpdate{}
		m.users, m.channels = models.Counters{}, 0
		return m, nil
	}
	return m, nil
}

func (m *Model) applyProgress(update tasks.ProgressUpdate) {
	m.progress = update
	switch data := update.Data.(type) {
	case models.Counters:
		m.users = data
	case models.SourceChannel:
		m.channels = update.Step
	case *tasks.MigrationResult:
		m.users = data.Users
		m.channels = data.Channels.Fetched
	}
}

func (m *Model) startRun() tea.Cmd {
	updates := make(chan tasks.ProgressUpdate, 64)
	done := make(chan runOutcome, 1)
	m.updates, m.done = updates, done

	req := m.request
	go func() {
		exec, err := m.executor.Execute(m.ctx, req, updates)
		done <- runOutcome{exec: exec, err: err}
		close(updates)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	updates, done := m.updates, m.done
	return func() tea.Msg {
		if updates == nil {
			return runCompleteMsg(nil, nil)
		}

		update, ok := <-updates
		if !ok {
			outcome := <-done
			return runCompleteMsg(outcome.exec, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderChoose() string {
	helpView := m.help.ShortHelpView(m.keys.forView(ChooseView))
	return fmt.Sprintf("%s\n\n%s", m.subjects.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Migrate %s?", m.request.Operation))

	limit := "all"
	if m.request.Limit > 0 {
		limit = humanize.Comma(int64(m.request.Limit))
	}
	pageSize := m.request.PageSize
	if pageSize == 0 {
		pageSize = tasks.DefaultPageSize
	}
	window := "none"
	if !m.request.Window.IsZero() {
		window = m.request.Window.String()
	}

	info := fmt.Sprintf("Window: %s\nLimit: %s\nPage size: %d\nLog files: %t", window, limit, pageSize, m.request.LogToFile)
	helpView := m.help.ShortHelpView(m.keys.forView(ConfirmView))

	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.box.Render(info), helpView)
}

func (m *Model) renderProgress() string {
	title := styles.title.Render(fmt.Sprintf("Migrating %s", m.request.Operation))

	var phase string
	switch m.progress.Phase {
	case tasks.FetchUsers:
		phase = "Fetching users..."
	case tasks.MigrateUserChunk:
		phase = fmt.Sprintf("Migrating user chunks (%d/%d merged)", m.progress.Step, m.progress.Total)
	case tasks.FetchChannels:
		phase = "Fetching channels..."
	case tasks.MigrateChannel:
		phase = fmt.Sprintf("Migrating channel %d", m.progress.Step)
	case tasks.Complete:
		phase = "Finishing..."
	default:
		phase = "Starting..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n", title, phase)
	if m.progress.Total > 0 {
		fmt.Fprintf(&b, "%s\n", m.bar.ViewAs(float64(m.progress.Step)/float64(m.progress.Total)))
	}
	fmt.Fprintf(&b, "%s\n\n", m.progress.Message)

	if m.request.Operation == models.OperationUsers {
		b.WriteString(styles.box.Render(fmt.Sprintf("fetched %s  %s %s  %s %s  %s %s",
			humanize.Comma(int64(m.users.Fetched)),
			styles.disposition(models.Success).Render("ok"), humanize.Comma(int64(m.users.Success)),
			styles.disposition(models.Skipped).Render("skipped"), humanize.Comma(int64(m.users.Skipped)),
			styles.disposition(models.Failure).Render("failed"), humanize.Comma(int64(m.users.Failed)))))
	} else {
		b.WriteString(styles.box.Render("channels processed: " + humanize.Comma(int64(m.channels))))
	}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView(m.keys.forView(ProgressView)))
	return b.String()
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView(m.keys.forView(ResultView))

	if m.exec == nil || m.exec.Result == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Migration failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	result := m.exec.Result
	var title string
	switch {
	case m.err != nil:
		title = styles.disposition(models.Failure).Render(fmt.Sprintf("✗ Migration failed: %v", m.err))
	case result.HasFailures():
		title = styles.disposition(models.Skipped).Render("! Migration finished with failures")
	default:
		title = styles.disposition(models.Success).Render("✓ Migration complete")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s", title, m.exec.Statistics)
	if result.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", result.Message)
	}
	if n := len(result.ErrorMessages); n > 0 {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render(humanize.Plural(n, "error", "errors")+":"))
		shown := result.ErrorMessages
		if !m.expanded && len(shown) > 10 {
			shown = shown[:10]
		}
		for _, msg := range shown {
			fmt.Fprintf(&b, "  • %s\n", msg)
		}
		if n > len(shown) {
			fmt.Fprintf(&b, "  … and %d more\n", n-len(shown))
		}
	}
	if run := m.exec.Run; run != nil && run.ID() != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.help.Render(fmt.Sprintf("Run #%d (%s) recorded", run.Sequence(), run.ID())))
	}

	return fmt.Sprintf("%s\n%s", b.String(), helpView)
}
