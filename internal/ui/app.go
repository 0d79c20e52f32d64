package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/koaarchive/koa/internal/logtail"
	"github.com/koaarchive/koa/internal/prefs"
	"github.com/koaarchive/koa/internal/state"
)

const (
	defaultPollTick = 250 * time.Millisecond
	logTailLines    = 8
)

// Options configure the job monitor.
type Options struct {
	Store *state.Store
	// Title names what is being watched, for example the query text.
	Title     string
	LogPath   string
	LogLevel  string
	PollTick  time.Duration
	ThemeName string
	PrefsPath string
}

// Model is the Bubble Tea model of the job monitor. It only reads from the
// store; the query itself runs elsewhere and reports through it.
type Model struct {
	store     *state.Store
	title     string
	logPath   string
	logLevel  string
	prefsPath string
	pollTick  time.Duration

	theme   Theme
	keys    keyMap
	help    help.Model
	spinner spinner.Model
	width   int

	snapshot state.Snapshot
	logLines []string
	showLogs bool
	showHelp bool
	detached bool
	now      func() time.Time
}

// New creates a monitor model.
func New(opts Options) Model {
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = defaultPollTick
	}
	themeName := opts.ThemeName
	if themeName == "" {
		themeName = DefaultTheme
	}
	theme := GetTheme(themeName)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.Styles().AccentText

	return Model{
		store:     opts.Store,
		title:     opts.Title,
		logPath:   opts.LogPath,
		logLevel:  opts.LogLevel,
		prefsPath: opts.PrefsPath,
		pollTick:  pollTick,
		theme:     theme,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
		now:       time.Now,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.pollTick)}
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		if m.showLogs {
			cmds = append(cmds, m.fetchLogsCmd())
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		if m.snapshot.Done {
			return m, tea.Quit
		}
		return m, nil

	case logLinesMsg:
		m.logLines = msg
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.detached = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.spinner.Style = m.theme.Styles().AccentText
		if m.prefsPath != "" {
			name := m.theme.Name
			_ = prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.Theme = name })
		}
	case key.Matches(msg, m.keys.ToggleLogs):
		m.showLogs = !m.showLogs
		if m.showLogs {
			return m, m.fetchLogsCmd()
		}
	}
	return m, nil
}

// Detached reports whether the user left the monitor before the job ended.
func (m Model) Detached() bool { return m.detached }

// View implements tea.Model.
func (m Model) View() string {
	styles := m.theme.Styles()
	if m.showHelp {
		return styles.Panel.Render(m.help.FullHelpView(m.keys.FullHelp())) + "\n"
	}

	var b strings.Builder
	b.WriteString(styles.Header.Render("koa"))
	if m.title != "" {
		b.WriteString(" ")
		b.WriteString(styles.MutedText.Render(truncate(oneLine(m.title), max(m.width-8, 40))))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus(styles))
	b.WriteString("\n")

	if m.showLogs {
		b.WriteString("\n")
		b.WriteString(m.renderLogs(styles))
		b.WriteString("\n")
	}
	if !m.snapshot.Done {
		b.WriteString("\n")
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderStatus(styles Styles) string {
	snap := m.snapshot
	var lines []string

	switch {
	case !snap.HasJob && !snap.Done:
		lines = append(lines, m.spinner.View()+" submitting query")
	case snap.HasJob:
		job := snap.Job
		phase := styles.PhaseStyle(job.Phase).Render(string(job.Phase))
		head := phase + " " + styles.Text.Render(job.JobID)
		if !snap.Done && !job.Phase.Terminal() {
			head = m.spinner.View() + " " + head
		}
		lines = append(lines, head)
		lines = append(lines, styles.FaintText.Render(job.StatusURL))
		lines = append(lines, styles.MutedText.Render(fmt.Sprintf("polls %d  elapsed %s", job.Polls, snap.Elapsed(m.now()).Round(time.Second))))
		if len(snap.History) > 1 {
			var steps []string
			for _, h := range snap.History {
				steps = append(steps, string(h.Phase))
			}
			lines = append(lines, styles.FaintText.Render(strings.Join(steps, " > ")))
		}
		if job.ErrorSummary != "" {
			lines = append(lines, styles.DangerText.Render(oneLine(job.ErrorSummary)))
		}
	}

	if !snap.Done && snap.LastError != nil {
		lines = append(lines, styles.WarningText.Render("retrying: "+oneLine(snap.LastError.Error())))
	}
	if snap.Done {
		if snap.LastError != nil {
			lines = append(lines, styles.DangerText.Render("failed: "+oneLine(snap.LastError.Error())))
		} else if snap.Summary != "" {
			lines = append(lines, styles.SuccessText.Render(snap.Summary))
		}
	}
	return styles.Panel.Render(strings.Join(lines, "\n"))
}

func (m Model) renderLogs(styles Styles) string {
	if len(m.logLines) == 0 {
		return styles.FaintText.Render("no log lines")
	}
	out := make([]string, 0, len(m.logLines))
	for _, line := range m.logLines {
		out = append(out, styles.FaintText.Render(truncate(line, max(m.width-2, 60))))
	}
	return strings.Join(out, "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

type tickMsg time.Time

type snapshotMsg state.Snapshot

type logLinesMsg []string

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func (m Model) fetchLogsCmd() tea.Cmd {
	path, level := m.logPath, m.logLevel
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		lines, err := logtail.Read(path, logTailLines, logtail.MinLevel(level))
		if err != nil {
			return logLinesMsg{"log unavailable: " + err.Error()}
		}
		return logLinesMsg(lines)
	}
}

// Run shows the monitor until the store reports completion, the user
// quits or ctx is cancelled. It reports whether the user detached early.
func Run(ctx context.Context, opts Options) (bool, error) {
	if opts.Store == nil {
		return false, fmt.Errorf("ui requires a data store")
	}
	p := tea.NewProgram(New(opts), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}
	if m, ok := final.(Model); ok {
		return m.Detached(), nil
	}
	return false, nil
}
