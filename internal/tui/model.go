// Package tui is the terminal calendar: a week or month grid with per-day
// event counts over a searchable, sortable table of the selected day.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
	"marketcal/internal/events"
	"marketcal/internal/export"
	"marketcal/internal/query"
	"marketcal/internal/source"
)

// Options configures the terminal calendar.
type Options struct {
	View         calendar.ViewMode
	PageSize     int
	VariableGrid bool
	ExportDir    string
}

// Messages.
type loadedMsg struct{ res source.Result }

type exportedMsg struct {
	path string
	err  error
}

// Model.
type Model struct {
	ctx    context.Context
	loader *source.Loader
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	nav     calendar.State
	query   query.State
	events  []domain.Event
	index   events.Index
	pending string // period key of the load the model waits for
	initial func() source.Result
	loading bool
	failed  []calendar.MonthKey
	status  string

	search    textinput.Model
	searching bool
	help      help.Model
	viewport  viewport.Model
	ready     bool
	width     int
	height    int
}

// New creates the model. Events are loaded through loader on Init.
func New(ctx context.Context, loader *source.Loader, opts Options, logger *slog.Logger) Model {
	return newModel(ctx, loader, opts, logger, time.Now)
}

func newModel(ctx context.Context, loader *source.Loader, opts Options, logger *slog.Logger, now func() time.Time) Model {
	ti := textinput.New()
	ti.Prompt = "search: "
	ti.Placeholder = "ticker or company"
	ti.CharLimit = 40
	ti.ShowSuggestions = true

	q := query.NewState()
	if opts.PageSize != 0 {
		if sized, err := q.SetPageSize(opts.PageSize); err == nil {
			q = sized
		}
	}

	m := Model{
		ctx:    ctx,
		loader: loader,
		opts:   opts,
		logger: logger,
		now:    now,
		nav:    calendar.NewState(opts.View, now()),
		query:  q,
		index:  events.Index{},
		search: ti,
		help:   help.New(),
	}
	m.nav.VariableGrid = opts.VariableGrid
	// Init has a value receiver, so the first load is registered here.
	m.pending, m.initial = loader.Start(ctx, m.nav.Months())
	m.loading = true
	return m
}

func (m Model) Init() tea.Cmd {
	run := m.initial
	return func() tea.Msg { return loadedMsg{res: run()} }
}

// load starts a keyed load. The loader cancels any load still in flight; its
// result will not match pending and is dropped.
func (m *Model) load(months []calendar.MonthKey) tea.Cmd {
	period, run := m.loader.Start(m.ctx, months)
	m.pending = period
	m.loading = true
	return func() tea.Msg { return loadedMsg{res: run()} }
}

// apply runs a navigation transition, loading new months when it asks for
// them.
func (m *Model) apply(t calendar.Transition) tea.Cmd {
	m.nav = t.State
	m.query = m.query.SetPage(1)
	if len(t.Fetch) == 0 {
		return nil
	}
	return m.load(t.Fetch)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		cmd = m.handleKey(msg)
		m.refresh()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerH := 2
		footerH := 2
		vpHeight := m.height - headerH - footerH
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.help.Width = m.width
		m.refresh()
		return m, nil

	case loadedMsg:
		if msg.res.Key != m.pending || msg.res.Canceled {
			m.logger.Debug("dropping stale load", "period", msg.res.Key, "current", m.pending)
			return m, nil
		}
		m.loading = false
		m.events = msg.res.Events
		m.index = events.BuildIndex(m.events)
		m.failed = msg.res.Failed
		m.search.SetSuggestions(events.Tickers(m.events))
		m.status = ""
		switch {
		case len(m.failed) > 0:
			m.status = fmt.Sprintf("could not load %d month(s)", len(m.failed))
		case len(msg.res.Incomplete) > 0:
			m.status = fmt.Sprintf("%d month(s) incomplete", len(msg.res.Incomplete))
		}
		m.refresh()
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.logger.Error("export failed", "error", msg.err)
			m.status = "export failed: " + msg.err.Error()
		} else {
			m.logger.Info("exported", "path", msg.path)
			m.status = "exported " + msg.path
		}
		m.refresh()
		return m, nil
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	now := m.now()
	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	case key.Matches(msg, keys.Prev):
		return m.apply(calendar.Previous(m.nav, now))
	case key.Matches(msg, keys.Next):
		return m.apply(calendar.Next(m.nav, now))
	case key.Matches(msg, keys.Today):
		return m.apply(calendar.Today(m.nav, now))
	case key.Matches(msg, keys.Week):
		return m.apply(calendar.SwitchView(m.nav, calendar.ViewWeek, now))
	case key.Matches(msg, keys.Month):
		return m.apply(calendar.SwitchView(m.nav, calendar.ViewMonth, now))
	case key.Matches(msg, keys.DayUp):
		m.moveSelection(-1)
	case key.Matches(msg, keys.DayDown):
		m.moveSelection(1)
	case key.Matches(msg, keys.Search):
		m.searching = true
		m.search.SetValue(m.query.Search)
		m.search.CursorEnd()
		return m.search.Focus()
	case key.Matches(msg, keys.Session):
		m.query = m.query.SetSession(nextSession(m.query.Session))
	case key.Matches(msg, keys.Sort):
		m.query = m.query.ToggleSort(nextSortKey(m.query.SortKey))
	case key.Matches(msg, keys.Reverse):
		if m.query.SortKey != query.SortNone {
			m.query = m.query.ToggleSort(m.query.SortKey)
		}
	case key.Matches(msg, keys.NextPage):
		m.query = m.query.SetPage(m.query.Page + 1)
		m.clampPage()
	case key.Matches(msg, keys.PrevPage):
		if m.query.Page > 1 {
			m.query = m.query.SetPage(m.query.Page - 1)
		}
	case key.Matches(msg, keys.Export):
		return m.export()
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.query = m.query.SetSearch(m.search.Value())
		m.refresh()
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.query = m.query.SetSearch(m.search.Value())
	m.refresh()
	return m, cmd
}

// moveSelection moves the selected day by delta, staying inside the grid.
func (m *Model) moveSelection(delta int) {
	if st, err := calendar.Select(m.nav, m.nav.Selected.AddDays(delta)); err == nil {
		m.nav = st
		m.query = m.query.SetPage(1)
	}
}

func (m *Model) clampPage() {
	res := query.Run(m.dayEvents(), m.query)
	if res.PageCount > 0 && m.query.Page > res.PageCount {
		m.query = m.query.SetPage(res.PageCount)
	}
}

func (m Model) dayEvents() []domain.Event {
	return m.index.ForKey(m.nav.Selected.Key())
}

// export writes the displayed month's events as CSV.
func (m Model) export() tea.Cmd {
	evs := m.events
	year, month := m.nav.Year, m.nav.Month
	dir := m.opts.ExportDir
	return func() tea.Msg {
		path := filepath.Join(dir, export.Filename(export.KindEarnings.Domain(), year, month))
		f, err := os.Create(path)
		if err != nil {
			return exportedMsg{err: err}
		}
		if err := export.Month(f, export.KindEarnings, evs, year, month); err != nil {
			f.Close()
			return exportedMsg{err: err}
		}
		return exportedMsg{path: path, err: f.Close()}
	}
}

func (m *Model) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func nextSession(f query.SessionFilter) query.SessionFilter {
	switch f {
	case query.SessionAll:
		return query.SessionPre
	case query.SessionPre:
		return query.SessionPost
	}
	return query.SessionAll
}

// nextSortKey cycles through the sortable columns, then back to unsorted.
func nextSortKey(k query.SortKey) query.SortKey {
	if k == query.SortNone {
		return query.SortKeys[0]
	}
	for i, sk := range query.SortKeys {
		if sk == k && i+1 < len(query.SortKeys) {
			return query.SortKeys[i+1]
		}
	}
	return query.SortNone
}
