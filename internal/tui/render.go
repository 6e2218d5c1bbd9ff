package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"marketcal/internal/calendar"
	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
	"marketcal/internal/events"
	"marketcal/internal/query"
)

// Styles.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	todayStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Reverse(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	highStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	tickerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	holidayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	searchBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
)

const cellWidth = 11

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.viewport.View(), m.renderFooter())
}

func (m Model) renderHeader() string {
	title := titleStyle.Render(" " + m.nav.Label() + " ")
	mode := headerStyle.Render(fmt.Sprintf(" %s view", m.nav.View))
	line := title + mode
	if m.loading {
		line += dimStyle.Render("  loading...")
	}

	stats := events.Statistics(m.events, m.nav.Year, m.nav.Month)
	summary := headerStyle.Render(fmt.Sprintf("%s events  %s earnings  ",
		dashboard.FormatInt(stats.Total), dashboard.FormatInt(stats.Earnings))) +
		highStyle.Render(fmt.Sprintf("%d high impact", stats.HighImpact)) +
		headerStyle.Render("  wave: "+events.WaveLabel(m.events, m.nav.Year, m.nav.Month))
	return line + "\n" + summary
}

func (m Model) renderFooter() string {
	if m.searching {
		return searchBarStyle.Render(m.search.View()) + "\n"
	}
	status := ""
	if m.status != "" {
		status = statusStyle.Render(m.status)
	}
	return status + "\n" + m.help.View(keys)
}

func (m Model) renderContent() string {
	var b strings.Builder
	m.renderGrid(&b)
	b.WriteString("\n")
	m.renderDay(&b)
	return b.String()
}

// ---------------------------------------------------------------------------
// Grid
// ---------------------------------------------------------------------------

func (m Model) grid() [][]calendar.Cell {
	return m.nav.Grid(m.now())
}

func (m Model) renderGrid(b *strings.Builder) {
	for wd := range calendar.DaysPerWeek {
		b.WriteString(headerStyle.Width(cellWidth).Render(calendar.ShortDayName(wd)))
	}
	b.WriteString("\n")

	for _, row := range events.Attach(m.grid(), m.index) {
		for _, day := range row {
			b.WriteString(m.renderCell(day))
		}
		b.WriteString("\n")
	}
}

func (m Model) renderCell(day events.DayEvents) string {
	label := fmt.Sprintf("%2d", day.Day)
	if m.nav.View == calendar.ViewWeek || !day.IsCurrentMonth {
		label = day.Date().ShortLabel()
	}

	high := 0
	closed := false
	for _, ev := range day.Events {
		if ev.Impact == domain.ImpactHigh {
			high++
		}
		if ev.Closed {
			closed = true
		}
	}

	marks := ""
	switch {
	case closed:
		marks = holidayStyle.Render(" closed")
	case len(day.Events) > 0:
		marks = countStyle.Render(fmt.Sprintf(" %d", len(day.Events)))
		if high > 0 {
			marks += highStyle.Render("!")
		}
	}

	style := lipgloss.NewStyle()
	switch {
	case day.Date() == m.nav.Selected:
		style = selectedStyle
	case day.IsToday:
		style = todayStyle
	case !day.IsCurrentMonth:
		style = dimStyle
	}
	return lipgloss.NewStyle().Width(cellWidth).Render(style.Render(label) + marks)
}

// ---------------------------------------------------------------------------
// Selected day table
// ---------------------------------------------------------------------------

var tableColumns = []struct {
	title string
	width int
	sort  query.SortKey
}{
	{"Ticker", 7, query.SortNone},
	{"Company", 26, query.SortNone},
	{"Session", 12, query.SortNone},
	{"Mkt Cap", 10, query.SortMarketCap},
	{"EPS Est", 9, query.SortEPSForecast},
	{"EPS", 9, query.SortEPSActual},
	{"Rev Est", 10, query.SortRevenueForecast},
	{"Revenue", 10, query.SortRevenueActual},
}

func (m Model) renderDay(b *strings.Builder) {
	sel := m.nav.Selected
	fmt.Fprintf(b, "%s, %s %d, %d", calendar.DayName(sel.Weekday()), calendar.MonthName(sel.Month), sel.Day, sel.Year)
	if m.query.Session != query.SessionAll {
		b.WriteString(headerStyle.Render("  session: " + string(m.query.Session)))
	}
	if m.query.Search != "" {
		b.WriteString(headerStyle.Render(fmt.Sprintf("  search: %q", m.query.Search)))
	}
	b.WriteString("\n")

	res := query.Run(m.dayEvents(), m.query)
	switch res.Empty {
	case query.NoEvents:
		b.WriteString(dimStyle.Render("No events on this day.") + "\n")
		return
	case query.NoMatches:
		b.WriteString(dimStyle.Render("No events match the current filters.") + "\n")
		return
	}

	for _, col := range tableColumns {
		title := col.title
		if col.sort != query.SortNone && col.sort == m.query.SortKey {
			if m.query.Direction == query.Desc {
				title += "↓"
			} else {
				title += "↑"
			}
		}
		b.WriteString(headerStyle.Width(col.width).Render(title))
	}
	b.WriteString("\n")

	for _, ev := range res.Rows {
		b.WriteString(renderRow(ev))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("Showing %d-%d of %d  page %d/%d",
		res.Start, res.End, res.Filtered, res.Page, res.PageCount)))
	b.WriteString("\n")
}

func renderRow(ev domain.Event) string {
	session := ev.Session.String()
	if ev.Category != domain.CategoryEarnings {
		session = string(ev.Category)
	}
	cells := []string{
		ev.Ticker,
		truncate(ev.DisplayName(), tableColumns[1].width-1),
		session,
		dashboard.FormatMarketCap(ev.MarketCap),
		dashboard.FormatEPS(ev.EPSForecast),
		dashboard.FormatEPS(ev.EPSActual),
		dashboard.FormatRevenue(ev.RevenueForecast),
		dashboard.FormatRevenue(ev.RevenueActual),
	}

	var b strings.Builder
	for i, c := range cells {
		style := lipgloss.NewStyle().Width(tableColumns[i].width)
		if i == 0 {
			style = tickerStyle.Width(tableColumns[i].width)
		}
		b.WriteString(style.Render(c))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
