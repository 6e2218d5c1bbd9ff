package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ViewMode selects between the week and month calendar layouts.
type ViewMode int

const (
	ViewWeek ViewMode = iota
	ViewMonth
)

func (v ViewMode) String() string {
	if v == ViewMonth {
		return "month"
	}
	return "week"
}

// MarshalText encodes the view mode by name.
func (v ViewMode) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes "week" or "month".
func (v *ViewMode) UnmarshalText(b []byte) error {
	m, err := ParseViewMode(string(b))
	if err != nil {
		return err
	}
	*v = m
	return nil
}

// ParseViewMode parses "week" or "month".
func ParseViewMode(s string) (ViewMode, error) {
	switch s {
	case "week":
		return ViewWeek, nil
	case "month":
		return ViewMonth, nil
	}
	return 0, fmt.Errorf("unknown view mode %q", s)
}

// ErrOutsidePeriod is returned by Select for a date that is not shown in the
// current grid.
var ErrOutsidePeriod = errors.New("date is outside the displayed period")

// MonthKey identifies one month of event data.
type MonthKey struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Contains reports whether the date key falls in the month.
func (k MonthKey) Contains(key string) bool {
	return len(key) >= 7 && key[:7] == k.String()
}

// Add returns the month delta months away.
func (k MonthKey) Add(delta int) MonthKey {
	y, m := AddMonths(k.Year, k.Month, delta)
	return MonthKey{Year: y, Month: m}
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// ParseMonthKey parses the "YYYY-MM" form produced by MonthKey.String.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil || len(s) != 7 {
		return MonthKey{}, fmt.Errorf("invalid month key %q", s)
	}
	return MonthOf(t), nil
}

// State is the navigation state of one calendar view. It is a value: every
// command returns a new State and never modifies its input.
type State struct {
	View      ViewMode `json:"view"`
	Year      int      `json:"year"`
	Month     int      `json:"month"`
	WeekStart Date     `json:"week_start"` // always a Sunday
	Selected  Date     `json:"selected"`
	// VariableGrid shows month grids with as many rows as the month needs
	// (see MonthGridVariable) instead of MonthGridRows.
	VariableGrid bool `json:"variable_grid,omitempty"`
}

// Validate checks a state that arrived from outside the package: the month is
// 1-12, the week start is a Sunday and the selection lies in the displayed
// grid.
func (s State) Validate() error {
	switch {
	case s.View != ViewWeek && s.View != ViewMonth:
		return fmt.Errorf("unknown view mode %d", s.View)
	case s.Year < 1:
		return fmt.Errorf("year %d out of range", s.Year)
	case s.Month < 1 || s.Month > 12:
		return fmt.Errorf("month %d out of range", s.Month)
	case s.WeekStart.IsZero():
		return errors.New("week start is required")
	case s.WeekStart.Weekday() != 0:
		return fmt.Errorf("week start %s is not a Sunday", s.WeekStart)
	case s.Selected.IsZero():
		return errors.New("selected date is required")
	case !s.Contains(s.Selected):
		return fmt.Errorf("selected %s: %w", s.Selected, ErrOutsidePeriod)
	}
	return nil
}

// Transition is the result of a navigation command: the next state and the
// months whose events must be loaded to display it. Fetch is empty when the
// displayed months did not change.
type Transition struct {
	State State      `json:"state"`
	Fetch []MonthKey `json:"fetch,omitempty"`
}

// NewState returns the initial state for view: the week and month containing
// now, with now selected.
func NewState(view ViewMode, now time.Time) State {
	today := FromTime(now)
	return State{
		View:      view,
		Year:      today.Year,
		Month:     today.Month,
		WeekStart: today.StartOfWeek(),
		Selected:  today,
	}
}

// Previous moves one period back: one month in month view, seven days in
// week view. The selection moves to today when the new period contains it,
// otherwise to the period's first day (the 1st, or the week's Sunday).
func Previous(s State, now time.Time) Transition {
	return shift(s, -1, now)
}

// Next moves one period forward.
func Next(s State, now time.Time) Transition {
	return shift(s, 1, now)
}

func shift(s State, delta int, now time.Time) Transition {
	next := s
	if s.View == ViewMonth {
		next.Year, next.Month = AddMonths(s.Year, s.Month, delta)
		next.Selected = monthSelection(next.Year, next.Month, now)
	} else {
		next.WeekStart = s.WeekStart.AddDays(7 * delta)
		next.Year, next.Month = next.WeekStart.Year, next.WeekStart.Month
		next.Selected = weekSelection(next.WeekStart, now)
	}
	return transition(s, next)
}

// Today jumps to the week and month containing now and selects now. The view
// mode is kept.
func Today(s State, now time.Time) Transition {
	next := NewState(s.View, now)
	next.VariableGrid = s.VariableGrid
	return transition(s, next)
}

// SwitchView changes the view mode. Switching to week view keeps the current
// week start and selects today if that week contains it, otherwise the
// week's Sunday. Switching to month view shows the current month and selects
// today.
func SwitchView(s State, mode ViewMode, now time.Time) Transition {
	next := s
	next.View = mode
	if mode == ViewWeek {
		next.Year, next.Month = s.WeekStart.Year, s.WeekStart.Month
		next.Selected = weekSelection(s.WeekStart, now)
	} else {
		today := FromTime(now)
		next.Year, next.Month = today.Year, today.Month
		next.Selected = today
	}
	return transition(s, next)
}

// Goto shows the period containing d and selects d. The view mode is kept.
func Goto(s State, d Date) Transition {
	next := s
	next.WeekStart = d.StartOfWeek()
	next.Selected = d
	if s.View == ViewMonth {
		next.Year, next.Month = d.Year, d.Month
	} else {
		next.Year, next.Month = next.WeekStart.Year, next.WeekStart.Month
	}
	return transition(s, next)
}

// Select selects d, which must lie inside the displayed grid.
func Select(s State, d Date) (State, error) {
	if !s.Contains(d) {
		return s, fmt.Errorf("selecting %s: %w", d, ErrOutsidePeriod)
	}
	s.Selected = d
	return s, nil
}

// Rows returns the number of week rows the state's grid shows.
func (s State) Rows() int {
	switch {
	case s.View == ViewWeek:
		return 1
	case s.VariableGrid:
		return max(MonthGridRows, RowsNeeded(s.Year, s.Month))
	}
	return MonthGridRows
}

// Grid returns the cells the state displays: the week's single row in week
// view, otherwise the month grid.
func (s State) Grid(now time.Time) [][]Cell {
	if s.View == ViewWeek {
		return [][]Cell{WeekGrid(s.WeekStart, now)}
	}
	return buildMonthGrid(s.Year, s.Month, now, s.Rows())
}

// Period returns the first and last date shown by the state's grid.
func (s State) Period() (Date, Date) {
	if s.View == ViewWeek {
		return s.WeekStart, s.WeekStart.AddDays(DaysPerWeek - 1)
	}
	first := NewDate(s.Year, s.Month, 1)
	start := first.AddDays(-first.Weekday())
	return start, start.AddDays(s.Rows()*DaysPerWeek - 1)
}

// Contains reports whether d is shown in the state's grid.
func (s State) Contains(d Date) bool {
	start, end := s.Period()
	return !d.Before(start) && !d.After(end)
}

// Months returns the months of event data the view needs: the displayed month
// in month view, or the one or two months the week touches in week view.
func (s State) Months() []MonthKey {
	if s.View == ViewMonth {
		return []MonthKey{{Year: s.Year, Month: s.Month}}
	}
	start, end := s.Period()
	keys := []MonthKey{{Year: start.Year, Month: start.Month}}
	if end.Month != start.Month {
		keys = append(keys, MonthKey{Year: end.Year, Month: end.Month})
	}
	return keys
}

// Label renders the displayed period: "January 2025" in month view,
// "Jan 5 - 11, 2025" or "Dec 29 - Jan 4, 2024" in week view.
func (s State) Label() string {
	if s.View == ViewMonth {
		return fmt.Sprintf("%s %d", MonthName(s.Month), s.Year)
	}
	start, end := s.Period()
	if start.Month == end.Month {
		return fmt.Sprintf("%s %d - %d, %d", ShortMonthName(start.Month), start.Day, end.Day, start.Year)
	}
	return fmt.Sprintf("%s - %s, %d", start.ShortLabel(), end.ShortLabel(), start.Year)
}

// weekSelection selects today if the week starting at weekStart contains it,
// otherwise the week's Sunday.
func weekSelection(weekStart Date, now time.Time) Date {
	today := FromTime(now)
	if today.StartOfWeek() == weekStart {
		return today
	}
	return weekStart
}

// monthSelection selects today when the month is the current one, otherwise
// the 1st.
func monthSelection(year, month int, now time.Time) Date {
	today := FromTime(now)
	if today.Year == year && today.Month == month {
		return today
	}
	return Date{Year: year, Month: month, Day: 1}
}

func transition(prev, next State) Transition {
	t := Transition{State: next}
	before, after := prev.Months(), next.Months()
	if !sameMonths(before, after) {
		t.Fetch = after
	}
	return t
}

func sameMonths(a, b []MonthKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
