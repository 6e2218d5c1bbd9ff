package calendar

import (
	"fmt"
	"time"
)

// MonthGridRows is the fixed number of week rows in a month grid. Months that
// would need a sixth row (a 31-day month starting on Friday or Saturday, or a
// 30-day month starting on Saturday) lose their trailing days; use
// MonthGridVariable when every day must be shown.
const MonthGridRows = 5

// DaysPerWeek is the number of columns in every grid.
const DaysPerWeek = 7

// Cell is one day slot in a calendar grid.
type Cell struct {
	Day            int  `json:"day"`
	Month          int  `json:"month"`
	Year           int  `json:"year"`
	IsCurrentMonth bool `json:"is_current_month"`
	IsToday        bool `json:"is_today"`
}

// Date returns the calendar date of the cell.
func (c Cell) Date() Date {
	return Date{Year: c.Year, Month: c.Month, Day: c.Day}
}

// Key returns the cell's date key.
func (c Cell) Key() string {
	return DateKey(c.Year, c.Month, c.Day)
}

// MonthGrid returns MonthGridRows x 7 cells for the month: trailing days of
// the previous month, every day of the month and leading days of the next
// month, truncated at MonthGridRows rows. IsToday is evaluated against the
// calendar date of now.
func MonthGrid(year, month int, now time.Time) [][]Cell {
	return buildMonthGrid(year, month, now, MonthGridRows)
}

// MonthGridVariable returns a month grid of five or six rows, whichever the
// month needs to show all of its days.
func MonthGridVariable(year, month int, now time.Time) [][]Cell {
	return buildMonthGrid(year, month, now, max(MonthGridRows, RowsNeeded(year, month)))
}

// RowsNeeded returns how many week rows (4-6) the month spans.
func RowsNeeded(year, month int) int {
	span := FirstWeekdayOfMonth(year, month) + DaysInMonth(year, month)
	return (span + DaysPerWeek - 1) / DaysPerWeek
}

func buildMonthGrid(year, month int, now time.Time, rows int) [][]Cell {
	today := FromTime(now)
	first := NewDate(year, month, 1)
	start := first.AddDays(-first.Weekday())

	grid := make([][]Cell, rows)
	d := start
	for r := range grid {
		week := make([]Cell, DaysPerWeek)
		for c := range week {
			week[c] = Cell{
				Day:            d.Day,
				Month:          d.Month,
				Year:           d.Year,
				IsCurrentMonth: d.Year == year && d.Month == month,
				IsToday:        d == today,
			}
			d = d.AddDays(1)
		}
		grid[r] = week
	}
	return grid
}

// WeekGrid returns the seven cells of the week starting at weekStart, which
// must be a Sunday. Every cell is marked IsCurrentMonth.
func WeekGrid(weekStart Date, now time.Time) []Cell {
	if weekStart.Weekday() != 0 {
		panic(fmt.Sprintf("calendar: week start %s is not a Sunday", weekStart))
	}
	today := FromTime(now)
	cells := make([]Cell, DaysPerWeek)
	for i := range cells {
		d := weekStart.AddDays(i)
		cells[i] = Cell{
			Day:            d.Day,
			Month:          d.Month,
			Year:           d.Year,
			IsCurrentMonth: true,
			IsToday:        d == today,
		}
	}
	return cells
}

// Flatten returns the grid's cells in row-major order.
func Flatten(grid [][]Cell) []Cell {
	out := make([]Cell, 0, len(grid)*DaysPerWeek)
	for _, row := range grid {
		out = append(out, row...)
	}
	return out
}
