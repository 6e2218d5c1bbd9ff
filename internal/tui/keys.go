package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Prev     key.Binding
	Next     key.Binding
	Today    key.Binding
	Week     key.Binding
	Month    key.Binding
	DayUp    key.Binding
	DayDown  key.Binding
	Search   key.Binding
	Session  key.Binding
	Sort     key.Binding
	Reverse  key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Export   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Prev:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "previous")),
	Next:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next")),
	Today:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "today")),
	Week:     key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "week")),
	Month:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "month")),
	DayUp:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "earlier day")),
	DayDown:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "later day")),
	Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Session:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "session")),
	Sort:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
	Reverse:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reverse")),
	NextPage: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next page")),
	PrevPage: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "prev page")),
	Export:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export csv")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Today, k.Search, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next, k.Today, k.Week, k.Month},
		{k.DayUp, k.DayDown, k.Search, k.Session},
		{k.Sort, k.Reverse, k.NextPage, k.PrevPage},
		{k.Export, k.Help, k.Quit},
	}
}
