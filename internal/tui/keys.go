package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console key bindings.
type KeyMap struct {
	NextTab key.Binding
	PrevTab key.Binding
	NextPg  key.Binding
	PrevPg  key.Binding
	Refresh key.Binding
	Filter  key.Binding
	Sort    key.Binding
	Delete  key.Binding
	Approve key.Binding
	Reject  key.Binding
	Quit    key.Binding
}

// DefaultKeyMap provides the default key bindings.
var DefaultKeyMap = KeyMap{
	NextTab: key.NewBinding(key.WithKeys(KeyTab), key.WithHelp("tab", "next view")),
	PrevTab: key.NewBinding(key.WithKeys(KeyShiftTab), key.WithHelp("shift+tab", "prev view")),
	NextPg:  key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
	PrevPg:  key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Filter:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter status")),
	Sort:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort order")),
	Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Approve: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve")),
	Reject:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reject")),
	Quit:    key.NewBinding(key.WithKeys("q", KeyCtrlC), key.WithHelp("q", "quit")),
}

// ShortHelp lists the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.NextPg, k.PrevPg, k.Refresh, k.Filter, k.Sort, k.Delete, k.Approve, k.Reject, k.Quit}
}
