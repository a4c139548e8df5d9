package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the [key.Binding]s of every view. [keyMap.forView] picks the ones shown in the help line.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	yes     key.Binding
	no      key.Binding
	errors  key.Binding
	restart key.Binding
	abort   key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "start")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "cancel")),
		errors:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "all errors")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "new run")),
		abort:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "abort")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) forView(v ViewState) []key.Binding {
	switch v {
	case ChooseView:
		return []key.Binding{k.up, k.down, k.enter, k.quit}
	case ConfirmView:
		return []key.Binding{k.yes, k.no, k.back}
	case ProgressView:
		return []key.Binding{k.abort}
	case ResultView:
		return []key.Binding{k.errors, k.restart, k.quit}
	default:
		return []key.Binding{k.quit}
	}
}
