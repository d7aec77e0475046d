package console

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Submit     key.Binding
	Erase      key.Binding
	Stop       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run command")),
		Erase:      key.NewBinding(key.WithKeys("backspace"), key.WithHelp("backspace", "delete")),
		Stop:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "stop")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
	}
}
