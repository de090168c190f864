package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// form is a vertical list of labelled text inputs with one focused field.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(labels ...string) form {
	f := form{labels: labels, inputs: make([]textinput.Model, len(labels))}
	for i := range f.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 128
		f.inputs[i] = ti
	}
	f.inputs[0].Focus()
	return f
}

func (f *form) masked(i int) {
	f.inputs[i].EchoMode = textinput.EchoPassword
	f.inputs[i].EchoCharacter = '•'
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

func (f *form) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = (i + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

func (f *form) last() bool { return f.focus == len(f.inputs)-1 }

func (f *form) reset() {
	for i := range f.inputs {
		f.inputs[i].SetValue("")
	}
	f.setFocus(0)
}

// update moves focus on tab/shift+tab/up/down and forwards other keys to the
// focused input.
func (f *form) update(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab", "down":
			f.setFocus(f.focus + 1)
			return nil
		case "shift+tab", "up":
			f.setFocus(f.focus - 1)
			return nil
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) view() string {
	var b strings.Builder
	for i, in := range f.inputs {
		marker := "  "
		if i == f.focus {
			marker = titleStyle.Render("▸ ")
		}
		b.WriteString(marker + dimStyle.Render(strings.ToUpper(f.labels[i])) + "\n")
		b.WriteString("  " + in.View() + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
