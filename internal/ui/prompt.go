package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	promptPlaceholder = "Ask about DeFi, yield or the ChatDeFi vaults"
	promptWaiting     = "Waiting for the reply..."
	promptCharLimit   = 2000
)

// Prompt is the chat input line. It is disabled while a reply streams and
// recalls earlier questions with Up and Down.
type Prompt struct {
	input    textinput.Model
	disabled bool

	sent   []string
	recall int
	draft  string
}

func NewPrompt() Prompt {
	ti := textinput.New()
	ti.Placeholder = promptPlaceholder
	ti.CharLimit = promptCharLimit
	ti.Width = 80
	ti.Prompt = ""
	return Prompt{input: ti}
}

func (p *Prompt) Focus() tea.Cmd {
	return p.input.Focus()
}

func (p *Prompt) Blur() {
	p.input.Blur()
}

// SetDisabled locks the input while a reply is in flight. Typed text is
// kept.
func (p *Prompt) SetDisabled(disabled bool) {
	p.disabled = disabled
	if disabled {
		p.input.Placeholder = promptWaiting
	} else {
		p.input.Placeholder = promptPlaceholder
	}
}

func (p *Prompt) Disabled() bool {
	return p.disabled
}

func (p *Prompt) SetWidth(w int) {
	p.input.Width = max(w-4, 1)
}

func (p *Prompt) Value() string {
	return p.input.Value()
}

func (p *Prompt) SetValue(s string) {
	p.input.SetValue(s)
	p.input.CursorEnd()
}

// Submit takes the trimmed input and clears the line. It returns false when
// the prompt is disabled or blank.
func (p *Prompt) Submit() (string, bool) {
	text := strings.TrimSpace(p.input.Value())
	if p.disabled || text == "" {
		return "", false
	}
	if n := len(p.sent); n == 0 || p.sent[n-1] != text {
		p.sent = append(p.sent, text)
	}
	p.recall = len(p.sent)
	p.draft = ""
	p.input.Reset()
	return text, true
}

func (p *Prompt) Update(msg tea.Msg) (*Prompt, tea.Cmd) {
	if p.disabled {
		return p, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyUp:
			p.recallPrev()
			return p, nil
		case tea.KeyDown:
			p.recallNext()
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *Prompt) recallPrev() {
	if p.recall == 0 {
		return
	}
	if p.recall == len(p.sent) {
		p.draft = p.input.Value()
	}
	p.recall--
	p.SetValue(p.sent[p.recall])
}

func (p *Prompt) recallNext() {
	if p.recall >= len(p.sent) {
		return
	}
	p.recall++
	if p.recall == len(p.sent) {
		p.SetValue(p.draft)
		return
	}
	p.SetValue(p.sent[p.recall])
}

func (p *Prompt) View() string {
	style := PromptStyle
	if p.disabled || !p.input.Focused() {
		style = SelectorDim
	}
	return style.Render(SymbolPrompt) + " " + p.input.View()
}
