package ui

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// StatusFunc replaces the label shown next to the spinner.
type StatusFunc func(string)

type statusMsg string

type doneMsg[T any] struct {
	value T
	err   error
}

type busyModel[T any] struct {
	spinner spinner.Model
	label   string
	cancel  context.CancelFunc
	run     tea.Cmd
	result  *doneMsg[T]
}

func (m busyModel[T]) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m busyModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			// fn sees the cancellation and reports back through doneMsg
			m.cancel()
			m.label = "cancelling..."
		}
		return m, nil
	case statusMsg:
		m.label = string(msg)
		return m, nil
	case doneMsg[T]:
		m.result = &msg
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m busyModel[T]) View() string {
	if m.result != nil {
		return ""
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), SystemStyle.Render(m.label))
}

// Busy runs fn while a spinner with label is shown on stderr. fn may update
// the label through status. Ctrl+C cancels the context handed to fn. When
// stderr is not a terminal the labels are printed as plain lines instead.
func Busy[T any](ctx context.Context, label string, fn func(ctx context.Context, status StatusFunc) (T, error)) (T, error) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return busyPlain(ctx, os.Stderr, label, fn)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = TitleStyle

	m := busyModel[T]{
		spinner: sp,
		label:   label,
		cancel:  cancel,
		run: func() tea.Msg {
			v, err := fn(ctx, func(s string) { p.Send(statusMsg(s)) })
			return doneMsg[T]{value: v, err: err}
		},
	}
	p = tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(parent))

	final, err := p.Run()
	if bm, ok := final.(busyModel[T]); ok && bm.result != nil {
		return bm.result.value, bm.result.err
	}
	var zero T
	if err == nil {
		err = ctx.Err()
	}
	return zero, err
}

func busyPlain[T any](ctx context.Context, w io.Writer, label string, fn func(ctx context.Context, status StatusFunc) (T, error)) (T, error) {
	fmt.Fprintln(w, SystemStyle.Render(label))
	return fn(ctx, func(s string) { fmt.Fprintln(w, SystemStyle.Render(s)) })
}
