package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/chatdefi/internal/assistant"
	"github.com/yolodolo42/chatdefi/internal/llm"
	"github.com/yolodolo42/chatdefi/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the DeFi assistant",
	Long: `Chat with the ChatDeFi assistant in the terminal. Replies stream in as they
are generated. Use /help inside the chat for commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunChat(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `Commands:
  /help, /?          Show this help
  /provider          Pick a connected provider
  /provider <id>     Switch provider
  /model             Pick a model of the current provider
  /model <id>        Switch model
  /clear             Start a new conversation
  /quit, /exit       Leave the chat
  Esc                Stop the reply being streamed

Try:
  "What is an ERC-4626 vault?"
  "How does the ChatDeFi vault earn yield?"
  "Compare the risk of USDC and DAI strategies"`

// chatMessage is one entry of the transcript.
type chatMessage struct {
	role    string // "user", "assistant", "error", "system"
	content string
}

type deltaMsg struct {
	stream int
	text   string
}

type streamDoneMsg struct {
	stream int
	err    error
}

type chatModel struct {
	ctx       context.Context
	providers *llm.ProviderRegistry
	assistant *assistant.Assistant

	prompt    ui.Prompt
	viewport  viewport.Model
	spinner   spinner.Model
	selector  *ui.Selector
	selecting string // "provider" or "model" while the selector is open

	history  []llm.Message
	messages []chatMessage

	streaming bool
	streamID  int
	partial   string
	stream    chan tea.Msg
	cancel    context.CancelFunc

	width    int
	height   int
	ready    bool
	quitting bool
}

func newChatModel(ctx context.Context, providers *llm.ProviderRegistry) (chatModel, error) {
	p, err := providers.Default()
	if err != nil {
		return chatModel{}, err
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.TitleStyle

	return chatModel{
		ctx:       ctx,
		providers: providers,
		assistant: assistant.New(p, assistant.WithLogger(logger.Named("assistant"))),
		prompt:    ui.NewPrompt(),
		spinner:   sp,
		messages: []chatMessage{{
			role:    "system",
			content: fmt.Sprintf("ChatDeFi assistant on %s (%s). Ask about DeFi, yield and the ChatDeFi vaults.\n/help for commands, /quit to exit.", p.Name(), p.DefaultModel()),
		}},
	}, nil
}

func (m chatModel) Init() tea.Cmd {
	return m.prompt.Focus()
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stop()
			m.quitting = true
			return m, tea.Quit
		}
		if m.selector != nil {
			return m.updateSelector(msg)
		}
		switch msg.Type {
		case tea.KeyEsc:
			if m.streaming {
				m.stop()
				m.finishStream(errors.New("stopped"))
			}
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(msg.Height-7, 1))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(msg.Height-7, 1)
		}
		m.prompt.SetWidth(msg.Width)
		m.render()
		return m, nil

	case deltaMsg:
		if msg.stream != m.streamID || !m.streaming {
			return m, nil
		}
		m.partial += msg.text
		m.render()
		return m, waitForStream(m.stream)

	case streamDoneMsg:
		if msg.stream != m.streamID || !m.streaming {
			return m, nil
		}
		m.finishStream(msg.err)
		return m, nil

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var pCmd, vpCmd tea.Cmd
	_, pCmd = m.prompt.Update(msg)
	if key, ok := msg.(tea.KeyMsg); !ok || key.Type == tea.KeyPgUp || key.Type == tea.KeyPgDown {
		m.viewport, vpCmd = m.viewport.Update(msg)
	}
	return m, tea.Batch(pCmd, vpCmd)
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	if m.streaming {
		return m, nil
	}
	input, ok := m.prompt.Submit()
	if !ok {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.messages = append(m.messages, chatMessage{role: "user", content: input})
	m.history = append(m.history, llm.Message{Role: "user", Content: input})
	cmd := m.startStream()
	m.render()
	return m, tea.Batch(m.spinner.Tick, cmd)
}

// startStream runs the assistant on its own goroutine and feeds the chunks
// back through a channel, one message per chunk.
func (m *chatModel) startStream() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	ch := make(chan tea.Msg, 64)
	m.streamID++
	m.streaming = true
	m.prompt.SetDisabled(true)
	m.partial = ""
	m.stream = ch
	m.cancel = cancel

	id := m.streamID
	a := m.assistant
	history := slices.Clone(m.history)
	go func() {
		defer close(ch)
		defer cancel()
		_, err := a.Stream(ctx, history, func(text string) error {
			select {
			case ch <- deltaMsg{stream: id, text: text}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		select {
		case ch <- streamDoneMsg{stream: id, err: err}:
		case <-ctx.Done():
		}
	}()
	return waitForStream(ch)
}

func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *chatModel) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// finishStream moves the streamed reply into the transcript. A reply cut
// short is kept; a request that produced nothing is dropped from the history
// so the next question does not follow an unanswered one.
func (m *chatModel) finishStream(err error) {
	m.streaming = false
	m.prompt.SetDisabled(false)
	m.stop()
	if m.partial != "" {
		m.messages = append(m.messages, chatMessage{role: "assistant", content: m.partial})
		m.history = append(m.history, llm.Message{Role: "assistant", Content: m.partial})
	} else if n := len(m.history); n > 0 && m.history[n-1].Role == "user" {
		m.history = m.history[:n-1]
	}
	if err != nil {
		m.messages = append(m.messages, chatMessage{role: "error", content: err.Error()})
	}
	m.partial = ""
	m.render()
}

func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.history = nil
		m.messages = []chatMessage{{role: "system", content: "Chat cleared. How can I help you?"}}
	case "/help", "/?":
		m.system(chatHelp)
	case "/provider":
		if arg == "" {
			m.openSelector("provider")
		} else {
			m.switchProvider(arg)
		}
	case "/model":
		if arg == "" {
			m.openSelector("model")
		} else {
			m.switchModel(arg)
		}
	default:
		m.messages = append(m.messages, chatMessage{
			role:    "error",
			content: fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd),
		})
	}
	m.render()
	return m, nil
}

func (m *chatModel) openSelector(kind string) {
	current := m.assistant.Provider()
	var items []ui.SelectorItem
	switch kind {
	case "provider":
		for _, p := range m.providers.List() {
			items = append(items, ui.SelectorItem{
				ID:          string(p.ID()),
				Label:       p.Name(),
				Description: p.DefaultModel(),
				Current:     p.ID() == current.ID(),
			})
		}
	case "model":
		for _, md := range current.Models() {
			items = append(items, ui.SelectorItem{
				ID:          md.ID,
				Label:       md.ID,
				Description: md.Name,
				Current:     md.ID == current.DefaultModel(),
			})
		}
	}
	if len(items) == 0 {
		m.system("Nothing to choose from.")
		return
	}
	s := ui.NewSelector("Select "+kind, items)
	s.SetWidth(m.width)
	m.selector = &s
	m.selecting = kind
	m.prompt.Blur()
}

func (m chatModel) updateSelector(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.selector.Update(msg)
	if m.selector.Active() {
		return m, nil
	}
	choice := m.selector.Selected()
	kind := m.selecting
	m.selector = nil
	m.selecting = ""
	if choice != "" {
		if kind == "provider" {
			m.switchProvider(choice)
		} else {
			m.switchModel(choice)
		}
	}
	m.render()
	return m, m.prompt.Focus()
}

func (m *chatModel) switchProvider(id string) {
	p, err := m.providers.Get(llm.ProviderID(strings.ToLower(id)))
	if err != nil {
		m.messages = append(m.messages, chatMessage{role: "error", content: fmt.Sprintf("%v. Connect more with 'chatdefi auth connect'.", err)})
		return
	}
	m.assistant = assistant.New(p, assistant.WithLogger(logger.Named("assistant")))
	m.system(fmt.Sprintf("Switched to %s (%s).", p.Name(), p.DefaultModel()))
}

func (m *chatModel) switchModel(id string) {
	p := m.assistant.Provider()
	if err := p.SetModel(id); err != nil {
		m.messages = append(m.messages, chatMessage{role: "error", content: fmt.Sprintf("Failed to switch model: %v", err)})
		return
	}
	m.system(fmt.Sprintf("Switched to %s.", id))
}

func (m *chatModel) system(text string) {
	m.messages = append(m.messages, chatMessage{role: "system", content: text})
}

// render rebuilds the transcript shown in the viewport.
func (m *chatModel) render() {
	if !m.ready {
		return
	}
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 20))

	var b strings.Builder
	write := func(role, content string) {
		switch role {
		case "user":
			b.WriteString(ui.UserStyle.Render("You: "))
			b.WriteString(wrap.Render(content))
		case "assistant":
			b.WriteString(ui.AssistantStyle.Render("ChatDeFi: "))
			b.WriteString(wrap.Render(content))
		case "error":
			b.WriteString(ui.ErrorStyle.Render("Error: "))
			b.WriteString(wrap.Render(content))
		case "system":
			b.WriteString(ui.HelpStyle.Render(content))
		}
		b.WriteString("\n\n")
	}
	for _, msg := range m.messages {
		write(msg.role, msg.content)
	}
	if m.streaming && m.partial != "" {
		write("assistant", m.partial)
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing...\n"
	}

	var b strings.Builder
	p := m.assistant.Provider()
	b.WriteString(ui.TitleStyle.Render("  ChatDeFi Assistant"))
	b.WriteString(ui.HelpStyle.Render(fmt.Sprintf("  %s · %s", p.Name(), p.DefaultModel())))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.selector != nil:
		b.WriteString(m.selector.View())
	case m.streaming:
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), ui.HelpStyle.Render("Thinking... (Esc to stop)")))
		b.WriteString(m.prompt.View())
	default:
		b.WriteString("\n")
		b.WriteString(m.prompt.View())
	}
	b.WriteString("\n")
	b.WriteString(ui.HelpStyle.Render("  /help • /provider • /model • /clear • /quit • Ctrl+C to exit"))
	return b.String()
}

// RunChat opens every connected LLM provider and runs the chat TUI.
func RunChat(ctx context.Context) error {
	manager, err := authManager()
	if err != nil {
		return err
	}
	providers, err := manager.Registry(ctx, llm.ProviderID(cfg.LLM.Provider), cfg.LLM.Model)
	if err != nil {
		return err
	}
	m, err := newChatModel(ctx, providers)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(chatModel); ok {
		fm.stop()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
