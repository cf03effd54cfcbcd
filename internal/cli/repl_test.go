package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatdefi/internal/assistant"
	"github.com/yolodolo42/chatdefi/internal/llm"
)

// scriptedProvider replays fixed chunks and records what it was sent.
type scriptedProvider struct {
	id     llm.ProviderID
	chunks []string
	err    error
	model  string

	mu       sync.Mutex
	requests []*llm.ChatRequest
}

func (p *scriptedProvider) ID() llm.ProviderID { return p.id }
func (p *scriptedProvider) Name() string       { return "Scripted " + string(p.id) }
func (p *scriptedProvider) Models() []llm.Model {
	return []llm.Model{{ID: "small", Name: "Small"}, {ID: "large", Name: "Large"}}
}
func (p *scriptedProvider) DefaultModel() string { return p.model }
func (p *scriptedProvider) SetModel(id string) error {
	if err := llm.ValidateModelID(id, p.Models()); err != nil {
		return err
	}
	p.model = id
	return nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return p.Stream(ctx, req, func(string) error { return nil })
}

func (p *scriptedProvider) Stream(_ context.Context, req *llm.ChatRequest, onDelta func(string) error) (*llm.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	for _, c := range p.chunks {
		if err := onDelta(c); err != nil {
			return nil, err
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: strings.Join(p.chunks, ""), StopReason: "stop"}, nil
}

func (p *scriptedProvider) sent() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ChatRequest(nil), p.requests...)
}

func newTestChat(t *testing.T, providers ...*scriptedProvider) chatModel {
	t.Helper()
	reg := llm.NewProviderRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	require.NoError(t, reg.SetDefault(providers[0].ID()))

	m, err := newChatModel(context.Background(), reg)
	require.NoError(t, err)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(chatModel)
}

// drive feeds every message produced by cmd back into the model until
// nothing is left. Spinner ticks are dropped so the loop ends.
func drive(m chatModel, cmd tea.Cmd) chatModel {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, spinner.TickMsg, tea.QuitMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			next, nc := m.Update(msg)
			m = next.(chatModel)
			queue = append(queue, nc)
		}
	}
	return m
}

func send(m chatModel, input string) chatModel {
	m.prompt.SetValue(input)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return drive(next.(chatModel), cmd)
}

func last(m chatModel) chatMessage {
	return m.messages[len(m.messages)-1]
}

func TestChatStreamsReply(t *testing.T) {
	p := &scriptedProvider{id: llm.ProviderOpenAI, model: "small", chunks: []string{"An ERC-4626 ", "vault is a ", "tokenized vault."}}
	m := newTestChat(t, p)

	m = send(m, "What is an ERC-4626 vault?")

	assert.False(t, m.streaming)
	assert.Equal(t, chatMessage{role: "assistant", content: "An ERC-4626 vault is a tokenized vault."}, last(m))
	require.Len(t, m.history, 2)
	assert.Equal(t, "user", m.history[0].Role)
	assert.Equal(t, "assistant", m.history[1].Role)
	assert.Contains(t, m.viewport.View(), "tokenized vault")

	sent := p.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, assistant.SystemPrompt, sent[0].SystemPrompt)

	m = send(m, "And the risks?")
	sent = p.sent()
	require.Len(t, sent, 2)
	assert.Len(t, sent[1].Messages, 3, "follow-up carries the conversation")
}

func TestChatFailureBeforeFirstChunk(t *testing.T) {
	p := &scriptedProvider{id: llm.ProviderOpenAI, model: "small", err: errors.New("upstream 503")}
	m := newTestChat(t, p)

	m = send(m, "hello")

	assert.Equal(t, "error", last(m).role)
	assert.Contains(t, last(m).content, "upstream 503")
	assert.Empty(t, m.history, "unanswered question is not resent")
}

func TestChatFailureMidStreamKeepsPartial(t *testing.T) {
	p := &scriptedProvider{id: llm.ProviderOpenAI, model: "small", chunks: []string{"Yield comes from "}, err: errors.New("connection reset")}
	m := newTestChat(t, p)

	m = send(m, "Where does yield come from?")

	require.GreaterOrEqual(t, len(m.messages), 2)
	assert.Equal(t, chatMessage{role: "assistant", content: "Yield comes from "}, m.messages[len(m.messages)-2])
	assert.Equal(t, "error", last(m).role)
	assert.Len(t, m.history, 2)
}

func TestChatIgnoresStaleStream(t *testing.T) {
	p := &scriptedProvider{id: llm.ProviderOpenAI, model: "small"}
	m := newTestChat(t, p)
	m.streaming = true
	m.streamID = 2
	m.prompt.SetDisabled(true)

	m.prompt.SetValue("next question")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(chatModel)
	assert.Equal(t, "next question", m.prompt.Value(), "no second question while a reply streams")

	next, cmd := m.Update(deltaMsg{stream: 1, text: "old"})
	m = next.(chatModel)
	assert.Nil(t, cmd)
	assert.Empty(t, m.partial)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(chatModel)
	assert.False(t, m.streaming)
	assert.False(t, m.prompt.Disabled())
	assert.Contains(t, last(m).content, "stopped")
}

func TestChatCommands(t *testing.T) {
	openai := &scriptedProvider{id: llm.ProviderOpenAI, model: "small"}
	anthropic := &scriptedProvider{id: llm.ProviderAnthropic, model: "large"}
	m := newTestChat(t, openai, anthropic)

	m = send(m, "/help")
	assert.Contains(t, last(m).content, "/provider")

	m = send(m, "/model large")
	assert.Equal(t, "large", openai.DefaultModel())

	m = send(m, "/model huge")
	assert.Equal(t, "error", last(m).role)

	m = send(m, "/provider anthropic")
	assert.Equal(t, llm.ProviderAnthropic, m.assistant.Provider().ID())

	m = send(m, "/provider gemini")
	assert.Equal(t, "error", last(m).role)
	assert.Equal(t, llm.ProviderAnthropic, m.assistant.Provider().ID())

	m.history = []llm.Message{{Role: "user", Content: "x"}}
	m = send(m, "/clear")
	assert.Empty(t, m.history)
	assert.Len(t, m.messages, 1)

	m = send(m, "/bogus")
	assert.Contains(t, last(m).content, "Unknown command")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, next.(chatModel).quitting)
	require.NotNil(t, cmd)
}

func TestChatModelSelector(t *testing.T) {
	p := &scriptedProvider{id: llm.ProviderOpenAI, model: "small"}
	m := newTestChat(t, p)

	m = send(m, "/model")
	require.NotNil(t, m.selector)
	assert.Contains(t, m.View(), "large")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(chatModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(chatModel)

	assert.Nil(t, m.selector)
	assert.Equal(t, "large", p.DefaultModel())
	assert.Contains(t, last(m).content, "Switched to large")
}
