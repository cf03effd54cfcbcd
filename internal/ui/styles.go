package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary   = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("35")  // Green
	ColorWarning   = lipgloss.Color("214") // Gold/yellow
	ColorError     = lipgloss.Color("196") // Red
	ColorDim       = lipgloss.Color("241") // Gray
	ColorAccent    = lipgloss.Color("39")  // Blue
	ColorHighlight = lipgloss.Color("212") // Light pink
)

const (
	SymbolPrompt   = "❯"
	SymbolBullet   = "●"
	SymbolEmpty    = "○"
	SymbolTree     = "└"
	SymbolArrow    = "▸"
	SymbolCheck    = "✓"
	SymbolCross    = "✗"
	SymbolTreePipe = "│"
)

var (
	PromptStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	UserStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	SystemStyle = lipgloss.NewStyle().
			Foreground(ColorDim)

	SelectorCursor = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	SelectorItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	SelectorDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	SelectorActive = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorDim)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				Padding(0, 1)

	TableCellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	APYStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)
)

// RiskStyle colours a 1-5 risk level from green to red.
func RiskStyle(level int) lipgloss.Style {
	switch {
	case level <= 2:
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case level == 3:
		return lipgloss.NewStyle().Foreground(ColorWarning)
	default:
		return lipgloss.NewStyle().Foreground(ColorError)
	}
}
