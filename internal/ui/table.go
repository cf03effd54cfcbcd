package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// CellStyle picks the style of a body cell. Header cells always use
// TableHeaderStyle.
type CellStyle func(row, col int) lipgloss.Style

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string, cell CellStyle) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SystemStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			if cell != nil {
				return cell(row, col).Padding(0, 1)
			}
			return TableCellStyle
		})
	return t.Render()
}
