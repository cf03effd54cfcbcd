package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/chatdefi/internal/strategy"
	"github.com/yolodolo42/chatdefi/internal/ui"
)

var strategiesCmd = &cobra.Command{
	Use:     "strategies",
	Aliases: []string{"vaults"},
	Short:   "List yield strategies",
	Long: `List the yield strategies shown on the dashboard.

Only strategy 1 is backed by the deployed vault; the others are simulated
and their figures are illustrative.`,
	Args: cobra.NoArgs,
	RunE: runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

const (
	colAPY  = 4
	colRisk = 6
)

func strategyRows(c *strategy.Catalog) [][]string {
	list := c.List()
	rows := make([][]string, len(list))
	for i, s := range list {
		kind := "simulated"
		if s.VaultBacked() {
			kind = "vault"
		}
		rows[i] = []string{
			s.ID,
			s.Name,
			s.Description,
			s.Network,
			strategy.APYLabel(s.APY),
			strategy.APYLabel(s.HistoricalAPY),
			s.RiskBar(),
			s.HoldingsLabel(),
			kind,
		}
	}
	return rows
}

func runStrategies(cmd *cobra.Command, args []string) error {
	catalog := strategy.DefaultCatalog()
	list := catalog.List()
	fmt.Println(ui.Table(
		[]string{"ID", "Strategy", "Asset", "Network", "APY", "30d APY", "Risk", "Holdings", "Kind"},
		strategyRows(catalog),
		func(row, col int) lipgloss.Style {
			switch col {
			case colAPY:
				return ui.APYStyle
			case colRisk:
				return ui.RiskStyle(list[row].RiskLevel)
			}
			return ui.TableCellStyle
		},
	))
	fmt.Println(ui.HelpStyle.Render("Deposit with: chatdefi deposit <amount> --strategy <id> --chain <key>"))
	return nil
}
