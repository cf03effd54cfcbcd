package cli

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/ui"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the networks the vault is deployed on",
	Args:  cobra.NoArgs,
	RunE:  runChains,
}

var switchCmd = &cobra.Command{
	Use:   "switch <chain>",
	Short: "Switch the wallet to another network",
	Long: `Switch the wallet to another network, adding it to the wallet first when
the wallet does not know it yet. <chain> is a key (celo, rootstock, saga) or a
chain id in decimal or 0x hex.`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(switchCmd)
}

func chainRows(reg *chain.Registry, active string, known []string) [][]string {
	rows := make([][]string, 0, len(reg.Keys()))
	for _, d := range reg.Descriptors() {
		marker := ui.SymbolEmpty
		if d.Key == active {
			marker = ui.SymbolBullet
		}
		inWallet := "no"
		if d.Key == active || slices.Contains(known, d.Key) {
			inWallet = "yes"
		}
		rows = append(rows, []string{
			marker,
			d.Key,
			d.ID.String(),
			d.Name,
			d.NativeCurrency.Symbol,
			d.VaultAddress.Hex(),
			inWallet,
		})
	}
	return rows
}

func runChains(cmd *cobra.Command, args []string) error {
	reg := cfg.Registry()
	rows := chainRows(reg, cfg.Chain, cfg.Wallet.KnownChains)
	fmt.Println(ui.Table(
		[]string{"", "Key", "Chain ID", "Network", "Gas", "Vault", "In wallet"},
		rows,
		func(row, col int) lipgloss.Style {
			if col == 0 && rows[row][0] == ui.SymbolBullet {
				return ui.SuccessStyle
			}
			return ui.TableCellStyle
		},
	))
	return nil
}

func runSwitch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	desc, err := a.registry.LookupKey(args[0])
	if err != nil {
		return err
	}
	if sameChain(a.network.Active(), desc.ID) {
		fmt.Printf("Already on %s\n", desc.Name)
		return nil
	}
	if err := a.switchTo(ctx, desc); err != nil {
		return err
	}
	fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s Switched to %s (%s)", ui.SymbolCheck, desc.Name, desc.HexID())))
	return nil
}
