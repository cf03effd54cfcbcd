package cli

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/ui"
	"github.com/yolodolo42/chatdefi/internal/vault"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"portfolio"},
	Short:   "Show gas and vault balances on every network",
	Long: `Show the account's gas balance and vault position on every network the
vault is deployed on. Balances are read directly from each network, so the
wallet is not unlocked.`,
	Args: cobra.NoArgs,
	RunE: runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.Flags().String("address", "", "Address to check (default: the configured or first keystore account)")
}

// chainBalance is one network's row of the overview. err is set when the
// network could not be read; the other rows are still shown.
type chainBalance struct {
	desc      *chain.Descriptor
	native    *big.Int
	deposited *big.Int
	err       error
}

func resolveAddress(flag string) (common.Address, error) {
	if flag != "" {
		if !common.IsHexAddress(flag) {
			return common.Address{}, fmt.Errorf("invalid address: %s", flag)
		}
		return common.HexToAddress(flag), nil
	}
	if cfg.Wallet.Account != "" {
		return common.HexToAddress(cfg.Wallet.Account), nil
	}

	km, err := keystore()
	if err != nil {
		return common.Address{}, fmt.Errorf("no address specified and failed to load wallets: %w", err)
	}
	accounts := km.ListAccounts()
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("no address specified and no wallets found; use --address or create a wallet first")
	}
	return accounts[0].Address, nil
}

type balanceSource interface {
	GetBalance(ctx context.Context, chainID *big.Int, address common.Address) (*big.Int, error)
}

type positionSource interface {
	UserAssets(ctx context.Context, account common.Address, chainID *big.Int) (*big.Int, error)
}

// readBalances queries every network concurrently.
func readBalances(ctx context.Context, reg *chain.Registry, natives balanceSource, positions positionSource, address common.Address) []chainBalance {
	descs := reg.Descriptors()
	out := make([]chainBalance, len(descs))

	var g errgroup.Group
	for i, d := range descs {
		out[i].desc = d
		g.Go(func() error {
			native, err := natives.GetBalance(ctx, d.ID, address)
			if err != nil {
				out[i].err = err
				return nil
			}
			deposited, err := positions.UserAssets(ctx, address, d.ID)
			if err != nil {
				out[i].err = err
				return nil
			}
			out[i].native, out[i].deposited = native, deposited
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func renderBalances(rows []chainBalance) string {
	var b strings.Builder
	for _, r := range rows {
		if r.err != nil {
			fmt.Fprintf(&b, "%s %-20s %s\n", ui.ErrorStyle.Render(ui.SymbolCross), r.desc.DisplayName, ui.ErrorStyle.Render(r.err.Error()))
			continue
		}
		indicator := ui.SystemStyle.Render(ui.SymbolEmpty)
		if r.deposited.Sign() > 0 || r.native.Sign() > 0 {
			indicator = ui.SuccessStyle.Render(ui.SymbolBullet)
		}
		fmt.Fprintf(&b, "%s %-20s %14s %-6s  vault %s\n",
			indicator,
			r.desc.DisplayName,
			chain.FormatBalance(r.native, r.desc.NativeCurrency.Decimals),
			r.desc.NativeCurrency.Symbol,
			chain.FormatUnits(r.deposited, r.desc.AssetDecimals),
		)
	}
	return b.String()
}

func runAccount(cmd *cobra.Command, args []string) error {
	addressFlag, _ := cmd.Flags().GetString("address")
	address, err := resolveAddress(addressFlag)
	if err != nil {
		return err
	}

	reg := cfg.Registry()
	client := chain.NewClient(reg)
	defer client.Close()
	reader := vault.NewReader(client, reg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	rows, err := ui.Busy(ctx, "Reading balances", func(ctx context.Context, _ ui.StatusFunc) ([]chainBalance, error) {
		return readBalances(ctx, reg, client, reader, address), nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Account %s\n", address.Hex())
	fmt.Println(ui.SystemStyle.Render("─────────────────────────────────────────────────────────"))
	fmt.Print(renderBalances(rows))
	fmt.Println(ui.SystemStyle.Render("─────────────────────────────────────────────────────────"))
	return nil
}
