package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/config"
	"github.com/yolodolo42/chatdefi/internal/strategy"
	"github.com/yolodolo42/chatdefi/internal/ui"
	"github.com/yolodolo42/chatdefi/internal/vault"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a keystore account to the dashboard",
	Args:  cobra.NoArgs,
	RunE:  runConnect,
}

var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Deposit into a strategy",
	Long: `Deposit <amount> of the vault asset into a strategy.

For the vault-backed strategy this sends an approve followed by a deposit,
each shown for confirmation first. The wallet is switched to --chain when it
is on another network. Other strategies are simulated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, strategy.ActionDeposit, args[0])
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Withdraw from a strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, strategy.ActionWithdraw, args[0])
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show your vault position on one network",
	Args:  cobra.NoArgs,
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(balanceCmd)

	for _, c := range []*cobra.Command{depositCmd, withdrawCmd} {
		c.Flags().String("strategy", strategy.VaultStrategyID, "Strategy ID (see 'chatdefi strategies')")
		c.Flags().String("chain", "", "Vault network: celo, rootstock or saga (default: the wallet's network)")
	}
	balanceCmd.Flags().String("chain", "", "Vault network: celo, rootstock or saga (default: the wallet's network)")
}

// targetChain resolves --chain, falling back to the wallet's network.
func (a *app) targetChain(cmd *cobra.Command) (*chain.Descriptor, error) {
	key, _ := cmd.Flags().GetString("chain")
	if key == "" {
		key = cfg.Chain
	}
	return a.registry.LookupKey(key)
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connect(ctx); err != nil {
		return err
	}
	account, _ := a.wallet.Account()
	desc, err := a.activeDescriptor()
	if err != nil {
		return err
	}

	fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s Connected %s", ui.SymbolCheck, account.Hex())))
	fmt.Printf("Network: %s (%s)\n", desc.Name, desc.HexID())

	if cfg.Wallet.Account == "" {
		if err := config.Persist(viper.GetViper(), "wallet.account", account.Hex()); err != nil {
			logger.Warn("failed to persist account", zap.Error(err))
		} else {
			fmt.Println(ui.HelpStyle.Render("Saved as the default account."))
		}
	}
	return nil
}

// actionPlan is a deposit or withdraw whose strategy, network and amount
// have been checked.
type actionPlan struct {
	action   strategy.Action
	strategy strategy.Strategy
	chain    *chain.Descriptor
	amount   string
}

// planAction validates a request before the wallet is opened, so bad input
// is reported without a password prompt or a node round trip.
func planAction(reg *chain.Registry, catalog *strategy.Catalog, action strategy.Action, strategyID, chainKey, amount string) (actionPlan, error) {
	s, err := catalog.Get(strategyID)
	if err != nil {
		return actionPlan{}, err
	}
	if chainKey == "" {
		chainKey = cfg.Chain
	}
	desc, err := reg.LookupKey(chainKey)
	if err != nil {
		return actionPlan{}, err
	}
	if _, err := vault.ParseAmount(amount, desc.AssetDecimals); err != nil {
		return actionPlan{}, err
	}
	return actionPlan{action: action, strategy: s, chain: desc, amount: amount}, nil
}

func runAction(cmd *cobra.Command, action strategy.Action, amount string) error {
	ctx := cmd.Context()
	strategyID, _ := cmd.Flags().GetString("strategy")
	chainKey, _ := cmd.Flags().GetString("chain")

	plan, err := planAction(cfg.Registry(), strategy.DefaultCatalog(), action, strategyID, chainKey, amount)
	if err != nil {
		return err
	}
	s, desc := plan.strategy, plan.chain

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connect(ctx); err != nil {
		return err
	}

	if !s.VaultBacked() {
		return runSimulated(ctx, a, action, s)
	}

	if err := a.ensureChain(ctx, desc); err != nil {
		return err
	}
	if action == strategy.ActionWithdraw {
		if _, err := a.desk.Refresh(ctx, desc.Key); err != nil {
			return fmt.Errorf("failed to read vault position: %w", err)
		}
	}

	a.status = printStatus
	printStatus(fmt.Sprintf("%s of %s into %s on %s", action.Title(), amount, s.Name, desc.DisplayName))

	var res *strategy.Result
	if action == strategy.ActionDeposit {
		res, err = a.desk.Deposit(ctx, s.ID, desc.Key, amount)
	} else {
		res, err = a.desk.Withdraw(ctx, s.ID, desc.Key, amount)
	}
	if err != nil {
		return actionError(desc, err)
	}

	fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s %s confirmed", ui.SymbolCheck, action.Title())))
	if res.Tx.Approval != nil {
		fmt.Printf("Approve:  %s\n", desc.ExplorerTxURL(res.Tx.Approval.Hash))
	}
	fmt.Printf("Tx:       %s\n", desc.ExplorerTxURL(res.Tx.Hash))
	fmt.Printf("Deposited %s  %s Available %s\n", res.Position.Deposited(), ui.SymbolTreePipe, res.Position.AvailableLabel())
	return nil
}

func runSimulated(ctx context.Context, a *app, action strategy.Action, s strategy.Strategy) error {
	printStatus(fmt.Sprintf("%s is simulated; no transaction is sent", s.Name))
	pos, err := ui.Busy(ctx, fmt.Sprintf("%s into %s", action.Title(), s.Name),
		func(ctx context.Context, _ ui.StatusFunc) (strategy.Position, error) {
			return a.desk.Simulate(ctx, action, s.ID)
		})
	if err != nil {
		return err
	}
	fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s %s simulated", ui.SymbolCheck, action.Title())))
	fmt.Printf("Deposited %s  %s Available %s\n", pos.Deposited(), ui.SymbolTreePipe, pos.AvailableLabel())
	return nil
}

// actionError adds the next step to the errors a user can act on.
func actionError(desc *chain.Descriptor, err error) error {
	var partial *vault.PartialDepositError
	switch {
	case errors.As(err, &partial):
		return fmt.Errorf("%w\nthe allowance from %s is still in place; running deposit again reuses it",
			err, desc.ExplorerTxURL(partial.Approval.Hash))
	case errors.Is(err, wallet.ErrUserRejected):
		return errors.New("transaction rejected in wallet")
	case errors.Is(err, strategy.ErrNoPosition):
		return fmt.Errorf("%w; check 'chatdefi balance --chain %s'", err, desc.Key)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("no receipt within %s; the transaction may still confirm: %w", cfg.Tx.WaitTimeout, err)
	}
	return err
}

type balanceView struct {
	deposited string
	available string
	apy       float64
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	desc, err := a.targetChain(cmd)
	if err != nil {
		return err
	}
	if err := a.connect(ctx); err != nil {
		return err
	}
	if err := a.ensureChain(ctx, desc); err != nil {
		return err
	}
	account, _ := a.wallet.Account()

	view, err := ui.Busy(ctx, "Reading vault on "+desc.DisplayName,
		func(ctx context.Context, _ ui.StatusFunc) (balanceView, error) {
			var v balanceView
			var err error
			if v.deposited, err = a.vault.GetUserBalance(ctx, account, desc.ID); err != nil {
				return v, err
			}
			available, err := a.vault.AssetBalance(ctx, account, desc.ID)
			if err != nil {
				return v, err
			}
			v.available = chain.FormatUnits(available, desc.AssetDecimals)
			v.apy, err = a.vault.GetStrategyAPY(ctx, desc.ID)
			return v, err
		})
	if err != nil {
		return fmt.Errorf("failed to read vault: %w", err)
	}

	fmt.Println(ui.TitleStyle.Render(fmt.Sprintf("%s vault", desc.DisplayName)))
	fmt.Printf("Account    %s\n", account.Hex())
	fmt.Printf("Vault      %s\n", desc.VaultAddress.Hex())
	fmt.Printf("Deposited  %s\n", view.deposited)
	fmt.Printf("Available  %s\n", view.available)
	fmt.Printf("APY        %s\n", ui.APYStyle.Render(strategy.APYLabel(view.apy)))
	return nil
}
