package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/config"
	"github.com/yolodolo42/chatdefi/internal/session"
	"github.com/yolodolo42/chatdefi/internal/strategy"
	"github.com/yolodolo42/chatdefi/internal/ui"
	"github.com/yolodolo42/chatdefi/internal/vault"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// simulatedDelay is how long an action on a strategy without a vault takes.
const simulatedDelay = 2 * time.Second

// app is the wallet stack behind the dashboard commands: the injected
// keystore wallet, the sessions mounted on it, the vault client and the desk.
type app struct {
	registry *chain.Registry
	client   *chain.Client
	keys     *wallet.KeystoreManager
	provider *wallet.Injected
	wallet   *session.Wallet
	network  *session.Chain
	vault    *vault.Client
	desk     *strategy.Desk

	// status receives desk progress; commands point it at their output.
	status ui.StatusFunc
}

func openApp(ctx context.Context) (*app, error) {
	reg := cfg.Registry()
	active, err := reg.LookupKey(cfg.Chain)
	if err != nil {
		return nil, err
	}

	known := []*chain.Descriptor{active}
	for _, key := range cfg.Wallet.KnownChains {
		d, err := reg.LookupKey(key)
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(known, func(k *chain.Descriptor) bool { return k.ID.Cmp(d.ID) == 0 }) {
			known = append(known, d)
		}
	}

	keys, err := wallet.NewKeystoreManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}

	a := &app{
		registry: reg,
		client:   chain.NewClient(reg),
		keys:     keys,
		status:   func(string) {},
	}

	a.provider, err = wallet.NewInjected(wallet.InjectedOptions{
		Keyring:     keys,
		Backend:     a.client,
		Approver:    newTerminalApprover(cfg.Wallet.Account, assumeYes),
		Logger:      logger.Named("wallet"),
		Chains:      known,
		ActiveChain: active.ID,
	})
	if err != nil {
		a.client.Close()
		return nil, err
	}

	a.wallet = session.NewWallet(ctx, a.provider, logger.Named("session"))
	a.network = session.NewChain(ctx, a.provider, reg, logger.Named("session"))
	a.vault = vault.NewClient(a.provider, reg,
		vault.WithWaitTimeout(cfg.Tx.WaitTimeout),
		vault.WithLogger(logger.Named("vault")))
	a.desk, err = strategy.NewDesk(strategy.DeskOptions{
		Registry:       reg,
		Wallet:         a.wallet,
		Chain:          a.network,
		Vault:          a.vault,
		Logger:         logger.Named("desk"),
		WaitTimeout:    cfg.Tx.WaitTimeout,
		SimulatedDelay: simulatedDelay,
		Notify:         a.notify,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	a.wallet.Close()
	a.network.Close()
	a.client.Close()
}

func (a *app) notify(ev strategy.Event) {
	switch ev.Kind {
	case strategy.EventSubmitted:
		a.status(fmt.Sprintf("%s submitted: %s", ev.Action.Title(), ev.Tx.Hash.Hex()))
		a.status("waiting for confirmation...")
	case strategy.EventConfirmed:
		a.status(fmt.Sprintf("%s confirmed", ev.Action.Title()))
	case strategy.EventFailed:
		a.status(fmt.Sprintf("%s failed: %v", ev.Action.Title(), ev.Err))
	}
}

// printStatus writes desk progress to stderr as plain lines. Transaction
// commands cannot use a spinner: the approver prompts on the same terminal.
func printStatus(s string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.SystemStyle.Render(ui.SymbolTree), ui.SystemStyle.Render(s))
}

// connect returns the session account, asking the wallet when there is none.
func (a *app) connect(ctx context.Context) error {
	_, err := a.wallet.Connect(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wallet.ErrUserRejected):
		return fmt.Errorf("connection rejected: %w", err)
	default:
		return fmt.Errorf("failed to connect wallet: %w", err)
	}
}

// ensureChain moves the wallet to desc if it is elsewhere and remembers the
// new chain in the config file.
func (a *app) ensureChain(ctx context.Context, desc *chain.Descriptor) error {
	if sameChain(a.network.Active(), desc.ID) {
		return nil
	}
	printStatus(fmt.Sprintf("switching wallet to %s", desc.Name))
	return a.switchTo(ctx, desc)
}

func (a *app) switchTo(ctx context.Context, desc *chain.Descriptor) error {
	wasKnown := a.provider.Knows(desc.ID)

	ok, err := a.network.SwitchTo(ctx, desc.ID)
	if err != nil {
		return fmt.Errorf("failed to switch to %s: %w", desc.Name, err)
	}
	if !ok {
		return fmt.Errorf("the wallet did not add %s; the network was not switched", desc.Name)
	}

	if err := config.Persist(viper.GetViper(), "chain", desc.Key); err != nil {
		logger.Warn("failed to persist chain", zap.Error(err))
	}
	if !wasKnown {
		known := append(slices.Clone(cfg.Wallet.KnownChains), desc.Key)
		if err := config.Persist(viper.GetViper(), "wallet.known_chains", known); err != nil {
			logger.Warn("failed to persist known chains", zap.Error(err))
		} else {
			cfg.Wallet.KnownChains = known
		}
	}
	cfg.Chain = desc.Key
	return nil
}

// activeDescriptor is the registry entry of the wallet's chain.
func (a *app) activeDescriptor() (*chain.Descriptor, error) {
	id := a.network.Active()
	if id == nil {
		return nil, errors.New("wallet chain unknown")
	}
	return a.registry.Lookup(id)
}

func sameChain(a, b *big.Int) bool {
	return a != nil && b != nil && a.Cmp(b) == 0
}
