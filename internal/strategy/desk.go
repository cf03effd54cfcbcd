package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/vault"
)

var (
	ErrActionInFlight = errors.New("another action on this strategy is still in flight")
	ErrNoPosition     = errors.New("no deposit to withdraw")
	ErrNotConnected   = errors.New("wallet not connected")
)

// Action is what the user asked the desk to do.
type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

// Title is the action as shown in notifications.
func (a Action) Title() string {
	if a == ActionWithdraw {
		return "Withdrawal"
	}
	return "Deposit"
}

// EventKind is a step of a desk action.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventConfirmed EventKind = "confirmed"
	EventFailed    EventKind = "failed"
)

// Event reports progress of a running action.
type Event struct {
	Kind     EventKind
	Action   Action
	Strategy Strategy
	Tx       *vault.PendingTransaction
	Err      error
}

// Account reports the connected wallet account.
type Account interface {
	Account() (common.Address, bool)
}

// ActiveChain reports the wallet's current chain.
type ActiveChain interface {
	Active() *big.Int
}

// Vault is the part of vault.Client the desk drives.
type Vault interface {
	Deposit(ctx context.Context, account common.Address, chainID *big.Int, amount string) (*vault.PendingTransaction, error)
	Withdraw(ctx context.Context, account common.Address, chainID *big.Int, amount string) (*vault.PendingTransaction, error)
	UserAssets(ctx context.Context, account common.Address, chainID *big.Int) (*big.Int, error)
	AssetBalance(ctx context.Context, account common.Address, chainID *big.Int) (*big.Int, error)
}

// Result is the outcome of a confirmed action.
type Result struct {
	Tx       *vault.PendingTransaction
	Position Position
}

// DeskOptions configures a Desk.
type DeskOptions struct {
	Catalog   *Catalog
	Registry  *chain.Registry
	Positions *Positions
	Wallet    Account
	Chain     ActiveChain
	Vault     Vault
	Logger    *zap.Logger

	// WaitTimeout bounds how long an action waits for its receipt.
	WaitTimeout time.Duration
	// SimulatedDelay is how long a mock strategy action takes.
	SimulatedDelay time.Duration
	// Notify receives progress events; it must not block.
	Notify func(Event)
}

// Desk runs deposit and withdraw actions for the session account. At most one
// action per strategy runs at a time.
type Desk struct {
	catalog   *Catalog
	registry  *chain.Registry
	positions *Positions
	wallet    Account
	chain     ActiveChain
	vault     Vault
	logger    *zap.Logger
	wait      time.Duration
	simulate  time.Duration
	notify    func(Event)

	inflight map[string]*atomic.Bool
}

// NewDesk builds a desk. Catalog and Registry default to the built-in sets.
func NewDesk(opts DeskOptions) (*Desk, error) {
	if opts.Wallet == nil || opts.Chain == nil || opts.Vault == nil {
		return nil, errors.New("strategy: wallet, chain and vault are required")
	}
	d := &Desk{
		catalog:   opts.Catalog,
		registry:  opts.Registry,
		positions: opts.Positions,
		wallet:    opts.Wallet,
		chain:     opts.Chain,
		vault:     opts.Vault,
		logger:    opts.Logger,
		wait:      opts.WaitTimeout,
		simulate:  opts.SimulatedDelay,
		notify:    opts.Notify,
	}
	if d.catalog == nil {
		d.catalog = DefaultCatalog()
	}
	if d.registry == nil {
		d.registry = chain.DefaultRegistry()
	}
	if d.positions == nil {
		d.positions = NewPositions(d.catalog)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.wait <= 0 {
		d.wait = 3 * time.Minute
	}
	if d.notify == nil {
		d.notify = func(Event) {}
	}

	d.inflight = make(map[string]*atomic.Bool)
	for _, s := range d.catalog.List() {
		d.inflight[s.ID] = new(atomic.Bool)
	}
	return d, nil
}

// Catalog returns the desk's catalog.
func (d *Desk) Catalog() *Catalog { return d.catalog }

// Position returns the tracked position for a strategy.
func (d *Desk) Position(strategyID string) (Position, bool) {
	return d.positions.Get(strategyID)
}

// Busy reports whether an action on the strategy is in flight.
func (d *Desk) Busy(strategyID string) bool {
	g, ok := d.inflight[strategyID]
	return ok && g.Load()
}

// Deposit puts amount of the vault asset into the strategy on chainKey.
func (d *Desk) Deposit(ctx context.Context, strategyID, chainKey, amount string) (*Result, error) {
	return d.run(ctx, ActionDeposit, strategyID, chainKey, amount)
}

// Withdraw takes amount of the vault asset out of the strategy on chainKey.
func (d *Desk) Withdraw(ctx context.Context, strategyID, chainKey, amount string) (*Result, error) {
	return d.run(ctx, ActionWithdraw, strategyID, chainKey, amount)
}

func (d *Desk) run(ctx context.Context, action Action, strategyID, chainKey, amount string) (*Result, error) {
	s, err := d.catalog.Get(strategyID)
	if err != nil {
		return nil, err
	}
	if !s.VaultBacked() {
		return nil, ErrUnsupportedStrategy
	}
	desc, err := d.registry.LookupKey(chainKey)
	if err != nil {
		return nil, err
	}
	value, err := vault.ParseAmount(amount, desc.AssetDecimals)
	if err != nil {
		return nil, err
	}
	if action == ActionWithdraw {
		if err := d.checkWithdrawable(s.ID, desc, value); err != nil {
			return nil, err
		}
	}

	account, ok := d.wallet.Account()
	if !ok {
		return nil, ErrNotConnected
	}
	if err := vault.CheckNetwork(d.chain.Active(), desc.ID); err != nil {
		return nil, fmt.Errorf("please switch to %s to interact with this vault: %w", desc.DisplayName, err)
	}

	release, err := d.acquire(s.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var tx *vault.PendingTransaction
	switch action {
	case ActionDeposit:
		tx, err = d.vault.Deposit(ctx, account, desc.ID, amount)
	case ActionWithdraw:
		tx, err = d.vault.Withdraw(ctx, account, desc.ID, amount)
	}
	if err != nil {
		d.fail(action, s, nil, err)
		return nil, err
	}
	d.notify(Event{Kind: EventSubmitted, Action: action, Strategy: s, Tx: tx})

	// Time at the wallet's prompts does not count against the wait.
	waitCtx, cancel := context.WithTimeout(ctx, d.wait)
	defer cancel()
	if _, err := tx.Wait(waitCtx); err != nil {
		d.fail(action, s, tx, err)
		return nil, err
	}
	d.notify(Event{Kind: EventConfirmed, Action: action, Strategy: s, Tx: tx})
	d.logger.Info("strategy action confirmed",
		zap.String("action", string(action)),
		zap.String("strategy", s.ID),
		zap.String("tx", tx.Hash.Hex()),
		zap.String("chain", desc.Key),
	)

	pos, err := d.reconcile(ctx, s.ID, account, desc)
	if err != nil {
		// The action itself succeeded; keep the stale position.
		d.logger.Warn("reconcile position", zap.String("strategy", s.ID), zap.Error(err))
		pos, _ = d.positions.Get(s.ID)
	}
	return &Result{Tx: tx, Position: pos}, nil
}

// Refresh reloads the vault-backed position from chainKey for the connected
// account.
func (d *Desk) Refresh(ctx context.Context, chainKey string) (Position, error) {
	desc, err := d.registry.LookupKey(chainKey)
	if err != nil {
		return Position{}, err
	}
	account, ok := d.wallet.Account()
	if !ok {
		return Position{}, ErrNotConnected
	}
	return d.reconcile(ctx, VaultStrategyID, account, desc)
}

// Simulate runs the dashboard's placeholder action for a strategy with no
// vault: it takes SimulatedDelay and moves one mock unit.
func (d *Desk) Simulate(ctx context.Context, action Action, strategyID string) (Position, error) {
	s, err := d.catalog.Get(strategyID)
	if err != nil {
		return Position{}, err
	}
	if s.VaultBacked() {
		return Position{}, fmt.Errorf("strategy %s is vault-backed; use %s", s.ID, action)
	}
	if _, ok := d.wallet.Account(); !ok {
		return Position{}, ErrNotConnected
	}
	if action == ActionWithdraw {
		if pos, _ := d.positions.Get(s.ID); pos.UserDeposit.Sign() == 0 {
			return Position{}, ErrNoPosition
		}
	}

	release, err := d.acquire(s.ID)
	if err != nil {
		return Position{}, err
	}
	defer release()

	timer := time.NewTimer(d.simulate)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Position{}, ctx.Err()
	case <-timer.C:
	}

	var pos Position
	if action == ActionDeposit {
		pos, _ = d.positions.MockDeposit(s.ID)
	} else {
		pos, _ = d.positions.MockWithdraw(s.ID)
	}
	d.notify(Event{Kind: EventConfirmed, Action: action, Strategy: s})
	return pos, nil
}

func (d *Desk) checkWithdrawable(id string, desc *chain.Descriptor, value *big.Int) error {
	pos, _ := d.positions.Get(id)
	if pos.UserDeposit.Sign() == 0 {
		return ErrNoPosition
	}
	if pos.ChainID == nil || pos.ChainID.Cmp(desc.ID) != 0 {
		return fmt.Errorf("%w on %s", ErrNoPosition, desc.DisplayName)
	}
	if value.Cmp(pos.UserDeposit) > 0 {
		return fmt.Errorf("%w: amount exceeds deposit of %s", ErrNoPosition, pos.Deposited())
	}
	return nil
}

func (d *Desk) acquire(id string) (func(), error) {
	g := d.inflight[id]
	if !g.CompareAndSwap(false, true) {
		return nil, ErrActionInFlight
	}
	return func() { g.Store(false) }, nil
}

func (d *Desk) reconcile(ctx context.Context, id string, account common.Address, desc *chain.Descriptor) (Position, error) {
	deposited, err := d.vault.UserAssets(ctx, account, desc.ID)
	if err != nil {
		return Position{}, err
	}
	available, err := d.vault.AssetBalance(ctx, account, desc.ID)
	if err != nil {
		return Position{}, err
	}
	pos, _ := d.positions.Reconcile(id, desc.ID, desc.AssetDecimals, deposited, available)
	return pos, nil
}

func (d *Desk) fail(action Action, s Strategy, tx *vault.PendingTransaction, err error) {
	d.notify(Event{Kind: EventFailed, Action: action, Strategy: s, Tx: tx, Err: err})
	d.logger.Warn("strategy action failed",
		zap.String("action", string(action)),
		zap.String("strategy", s.ID),
		zap.Error(err),
	)
}
