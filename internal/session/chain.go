package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// ChainState is a point-in-time view of the chain session. ChainID is nil
// while the wallet's chain is unknown.
type ChainState struct {
	ChainID   *big.Int
	Supported bool
	Switching bool
}

// Chain tracks the wallet's active chain and whether the vault is deployed
// there.
type Chain struct {
	provider wallet.Provider
	registry *chain.Registry
	logger   *zap.Logger

	mu          sync.Mutex
	state       ChainState
	observers   observers[ChainState]
	unsubscribe func()
}

// NewChain mounts a chain session. The current chain is read with
// eth_chainId; without a wallet, or if the read fails, it stays unknown.
func NewChain(ctx context.Context, provider wallet.Provider, registry *chain.Registry, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{provider: provider, registry: registry, logger: logger}
	if provider == nil {
		return c
	}

	c.unsubscribe = provider.On(wallet.EventChainChanged, c.handleChainChanged)

	raw, err := provider.Request(ctx, wallet.MethodChainID)
	if err != nil {
		logger.Warn("failed to read chain id", zap.Error(err))
		return c
	}
	id, err := decodeChainID(raw)
	if err != nil {
		logger.Warn("ignoring malformed chain id", zap.Error(err))
		return c
	}
	c.setChain(id)
	return c
}

// IsSupported reports whether id is one of the registered chains.
func (c *Chain) IsSupported(id *big.Int) bool {
	return c.registry.IsSupported(id)
}

// SwitchTo asks the wallet to move to target, adding the chain first when
// the wallet does not know it. It returns false with a nil error when the
// add step fails, ErrUserRejected when the switch prompt is declined and
// ErrProviderError for any other wallet failure.
func (c *Chain) SwitchTo(ctx context.Context, target *big.Int) (bool, error) {
	desc, err := c.registry.Lookup(target)
	if err != nil {
		return false, err
	}
	if c.provider == nil {
		return false, wallet.ErrWalletUnavailable
	}

	c.mu.Lock()
	if c.state.Switching {
		c.mu.Unlock()
		return false, ErrBusy
	}
	c.state.Switching = true
	c.mu.Unlock()
	defer c.update(func(s *ChainState) { s.Switching = false })

	hexID := desc.HexID()
	_, err = c.provider.Request(ctx, wallet.MethodSwitchChain, wallet.SwitchChainParams{ChainID: hexID})
	if err == nil {
		c.setChain(desc.ID)
		return true, nil
	}

	if !wallet.IsUnrecognizedChain(err) {
		c.logger.Warn("chain switch failed", zap.String("chain_id", hexID), zap.Error(err))
		return false, wallet.Classify(err)
	}

	c.logger.Info("chain unknown to wallet; adding", zap.String("chain_id", hexID))
	if _, err := c.provider.Request(ctx, wallet.MethodAddChain, desc.AddChainParams()); err != nil {
		c.logger.Warn("adding chain failed", zap.String("chain_id", hexID), zap.Error(err))
		return false, nil
	}
	c.setChain(desc.ID)
	return true, nil
}

// Active returns the wallet's chain, or nil when unknown.
func (c *Chain) Active() *big.Int {
	return c.Snapshot().ChainID
}

// Snapshot returns the current state.
func (c *Chain) Snapshot() ChainState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.ChainID != nil {
		s.ChainID = new(big.Int).Set(s.ChainID)
	}
	return s
}

// OnChange registers fn to be called after every state change.
func (c *Chain) OnChange(fn func(ChainState)) func() {
	return c.observers.add(fn)
}

// Close drops the chainChanged subscription.
func (c *Chain) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Chain) handleChainChanged(raw json.RawMessage) {
	id, err := decodeChainID(raw)
	if err != nil {
		c.logger.Warn("ignoring malformed chainChanged", zap.Error(err))
		return
	}
	c.setChain(id)
}

func (c *Chain) setChain(id *big.Int) {
	supported := c.registry.IsSupported(id)
	c.update(func(s *ChainState) {
		s.ChainID = new(big.Int).Set(id)
		s.Supported = supported
	})
}

func (c *Chain) update(fn func(*ChainState)) {
	c.mu.Lock()
	prev := c.state
	fn(&c.state)
	next := c.state
	c.mu.Unlock()

	if !sameChainState(prev, next) {
		c.observers.notify(c.Snapshot())
	}
}

func sameChainState(a, b ChainState) bool {
	if a.Supported != b.Supported || a.Switching != b.Switching {
		return false
	}
	if a.ChainID == nil || b.ChainID == nil {
		return a.ChainID == nil && b.ChainID == nil
	}
	return a.ChainID.Cmp(b.ChainID) == 0
}

func decodeChainID(raw json.RawMessage) (*big.Int, error) {
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return nil, fmt.Errorf("decode chain id: %w", err)
	}
	return chain.DecodeID(hex)
}
