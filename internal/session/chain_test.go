package session

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/wallet"
	"github.com/yolodolo42/chatdefi/internal/wallet/wallettest"
)

func newChainSession(t *testing.T, p *wallettest.Provider) *Chain {
	t.Helper()
	c := NewChain(context.Background(), p, chain.DefaultRegistry(), zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestChain_Mount(t *testing.T) {
	t.Run("reads the current chain", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0x1f")

		c := newChainSession(t, p)
		s := c.Snapshot()
		require.NotNil(t, s.ChainID)
		assert.Equal(t, int64(31), s.ChainID.Int64())
		assert.True(t, s.Supported)
	})

	t.Run("unsupported chain", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0x1")

		c := newChainSession(t, p)
		s := c.Snapshot()
		assert.Equal(t, int64(1), s.ChainID.Int64())
		assert.False(t, s.Supported)
	})

	t.Run("no wallet leaves the chain unknown", func(t *testing.T) {
		c := NewChain(context.Background(), nil, chain.DefaultRegistry(), zap.NewNop())
		defer c.Close()
		assert.Nil(t, c.Active())
		assert.False(t, c.Snapshot().Supported)
	})

	t.Run("read failure leaves the chain unknown", func(t *testing.T) {
		p := wallettest.New()
		p.Fail(wallet.MethodChainID, errors.New("disconnected"))

		c := newChainSession(t, p)
		assert.Nil(t, c.Active())
	})
}

func TestChain_IsSupported(t *testing.T) {
	c := NewChain(context.Background(), nil, chain.DefaultRegistry(), zap.NewNop())
	assert.True(t, c.IsSupported(chain.CeloAlfajoresID))
	assert.True(t, c.IsSupported(chain.RootstockTestnetID))
	assert.True(t, c.IsSupported(chain.SagaChainletID))
	assert.False(t, c.IsSupported(big.NewInt(1)))
}

func TestChain_SwitchTo(t *testing.T) {
	ctx := context.Background()

	t.Run("known chain switches without adding", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")
		p.Return(wallet.MethodSwitchChain, nil)

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, chain.RootstockTestnetID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, p.CallCount(wallet.MethodAddChain))

		calls := p.Calls(wallet.MethodSwitchChain)
		require.Len(t, calls, 1)
		assert.Equal(t, wallet.SwitchChainParams{ChainID: "0x1f"}, calls[0].Params[0])
		assert.Equal(t, int64(31), c.Active().Int64())
		assert.False(t, c.Snapshot().Switching)
	})

	t.Run("unknown chain is added before success is reported", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")
		p.Fail(wallet.MethodSwitchChain, wallet.NewRPCError(wallet.CodeUnrecognizedChain, "Unrecognized chain ID"))
		p.Return(wallet.MethodAddChain, nil)

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, chain.SagaChainletID)
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, []string{wallet.MethodChainID, wallet.MethodSwitchChain, wallet.MethodAddChain}, p.Methods())
		add := p.Calls(wallet.MethodAddChain)[0].Params[0].(chain.AddChainParams)
		assert.Equal(t, "0x9bf756034f0c8", add.ChainID)
		assert.Equal(t, "Saga Chainlet forge-2743785636557000-1", add.ChainName)
		assert.NotEmpty(t, add.RPCURLs)
		assert.NotEmpty(t, add.BlockExplorerURLs)
		assert.Equal(t, 0, c.Active().Cmp(chain.SagaChainletID))
	})

	t.Run("message-only unrecognized chain error also adds", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")
		p.Fail(wallet.MethodSwitchChain, errors.New("Try adding the chain using wallet_addEthereumChain first"))
		p.Return(wallet.MethodAddChain, nil)

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, chain.RootstockTestnetID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, p.CallCount(wallet.MethodAddChain))
	})

	t.Run("failed add reports false without error", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")
		p.Fail(wallet.MethodSwitchChain, wallet.NewRPCError(wallet.CodeUnrecognizedChain, "Unrecognized chain ID"))
		p.Fail(wallet.MethodAddChain, wallet.NewRPCError(wallet.CodeUserRejected, "User rejected the request."))

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, chain.RootstockTestnetID)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(44787), c.Active().Int64())
	})

	t.Run("declined switch is a rejection", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")
		p.Fail(wallet.MethodSwitchChain, wallet.NewRPCError(wallet.CodeUserRejected, "User rejected the request."))

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, chain.RootstockTestnetID)
		assert.False(t, ok)
		assert.ErrorIs(t, err, wallet.ErrUserRejected)
		assert.NotErrorIs(t, err, wallet.ErrProviderError)
		assert.Equal(t, 0, p.CallCount(wallet.MethodAddChain))
	})

	t.Run("unexpected switch error is a provider error", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")
		p.Fail(wallet.MethodSwitchChain, wallet.NewRPCError(wallet.CodeInternal, "Internal JSON-RPC error."))

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, chain.RootstockTestnetID)
		assert.False(t, ok)
		assert.ErrorIs(t, err, wallet.ErrProviderError)
		var rpcErr *wallet.RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, wallet.CodeInternal, rpcErr.Code)
		assert.Equal(t, 0, p.CallCount(wallet.MethodAddChain))
	})

	t.Run("unsupported target never reaches the wallet", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodChainID, "0xaef3")

		c := newChainSession(t, p)
		ok, err := c.SwitchTo(ctx, big.NewInt(1))
		assert.False(t, ok)
		assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
		assert.Equal(t, []string{wallet.MethodChainID}, p.Methods())
	})

	t.Run("no wallet", func(t *testing.T) {
		c := NewChain(ctx, nil, chain.DefaultRegistry(), zap.NewNop())
		_, err := c.SwitchTo(ctx, chain.CeloAlfajoresID)
		assert.ErrorIs(t, err, wallet.ErrWalletUnavailable)
	})
}

func TestChain_ChainChanged(t *testing.T) {
	p := wallettest.New()
	p.Return(wallet.MethodChainID, "0xaef3")

	c := NewChain(context.Background(), p, chain.DefaultRegistry(), zap.NewNop())

	var seen []ChainState
	stop := c.OnChange(func(s ChainState) { seen = append(seen, s) })
	defer stop()

	p.Emit(wallet.EventChainChanged, "0x1")
	assert.Equal(t, int64(1), c.Active().Int64())
	assert.False(t, c.Snapshot().Supported)

	p.Emit(wallet.EventChainChanged, "0x9bf756034f0c8")
	assert.Equal(t, 0, c.Active().Cmp(chain.SagaChainletID))
	assert.True(t, c.Snapshot().Supported)

	p.Emit(wallet.EventChainChanged, "0x9bf756034f0c8")
	p.Emit(wallet.EventChainChanged, 42)
	assert.Len(t, seen, 2)

	c.Close()
	assert.Equal(t, 0, p.Subscribers(wallet.EventChainChanged))
}
