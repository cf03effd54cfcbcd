package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/wallet"
	"github.com/yolodolo42/chatdefi/internal/wallet/wallettest"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestWallet_Mount(t *testing.T) {
	ctx := context.Background()

	t.Run("restores a pre-authorized account", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{alice.Hex()})

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		acct, ok := w.Account()
		assert.True(t, ok)
		assert.Equal(t, alice, acct)
	})

	t.Run("no accounts means disconnected", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		_, ok := w.Account()
		assert.False(t, ok)
	})

	t.Run("read failure is not fatal", func(t *testing.T) {
		p := wallettest.New()
		p.Fail(wallet.MethodAccounts, errors.New("boom"))

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()
		assert.False(t, w.Snapshot().Connected)
	})
}

func TestWallet_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("adopts the first account", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})
		p.Return(wallet.MethodRequestAccounts, []string{alice.Hex(), bob.Hex()})

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		acct, err := w.Connect(ctx)
		require.NoError(t, err)
		assert.Equal(t, alice, acct)

		s := w.Snapshot()
		assert.True(t, s.Connected)
		assert.False(t, s.Connecting)
		assert.Empty(t, s.LastError)
	})

	t.Run("connect while connected does not prompt again", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})
		p.Return(wallet.MethodRequestAccounts, []string{alice.Hex()})

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		_, err := w.Connect(ctx)
		require.NoError(t, err)
		acct, err := w.Connect(ctx)
		require.NoError(t, err)
		assert.Equal(t, alice, acct)
		assert.Equal(t, 1, p.CallCount(wallet.MethodRequestAccounts))
	})

	t.Run("no wallet", func(t *testing.T) {
		w := NewWallet(ctx, nil, zap.NewNop())
		defer w.Close()

		_, err := w.Connect(ctx)
		assert.ErrorIs(t, err, wallet.ErrWalletUnavailable)
		assert.Equal(t, "wallet not installed", w.Snapshot().LastError)
	})

	t.Run("user rejection leaves the account unset", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})
		p.Fail(wallet.MethodRequestAccounts, wallet.NewRPCError(wallet.CodeUserRejected, "User rejected the request."))

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		_, err := w.Connect(ctx)
		assert.ErrorIs(t, err, wallet.ErrUserRejected)

		s := w.Snapshot()
		assert.False(t, s.Connected)
		assert.False(t, s.Connecting)
		assert.Contains(t, s.LastError, "User rejected the request.")
	})

	t.Run("other failures are provider errors", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})
		p.Fail(wallet.MethodRequestAccounts, wallet.NewRPCError(wallet.CodeInternal, "internal"))

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		_, err := w.Connect(ctx)
		assert.ErrorIs(t, err, wallet.ErrProviderError)
	})

	t.Run("empty account list is a provider error", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})
		p.Return(wallet.MethodRequestAccounts, []string{})

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		_, err := w.Connect(ctx)
		assert.ErrorIs(t, err, wallet.ErrProviderError)
	})

	t.Run("second connect while the first is pending is busy", func(t *testing.T) {
		p := wallettest.New()
		p.Return(wallet.MethodAccounts, []string{})

		entered := make(chan struct{})
		release := make(chan struct{})
		p.Handle(wallet.MethodRequestAccounts, func(context.Context, []any) (any, error) {
			close(entered)
			<-release
			return []string{alice.Hex()}, nil
		})

		w := NewWallet(ctx, p, zap.NewNop())
		defer w.Close()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Connect(ctx)
			assert.NoError(t, err)
		}()

		<-entered
		assert.True(t, w.Snapshot().Connecting)
		_, err := w.Connect(ctx)
		assert.ErrorIs(t, err, ErrBusy)

		close(release)
		wg.Wait()
		assert.Equal(t, 1, p.CallCount(wallet.MethodRequestAccounts))
	})
}

func TestWallet_AccountsChanged(t *testing.T) {
	ctx := context.Background()
	p := wallettest.New()
	p.Return(wallet.MethodAccounts, []string{alice.Hex()})

	w := NewWallet(ctx, p, zap.NewNop())

	var states []WalletState
	stop := w.OnChange(func(s WalletState) { states = append(states, s) })
	defer stop()

	p.Emit(wallet.EventAccountsChanged, []string{bob.Hex()})
	acct, ok := w.Account()
	assert.True(t, ok)
	assert.Equal(t, bob, acct)

	p.Emit(wallet.EventAccountsChanged, []string{})
	_, ok = w.Account()
	assert.False(t, ok)

	p.Emit(wallet.EventAccountsChanged, []string{alice.Hex()})
	acct, ok = w.Account()
	assert.True(t, ok)
	assert.Equal(t, alice, acct)

	p.Emit(wallet.EventAccountsChanged, "garbage")
	acct, _ = w.Account()
	assert.Equal(t, alice, acct)

	assert.Len(t, states, 3)

	assert.Equal(t, 1, p.Subscribers(wallet.EventAccountsChanged))
	w.Close()
	w.Close()
	assert.Equal(t, 0, p.Subscribers(wallet.EventAccountsChanged))

	p.Emit(wallet.EventAccountsChanged, []string{bob.Hex()})
	acct, _ = w.Account()
	assert.Equal(t, alice, acct, "closed session ignores events")
}

func TestWallet_Disconnect(t *testing.T) {
	p := wallettest.New()
	p.Return(wallet.MethodAccounts, []string{alice.Hex()})

	w := NewWallet(context.Background(), p, zap.NewNop())
	defer w.Close()

	w.Disconnect()
	_, ok := w.Account()
	assert.False(t, ok)
	assert.Empty(t, p.Calls("wallet_revokePermissions"))
}
