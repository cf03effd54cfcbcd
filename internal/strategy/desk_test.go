package strategy

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/vault"
	"github.com/yolodolo42/chatdefi/internal/wallet"
	"github.com/yolodolo42/chatdefi/internal/wallet/wallettest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	user  = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	token = common.HexToAddress("0x000000000000000000000000000000000000a55e")
)

type fakeAccount struct {
	addr      common.Address
	connected bool
}

func (f fakeAccount) Account() (common.Address, bool) { return f.addr, f.connected }

type fakeChain struct{ id *big.Int }

func (f fakeChain) Active() *big.Int { return f.id }

// rig is a wallet on Celo Alfajores in front of the vault.
type rig struct {
	t *testing.T
	p *wallettest.Provider

	mu       sync.Mutex
	shares   *big.Int
	assets   *big.Int
	held     *big.Int
	mined    bool
	sendHook func()
	events   []Event
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		t:      t,
		p:      wallettest.New(),
		shares: big.NewInt(0),
		assets: big.NewInt(0),
		held:   big.NewInt(0),
		mined:  true,
	}
	r.p.Return(wallet.MethodChainID, "0xaef3")
	r.p.Handle(wallet.MethodCall, func(_ context.Context, params []any) (any, error) {
		args := params[0].(wallet.TransactionArgs)
		method, err := vault.ABI.MethodById(args.Data[:4])
		require.NoError(t, err)

		r.mu.Lock()
		defer r.mu.Unlock()
		var out []byte
		switch method.Name {
		case "asset":
			out, err = method.Outputs.Pack(token)
		case "balanceOf":
			if *args.To == token {
				out, err = method.Outputs.Pack(r.held)
			} else {
				out, err = method.Outputs.Pack(r.shares)
			}
		case "convertToAssets":
			out, err = method.Outputs.Pack(r.assets)
		}
		require.NoError(t, err)
		return hexutil.Bytes(out), nil
	})
	var sent int
	r.p.Handle(wallet.MethodSendTransaction, func(context.Context, []any) (any, error) {
		r.mu.Lock()
		hook := r.sendHook
		sent++
		n := sent
		r.mu.Unlock()
		if hook != nil {
			hook()
		}
		return common.BigToHash(big.NewInt(int64(n))), nil
	})
	r.p.Handle(wallet.MethodTransactionReceipt, func(_ context.Context, params []any) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.mined {
			return nil, nil
		}
		return map[string]any{"transactionHash": params[0], "status": "0x1"}, nil
	})
	return r
}

func (r *rig) desk(acct fakeAccount, active *big.Int, wait time.Duration) *Desk {
	r.t.Helper()
	d, err := NewDesk(DeskOptions{
		Wallet:      acct,
		Chain:       fakeChain{id: active},
		Vault:       vault.NewClient(r.p, chain.DefaultRegistry(), vault.WithPollInterval(time.Millisecond), vault.WithWaitTimeout(wait)),
		Logger:      zap.NewNop(),
		WaitTimeout: wait,
		Notify: func(e Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		},
	})
	require.NoError(r.t, err)
	return d
}

func (r *rig) eventKinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

var connected = fakeAccount{addr: user, connected: true}

func TestNewDeskRequiresCollaborators(t *testing.T) {
	_, err := NewDesk(DeskOptions{})
	assert.Error(t, err)
}

func TestDeskRejectsBeforeNetwork(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		acct     fakeAccount
		active   *big.Int
		action   Action
		strategy string
		chain    string
		amount   string
		want     error
	}{
		{"unknown strategy", connected, chain.CeloAlfajoresID, ActionDeposit, "42", "celo", "1", ErrUnknownStrategy},
		{"mock strategy", connected, chain.CeloAlfajoresID, ActionDeposit, "2", "celo", "1", ErrUnsupportedStrategy},
		{"unknown chain", connected, chain.CeloAlfajoresID, ActionDeposit, "1", "mainnet", "1", chain.ErrUnsupportedChain},
		{"empty amount", connected, chain.CeloAlfajoresID, ActionDeposit, "1", "celo", "", vault.ErrInvalidAmount},
		{"zero amount", connected, chain.CeloAlfajoresID, ActionDeposit, "1", "celo", "0", vault.ErrInvalidAmount},
		{"negative amount", connected, chain.CeloAlfajoresID, ActionDeposit, "1", "celo", "-3", vault.ErrInvalidAmount},
		{"too precise", connected, chain.CeloAlfajoresID, ActionDeposit, "1", "celo", "0.0000001", vault.ErrInvalidAmount},
		{"withdraw without deposit", connected, chain.CeloAlfajoresID, ActionWithdraw, "1", "celo", "1", ErrNoPosition},
		{"not connected", fakeAccount{}, chain.CeloAlfajoresID, ActionDeposit, "1", "celo", "1", ErrNotConnected},
		{"wrong network", connected, chain.RootstockTestnetID, ActionDeposit, "1", "celo", "1", vault.ErrChainMismatch},
		{"unknown network", connected, nil, ActionDeposit, "1", "celo", "1", vault.ErrChainMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			d := r.desk(tt.acct, tt.active, time.Second)

			var err error
			if tt.action == ActionDeposit {
				_, err = d.Deposit(ctx, tt.strategy, tt.chain, tt.amount)
			} else {
				_, err = d.Withdraw(ctx, tt.strategy, tt.chain, tt.amount)
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, r.p.Methods())
			assert.False(t, d.Busy(tt.strategy))
		})
	}
}

func TestDeskDeposit(t *testing.T) {
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, time.Second)

	r.mu.Lock()
	r.shares = big.NewInt(990)
	r.assets = big.NewInt(1000000)
	r.held = big.NewInt(4000000)
	r.mu.Unlock()

	res, err := d.Deposit(context.Background(), "1", "celo", "1")
	require.NoError(t, err)

	assert.Equal(t, vault.KindDeposit, res.Tx.Kind)
	assert.Equal(t, vault.StatusConfirmed, res.Tx.Status())
	assert.Equal(t, "1.0", res.Position.Deposited())
	assert.Equal(t, "4.0", res.Position.AvailableLabel())
	assert.Equal(t, 0, res.Position.ChainID.Cmp(chain.CeloAlfajoresID))

	assert.Equal(t, 2, r.p.CallCount(wallet.MethodSendTransaction))
	assert.Equal(t, []EventKind{EventSubmitted, EventConfirmed}, r.eventKinds())
	assert.False(t, d.Busy("1"))

	pos, _ := d.Position("1")
	assert.Equal(t, "1000000", pos.UserDeposit.String())
}

func TestDeskWithdrawAfterRefresh(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, time.Second)

	r.mu.Lock()
	r.shares = big.NewInt(10)
	r.assets = big.NewInt(2500000)
	r.mu.Unlock()

	pos, err := d.Refresh(ctx, "celo")
	require.NoError(t, err)
	assert.Equal(t, "2.5", pos.Deposited())

	_, err = d.Withdraw(ctx, "1", "celo", "3")
	assert.ErrorIs(t, err, ErrNoPosition)

	// A position read on Celo says nothing about Rootstock.
	_, err = d.Withdraw(ctx, "1", "rootstock", "1")
	assert.ErrorIs(t, err, ErrNoPosition)

	r.mu.Lock()
	r.shares = big.NewInt(0)
	r.mu.Unlock()

	res, err := d.Withdraw(ctx, "1", "celo", "2.5")
	require.NoError(t, err)
	assert.Equal(t, vault.KindWithdraw, res.Tx.Kind)
	assert.Equal(t, 0, res.Position.UserDeposit.Sign())
	assert.Equal(t, 1, r.p.CallCount(wallet.MethodSendTransaction))
}

func TestDeskDoubleSubmit(t *testing.T) {
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	r.mu.Lock()
	r.sendHook = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := d.Deposit(context.Background(), "1", "celo", "1")
		done <- err
	}()

	<-entered
	assert.True(t, d.Busy("1"))

	_, err := d.Deposit(context.Background(), "1", "celo", "1")
	assert.ErrorIs(t, err, ErrActionInFlight)
	_, err = d.Withdraw(context.Background(), "1", "celo", "1")
	assert.ErrorIs(t, err, ErrNoPosition)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, d.Busy("1"))

	// Only the first click reached the wallet: one approve and one deposit.
	assert.Equal(t, 2, r.p.CallCount(wallet.MethodSendTransaction))
}

func TestDeskReleasesGuardOnFailure(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, time.Second)

	r.p.Fail(wallet.MethodSendTransaction, wallet.NewRPCError(wallet.CodeUserRejected, "User denied transaction signature."))
	_, err := d.Deposit(ctx, "1", "celo", "1")
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.False(t, d.Busy("1"))
	assert.Equal(t, []EventKind{EventFailed}, r.eventKinds())

	_, err = d.Deposit(ctx, "1", "celo", "1")
	assert.NotErrorIs(t, err, ErrActionInFlight)
}

func TestDeskWaitTimeout(t *testing.T) {
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, 20*time.Millisecond)

	r.mu.Lock()
	r.mined = false
	r.mu.Unlock()

	_, err := d.Deposit(context.Background(), "1", "celo", "1")
	assert.ErrorIs(t, err, vault.ErrStillPending)
	assert.False(t, d.Busy("1"))
}

func TestDeskWaitExcludesApprovalPrompts(t *testing.T) {
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, 20*time.Millisecond)

	// Each signature takes longer than the whole receipt budget.
	r.mu.Lock()
	r.sendHook = func() { time.Sleep(50 * time.Millisecond) }
	r.mu.Unlock()

	res, err := d.Deposit(context.Background(), "1", "celo", "1")
	require.NoError(t, err)
	require.NotNil(t, res.Tx.Approval)
	assert.Equal(t, vault.StatusConfirmed, res.Tx.Status())
	assert.Equal(t, []EventKind{EventSubmitted, EventConfirmed}, r.eventKinds())
}

func TestDeskSimulate(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	d := r.desk(connected, chain.CeloAlfajoresID, time.Second)

	_, err := d.Simulate(ctx, ActionWithdraw, "3")
	assert.ErrorIs(t, err, ErrNoPosition)

	pos, err := d.Simulate(ctx, ActionDeposit, "3")
	require.NoError(t, err)
	assert.Equal(t, "1.0", pos.Deposited())

	pos, err = d.Simulate(ctx, ActionWithdraw, "3")
	require.NoError(t, err)
	assert.Equal(t, 0, pos.UserDeposit.Sign())
	assert.Equal(t, "1.0", pos.AvailableLabel())

	_, err = d.Simulate(ctx, ActionDeposit, "1")
	assert.Error(t, err)

	_, err = d.Simulate(ctx, ActionDeposit, "77")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	offline := r.desk(fakeAccount{}, nil, time.Second)
	_, err = offline.Simulate(ctx, ActionDeposit, "3")
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.Empty(t, r.p.Methods())
}

func TestActionTitle(t *testing.T) {
	assert.Equal(t, "Deposit", ActionDeposit.Title())
	assert.Equal(t, "Withdrawal", ActionWithdraw.Title())
}
