package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/config"
	"github.com/yolodolo42/chatdefi/internal/strategy"
	"github.com/yolodolo42/chatdefi/internal/vault"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

func TestChainRows(t *testing.T) {
	rows := chainRows(chain.DefaultRegistry(), "celo", []string{"rootstock"})
	require.Len(t, rows, 3)

	byKey := map[string][]string{}
	for _, r := range rows {
		byKey[r[1]] = r
	}
	assert.Equal(t, "●", byKey["celo"][0])
	assert.Equal(t, "44787", byKey["celo"][2])
	assert.Equal(t, "yes", byKey["celo"][6])
	assert.Equal(t, "yes", byKey["rootstock"][6])
	assert.Equal(t, "○", byKey["saga"][0])
	assert.Equal(t, "no", byKey["saga"][6])
	assert.Equal(t, "2743785636557000", byKey["saga"][2])
}

func TestStrategyRows(t *testing.T) {
	rows := strategyRows(strategy.DefaultCatalog())
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"1", "Sky USDS Compo...", "USDS Stablecoin", "Ethereum", "6.03%", "8.90%", "■■□□□", "$11.13M", "vault"}, rows[0])
	for _, r := range rows[1:] {
		assert.Equal(t, "simulated", r[8])
	}
}

type fakeBalances map[string]*big.Int

func (f fakeBalances) GetBalance(_ context.Context, id *big.Int, _ common.Address) (*big.Int, error) {
	if v, ok := f[id.String()]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("dial %s: connection refused", id)
}

type fakePositions map[string]*big.Int

func (f fakePositions) UserAssets(_ context.Context, _ common.Address, id *big.Int) (*big.Int, error) {
	if v, ok := f[id.String()]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

func TestReadBalances(t *testing.T) {
	reg := chain.DefaultRegistry()
	natives := fakeBalances{
		"44787": big.NewInt(1_500_000_000_000_000_000),
		"31":    new(big.Int),
	}
	positions := fakePositions{"44787": big.NewInt(12_340_000)}

	rows := readBalances(context.Background(), reg, natives, positions, alice)
	require.Len(t, rows, 3)

	byKey := map[string]chainBalance{}
	for _, r := range rows {
		byKey[r.desc.Key] = r
	}
	require.NoError(t, byKey["celo"].err)
	assert.Equal(t, "12.34", chain.FormatUnits(byKey["celo"].deposited, 6))
	require.NoError(t, byKey["rootstock"].err)
	assert.Error(t, byKey["saga"].err, "one failing network does not hide the others")

	out := renderBalances(rows)
	assert.Contains(t, out, "Celo Testnet")
	assert.Contains(t, out, "vault 12.34")
	assert.Contains(t, out, "connection refused")
}

func TestActionError(t *testing.T) {
	cfg = &config.Config{Tx: config.TxConfig{WaitTimeout: time.Minute}}
	t.Cleanup(func() { cfg = nil })
	celo, err := chain.DefaultRegistry().LookupKey("celo")
	require.NoError(t, err)

	partial := &vault.PartialDepositError{
		Approval: &vault.PendingTransaction{Hash: common.HexToHash("0x01")},
		Err:      errors.New("out of gas"),
	}
	got := actionError(celo, partial)
	assert.ErrorIs(t, got, vault.ErrPartialDeposit)
	assert.Contains(t, got.Error(), "allowance")
	assert.Contains(t, got.Error(), "alfajores.celoscan.io")

	assert.EqualError(t, actionError(celo, fmt.Errorf("send: %w", wallet.ErrUserRejected)), "transaction rejected in wallet")
	assert.Contains(t, actionError(celo, strategy.ErrNoPosition).Error(), "balance --chain celo")
	assert.Contains(t, actionError(celo, context.DeadlineExceeded).Error(), "1m0s")

	plain := errors.New("boom")
	assert.Equal(t, plain, actionError(celo, plain))
}

func TestResolveAddress(t *testing.T) {
	cfg = &config.Config{DataDir: t.TempDir(), Wallet: config.WalletConfig{Account: bob.Hex()}}
	t.Cleanup(func() { cfg = nil })

	got, err := resolveAddress(alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = resolveAddress("nope")
	assert.Error(t, err)

	got, err = resolveAddress("")
	require.NoError(t, err)
	assert.Equal(t, bob, got)

	cfg.Wallet.Account = ""
	_, err = resolveAddress("")
	assert.ErrorContains(t, err, "no wallets found")
}

func TestPlanAction(t *testing.T) {
	cfg = &config.Config{Chain: "rootstock"}
	t.Cleanup(func() { cfg = nil })
	reg, catalog := chain.DefaultRegistry(), strategy.DefaultCatalog()

	plan, err := planAction(reg, catalog, strategy.ActionDeposit, "1", "celo", "1.5")
	require.NoError(t, err)
	assert.Equal(t, "celo", plan.chain.Key)
	assert.Equal(t, "1.5", plan.amount)

	plan, err = planAction(reg, catalog, strategy.ActionWithdraw, "1", "", "2")
	require.NoError(t, err)
	assert.Equal(t, "rootstock", plan.chain.Key, "defaults to the wallet's network")

	for _, amount := range []string{"", "-1", "0", "abc", "1.0000001"} {
		_, err := planAction(reg, catalog, strategy.ActionWithdraw, "1", "celo", amount)
		assert.ErrorIs(t, err, vault.ErrInvalidAmount, "amount %q", amount)
	}

	_, err = planAction(reg, catalog, strategy.ActionDeposit, "1", "goerli", "1")
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)

	_, err = planAction(reg, catalog, strategy.ActionDeposit, "42", "celo", "1")
	assert.Error(t, err)
}

func TestRunActionRejectsAmountBeforeWallet(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	cfg = &config.Config{Chain: "celo", DataDir: dataDir, Tx: config.TxConfig{WaitTimeout: time.Minute}}
	t.Cleanup(func() { cfg = nil })

	for _, amount := range []string{"-1", ""} {
		withdrawCmd.SetContext(context.Background())
		err := runAction(withdrawCmd, strategy.ActionWithdraw, amount)
		assert.ErrorIs(t, err, vault.ErrInvalidAmount, "amount %q", amount)
	}
	assert.NoDirExists(t, dataDir, "the keystore wallet was never opened")
}
