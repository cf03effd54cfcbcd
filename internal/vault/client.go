// Package vault talks to the ERC-4626 vault deployed on each supported chain,
// going through the wallet provider for every read and write.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// PlaceholderAPY is reported for the vault until a real rate source exists.
const PlaceholderAPY = 6.03

const defaultPollInterval = 2 * time.Second

// Client holds no session state: every call names the account and chain.
type Client struct {
	provider wallet.Provider
	registry *chain.Registry
	poll     time.Duration
	wait     time.Duration
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.poll = d }
}

// WithWaitTimeout bounds the receipt waits the client does itself, such as
// the approve a deposit waits on. The clock starts after the transaction is
// sent. Zero waits until ctx is done.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) { c.wait = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a vault client that sends everything through provider.
func NewClient(provider wallet.Provider, registry *chain.Registry, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		registry: registry,
		poll:     defaultPollInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveContract returns the descriptor, and with it the vault address and
// asset decimals, for chainID.
func (c *Client) ResolveContract(chainID *big.Int) (*chain.Descriptor, error) {
	return c.registry.Lookup(chainID)
}

// ParseAmount converts a human amount into base units. Empty, malformed,
// over-precise, zero and negative amounts are all ErrInvalidAmount.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	v, err := chain.ParseUnits(amount, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	return v, nil
}

// CheckNetwork fails with ErrChainMismatch unless active equals required.
func CheckNetwork(active, required *big.Int) error {
	if active == nil {
		return fmt.Errorf("%w: wallet chain unknown, need %s", ErrChainMismatch, chain.EncodeID(required))
	}
	if active.Cmp(required) != 0 {
		return fmt.Errorf("%w: on %s, need %s", ErrChainMismatch, chain.EncodeID(active), chain.EncodeID(required))
	}
	return nil
}

// Deposit approves the vault to pull amount of its asset, waits for the
// approval to be mined, then deposits with account as receiver. The returned
// transaction is the deposit; its Approval field holds the mined approve.
func (c *Client) Deposit(ctx context.Context, account common.Address, chainID *big.Int, amount string) (*PendingTransaction, error) {
	desc, err := c.ResolveContract(chainID)
	if err != nil {
		return nil, err
	}
	value, err := ParseAmount(amount, desc.AssetDecimals)
	if err != nil {
		return nil, err
	}
	if err := c.requireChain(ctx, desc.ID); err != nil {
		return nil, err
	}

	asset, err := c.Asset(ctx, desc.ID)
	if err != nil {
		return nil, err
	}

	approveData, err := ABI.Pack("approve", desc.VaultAddress, value)
	if err != nil {
		return nil, err
	}
	approval, err := c.send(ctx, account, asset, approveData, KindApprove, value, desc.ID)
	if err != nil {
		return nil, err
	}
	if _, err := c.waitMined(ctx, approval); err != nil {
		return nil, fmt.Errorf("approve %s: %w", approval.Hash.Hex(), err)
	}

	depositData, err := ABI.Pack("deposit", value, account)
	if err != nil {
		return nil, err
	}
	pending, err := c.send(ctx, account, desc.VaultAddress, depositData, KindDeposit, value, desc.ID)
	if err != nil {
		c.logger.Warn("deposit failed after approval",
			zap.String("approve_tx", approval.Hash.Hex()), zap.Error(err))
		return nil, &PartialDepositError{Approval: approval, Err: err}
	}
	pending.Approval = approval
	return pending, nil
}

func (c *Client) waitMined(ctx context.Context, tx *PendingTransaction) (*Receipt, error) {
	if c.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.wait)
		defer cancel()
	}
	return tx.Wait(ctx)
}

// Withdraw redeems amount of the asset from the vault to account.
func (c *Client) Withdraw(ctx context.Context, account common.Address, chainID *big.Int, amount string) (*PendingTransaction, error) {
	desc, err := c.ResolveContract(chainID)
	if err != nil {
		return nil, err
	}
	value, err := ParseAmount(amount, desc.AssetDecimals)
	if err != nil {
		return nil, err
	}
	if err := c.requireChain(ctx, desc.ID); err != nil {
		return nil, err
	}

	data, err := ABI.Pack("withdraw", value, account, account)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, account, desc.VaultAddress, data, KindWithdraw, value, desc.ID)
}

// UserAssets returns the account's vault position in asset base units.
func (c *Client) UserAssets(ctx context.Context, account common.Address, chainID *big.Int) (*big.Int, error) {
	desc, err := c.ResolveContract(chainID)
	if err != nil {
		return nil, err
	}

	data, err := ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, desc.VaultAddress, data)
	if err != nil {
		return nil, err
	}
	shares, err := unpackBig("balanceOf", out)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return shares, nil
	}

	data, err = ABI.Pack("convertToAssets", shares)
	if err != nil {
		return nil, err
	}
	out, err = c.call(ctx, desc.VaultAddress, data)
	if err != nil {
		return nil, err
	}
	return unpackBig("convertToAssets", out)
}

// GetUserBalance returns the account's vault position formatted in asset units.
func (c *Client) GetUserBalance(ctx context.Context, account common.Address, chainID *big.Int) (string, error) {
	desc, err := c.ResolveContract(chainID)
	if err != nil {
		return "", err
	}
	assets, err := c.UserAssets(ctx, account, desc.ID)
	if err != nil {
		return "", err
	}
	return chain.FormatUnits(assets, desc.AssetDecimals), nil
}

// AssetBalance returns how much of the vault's asset the account holds
// outside the vault.
func (c *Client) AssetBalance(ctx context.Context, account common.Address, chainID *big.Int) (*big.Int, error) {
	desc, err := c.ResolveContract(chainID)
	if err != nil {
		return nil, err
	}
	asset, err := c.Asset(ctx, desc.ID)
	if err != nil {
		return nil, err
	}
	data, err := ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, asset, data)
	if err != nil {
		return nil, err
	}
	return unpackBig("balanceOf", out)
}

// Asset returns the vault's underlying token.
func (c *Client) Asset(ctx context.Context, chainID *big.Int) (common.Address, error) {
	desc, err := c.ResolveContract(chainID)
	if err != nil {
		return common.Address{}, err
	}
	data, err := ABI.Pack("asset")
	if err != nil {
		return common.Address{}, err
	}
	out, err := c.call(ctx, desc.VaultAddress, data)
	if err != nil {
		return common.Address{}, err
	}
	return unpackAddress("asset", out)
}

// GetStrategyAPY returns the vault APY in percent. There is no on-chain rate
// source yet, so every supported chain reports PlaceholderAPY.
func (c *Client) GetStrategyAPY(_ context.Context, chainID *big.Int) (float64, error) {
	if _, err := c.ResolveContract(chainID); err != nil {
		return 0, err
	}
	return PlaceholderAPY, nil
}

func (c *Client) requireChain(ctx context.Context, required *big.Int) error {
	if c.provider == nil {
		return wallet.ErrWalletUnavailable
	}
	raw, err := c.provider.Request(ctx, wallet.MethodChainID)
	if err != nil {
		return wallet.Classify(err)
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return fmt.Errorf("%w: decode chain id: %v", wallet.ErrProviderError, err)
	}
	active, err := chain.DecodeID(hex)
	if err != nil {
		return fmt.Errorf("%w: %v", wallet.ErrProviderError, err)
	}
	return CheckNetwork(active, required)
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if c.provider == nil {
		return nil, wallet.ErrWalletUnavailable
	}
	raw, err := c.provider.Request(ctx, wallet.MethodCall, wallet.TransactionArgs{
		To:   &to,
		Data: data,
	}, "latest")
	if err != nil {
		return nil, wallet.Classify(err)
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode call result: %v", wallet.ErrProviderError, err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, from, to common.Address, data []byte, kind Kind, amount, chainID *big.Int) (*PendingTransaction, error) {
	raw, err := c.provider.Request(ctx, wallet.MethodSendTransaction, wallet.TransactionArgs{
		From: &from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, wallet.Classify(err)
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return nil, fmt.Errorf("%w: decode tx hash: %v", wallet.ErrProviderError, err)
	}

	c.logger.Info("vault transaction submitted",
		zap.String("kind", string(kind)),
		zap.String("hash", hash.Hex()),
		zap.String("amount", amount.String()),
		zap.String("chain_id", chain.EncodeID(chainID)),
	)
	return &PendingTransaction{
		Hash:     hash,
		Kind:     kind,
		Amount:   new(big.Int).Set(amount),
		ChainID:  new(big.Int).Set(chainID),
		provider: c.provider,
		poll:     c.poll,
		status:   StatusPending,
	}, nil
}

