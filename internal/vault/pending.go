package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// Kind names what a transaction does.
type Kind string

const (
	KindApprove  Kind = "approve"
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Status is the lifecycle of a submitted transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Receipt is the part of eth_getTransactionReceipt the client reads.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
}

// PendingTransaction is one submitted vault call. It lives only as long as the
// action that created it.
type PendingTransaction struct {
	Hash    common.Hash
	Kind    Kind
	Amount  *big.Int // base units of the vault asset
	ChainID *big.Int

	// Approval is the confirmed approve that preceded a deposit.
	Approval *PendingTransaction

	provider wallet.Provider
	poll     time.Duration

	mu      sync.Mutex
	status  Status
	receipt *Receipt
}

// Status returns the last observed status.
func (p *PendingTransaction) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Receipt returns the receipt once the transaction is mined.
func (p *PendingTransaction) Receipt() *Receipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receipt
}

// Wait polls for the receipt until the transaction is mined or ctx ends.
// A deadline only stops waiting; the transaction itself stays in flight and
// ErrStillPending is returned. A failed deposit that followed an approval is
// reported as a *PartialDepositError.
func (p *PendingTransaction) Wait(ctx context.Context) (*Receipt, error) {
	r, err := p.wait(ctx)
	if err != nil && p.Approval != nil && !errors.Is(err, ErrStillPending) {
		return r, &PartialDepositError{Approval: p.Approval, Err: err}
	}
	return r, err
}

func (p *PendingTransaction) wait(ctx context.Context) (*Receipt, error) {
	if r := p.Receipt(); r != nil {
		return r, p.outcome(r)
	}

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		raw, err := p.provider.Request(ctx, wallet.MethodTransactionReceipt, p.Hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrStillPending, p.Hash.Hex(), ctx.Err())
			}
			return nil, wallet.Classify(err)
		}

		var r *Receipt
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: decode receipt: %v", wallet.ErrProviderError, err)
		}
		if r != nil {
			p.mu.Lock()
			p.receipt = r
			if r.Status == 1 {
				p.status = StatusConfirmed
			} else {
				p.status = StatusFailed
			}
			p.mu.Unlock()
			return r, p.outcome(r)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrStillPending, p.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *PendingTransaction) outcome(r *Receipt) error {
	if r.Status == 1 {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrTransactionFailed, p.Kind, p.Hash.Hex())
}
