package tx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Intent captures a state-changing transaction the wallet is asked to send.
type Intent struct {
	ChainID     *big.Int       // target chain
	From        common.Address // signer address
	To          common.Address // contract or recipient
	ValueWei    *big.Int       // native value
	Data        []byte         // calldata
	Nonce       *uint64        // optional override
	GasLimit    *uint64        // optional override
	MaxFeePerG  *big.Int       // optional override
	MaxPriority *big.Int       // optional override
}

// Backend is the slice of the chain client the builder needs.
type Backend interface {
	GetNonce(ctx context.Context, chainID *big.Int, address common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context, chainID *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) (uint64, error)
}

// Policy enforces safety constraints before sending.
type Policy struct {
	MaxPerTxWei *big.Int
	AllowTo     []common.Address
	DenyTo      []common.Address
}

// SuggestedFees carries gas estimates so the caller can render them.
type SuggestedFees struct {
	GasLimit         uint64
	MaxFeePerGas     *big.Int
	MaxPriorityFee   *big.Int // nil for legacy transactions
	EstimatedCostWei *big.Int
	Legacy           bool
}

// Validate applies simple allow/deny and spend limits.
func Validate(intent Intent, policy Policy) error {
	if intent.ValueWei == nil {
		return fmt.Errorf("value missing")
	}

	for _, a := range policy.DenyTo {
		if a == intent.To {
			return fmt.Errorf("destination denied by policy")
		}
	}
	if len(policy.AllowTo) > 0 {
		allowed := false
		for _, a := range policy.AllowTo {
			if a == intent.To {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("destination not in allowlist")
		}
	}
	if policy.MaxPerTxWei != nil && intent.ValueWei.Cmp(policy.MaxPerTxWei) > 0 {
		return fmt.Errorf("value exceeds max per tx limit")
	}
	return nil
}

// BuildUnsignedTx prepares an unsigned transaction. EIP-1559 fees are used
// when the node supports eth_maxPriorityFeePerGas; nodes that don't (the
// Rootstock testnet among them) get a legacy gas-price transaction instead.
func BuildUnsignedTx(ctx context.Context, b Backend, intent Intent) (*types.Transaction, SuggestedFees, error) {
	if intent.ValueWei == nil {
		return nil, SuggestedFees{}, fmt.Errorf("value missing")
	}
	if intent.ChainID == nil {
		return nil, SuggestedFees{}, fmt.Errorf("chain id missing")
	}

	var nonce uint64
	if intent.Nonce != nil {
		nonce = *intent.Nonce
	} else {
		n, err := b.GetNonce(ctx, intent.ChainID, intent.From)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("get nonce: %w", err)
		}
		nonce = n
	}

	maxFee := intent.MaxFeePerG
	maxPrio := intent.MaxPriority
	legacy := false
	if maxFee == nil || maxPrio == nil {
		fee, err := b.SuggestGasPrice(ctx, intent.ChainID)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("suggest gas price: %w", err)
		}
		if maxFee == nil {
			maxFee = fee
		}
		if maxPrio == nil {
			tip, err := b.SuggestGasTipCap(ctx, intent.ChainID)
			if err != nil {
				legacy = true
			} else {
				maxPrio = tip
			}
		}
	}
	if maxPrio != nil && maxPrio.Cmp(maxFee) > 0 {
		maxPrio = new(big.Int).Set(maxFee)
	}

	var gasLimit uint64
	if intent.GasLimit != nil {
		gasLimit = *intent.GasLimit
	} else {
		call := ethereum.CallMsg{
			From:  intent.From,
			To:    &intent.To,
			Value: intent.ValueWei,
			Data:  intent.Data,
		}
		if legacy {
			call.GasPrice = maxFee
		} else {
			call.GasFeeCap = maxFee
			call.GasTipCap = maxPrio
		}
		gl, err := b.EstimateGas(ctx, intent.ChainID, call)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = gl
	}

	var tx *types.Transaction
	if legacy {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: maxFee,
			Gas:      gasLimit,
			To:       &intent.To,
			Value:    intent.ValueWei,
			Data:     intent.Data,
		})
		maxPrio = nil
	} else {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   intent.ChainID,
			Nonce:     nonce,
			GasTipCap: maxPrio,
			GasFeeCap: maxFee,
			Gas:       gasLimit,
			To:        &intent.To,
			Value:     intent.ValueWei,
			Data:      intent.Data,
		})
	}

	total := new(big.Int).Mul(maxFee, new(big.Int).SetUint64(gasLimit))
	total.Add(total, intent.ValueWei)

	return tx, SuggestedFees{
		GasLimit:         gasLimit,
		MaxFeePerGas:     maxFee,
		MaxPriorityFee:   maxPrio,
		EstimatedCostWei: total,
		Legacy:           legacy,
	}, nil
}
