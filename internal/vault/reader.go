package vault

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatdefi/internal/chain"
)

// Caller runs eth_call against a named chain. *chain.Client implements it.
type Caller interface {
	CallContract(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) ([]byte, error)
}

// Reader reads vault positions straight from each chain's RPC endpoint,
// without going through the wallet, so several chains can be read at once.
type Reader struct {
	caller   Caller
	registry *chain.Registry
}

func NewReader(caller Caller, registry *chain.Registry) *Reader {
	return &Reader{caller: caller, registry: registry}
}

// UserAssets returns the account's position on chainID in asset base units.
func (r *Reader) UserAssets(ctx context.Context, account common.Address, chainID *big.Int) (*big.Int, error) {
	desc, err := r.registry.Lookup(chainID)
	if err != nil {
		return nil, err
	}
	shares, err := r.callUint(ctx, desc.ID, desc.VaultAddress, "balanceOf", account)
	if err != nil || shares.Sign() == 0 {
		return shares, err
	}
	return r.callUint(ctx, desc.ID, desc.VaultAddress, "convertToAssets", shares)
}

func (r *Reader) callUint(ctx context.Context, chainID *big.Int, to common.Address, method string, args ...any) (*big.Int, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := r.caller.CallContract(ctx, chainID, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, err
	}
	return unpackBig(method, out)
}
