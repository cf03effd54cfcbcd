package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer is the interface for signing transactions and messages.
type Signer interface {
	// Address returns the Ethereum address of the signer
	Address() common.Address

	// SignTransaction signs a transaction with the given chain ID
	SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)

	// SignMessage signs an arbitrary message (EIP-191 personal sign)
	SignMessage(message []byte) ([]byte, error)

	// Lock drops key material; later signing calls fail with ErrAccountLocked.
	Lock()
}
