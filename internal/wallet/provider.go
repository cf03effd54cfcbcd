package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Wallet RPC methods understood by the provider.
const (
	MethodRequestAccounts    = "eth_requestAccounts"
	MethodAccounts           = "eth_accounts"
	MethodChainID            = "eth_chainId"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAddChain           = "wallet_addEthereumChain"
	MethodCall               = "eth_call"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodTransactionReceipt = "eth_getTransactionReceipt"
	MethodPersonalSign       = "personal_sign"
)

// Provider events.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

// Provider is an EIP-1193 style wallet: a single request entry point plus
// push notifications. Handlers receive the raw JSON payload of the event
// (an address array for accountsChanged, a hex chain id for chainChanged).
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	On(event string, handler func(payload json.RawMessage)) (unsubscribe func())
}

// EIP-1193 and JSON-RPC error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

var (
	ErrWalletUnavailable = errors.New("wallet unavailable")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrProviderError     = errors.New("provider error")
)

// RPCError is an error reported by the wallet.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// NewRPCError builds an RPCError with a formatted message.
func NewRPCError(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the wallet error code carried by err, or 0.
func ErrorCode(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// IsUnrecognizedChain reports whether err means the wallet does not know the
// chain it was asked to switch to. Some wallets only say so in the message.
func IsUnrecognizedChain(err error) bool {
	if err == nil {
		return false
	}
	if ErrorCode(err) == CodeUnrecognizedChain {
		return true
	}
	return strings.Contains(err.Error(), MethodAddChain)
}

// Classify maps a provider failure onto the wallet error taxonomy. The
// original error stays in the chain so errors.As still finds the RPCError.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrWalletUnavailable),
		errors.Is(err, ErrUserRejected),
		errors.Is(err, ErrProviderError):
		return err
	case ErrorCode(err) == CodeUserRejected:
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderError, err)
	}
}
