package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/tx"
)

// Backend is the node access the wallet needs. *chain.Client implements it.
type Backend interface {
	tx.Backend
	CallContract(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, chainID *big.Int, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, chainID *big.Int, hash common.Hash) (*types.Receipt, error)
	HasChain(id *big.Int) bool
	AddChain(desc *chain.Descriptor)
}

// Keyring lists and unlocks local accounts. *KeystoreManager implements it.
type Keyring interface {
	ListAccounts() []accounts.Account
	Unlock(address common.Address, password string) (Signer, error)
}

// ConnectApproval is the human's answer to a connection request.
type ConnectApproval struct {
	Account  common.Address
	Password string
}

// TransactionRequest is what the human is asked to approve before signing.
type TransactionRequest struct {
	ChainID *big.Int
	Chain   *chain.Descriptor
	From    common.Address
	To      common.Address
	Value   *big.Int
	Data    []byte
	Fees    tx.SuggestedFees
}

// Approver stands in for the wallet's confirmation popups. Returning an error
// wrapping ErrUserRejected reports a 4001 to the caller.
type Approver interface {
	ApproveConnect(ctx context.Context, accounts []common.Address) (ConnectApproval, error)
	ApproveAddChain(ctx context.Context, params chain.AddChainParams) error
	ApproveTransaction(ctx context.Context, req TransactionRequest) error
}

// TransactionArgs is the object taken by eth_call and eth_sendTransaction.
type TransactionArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// SwitchChainParams is the object taken by wallet_switchEthereumChain.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// InjectedOptions configures NewInjected.
type InjectedOptions struct {
	Keyring  Keyring
	Backend  Backend
	Approver Approver
	Logger   *zap.Logger

	// Chains the wallet already knows. Switching to anything else fails with
	// 4902 until it is added.
	Chains      []*chain.Descriptor
	ActiveChain *big.Int
	Policy      tx.Policy
}

// Injected is an in-process wallet speaking the EIP-1193 request/event
// protocol on top of the local keystore.
type Injected struct {
	keyring  Keyring
	backend  Backend
	approver Approver
	logger   *zap.Logger
	policy   tx.Policy
	events   *Emitter

	mu     sync.Mutex
	known  map[string]*chain.Descriptor
	active *big.Int
	signer Signer
}

// NewInjected builds a wallet that starts on opts.ActiveChain.
func NewInjected(opts InjectedOptions) (*Injected, error) {
	if opts.Keyring == nil || opts.Backend == nil || opts.Approver == nil {
		return nil, errors.New("wallet: keyring, backend and approver are required")
	}
	if opts.ActiveChain == nil {
		return nil, errors.New("wallet: active chain is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Injected{
		keyring:  opts.Keyring,
		backend:  opts.Backend,
		approver: opts.Approver,
		logger:   logger,
		policy:   opts.Policy,
		events:   NewEmitter(),
		known:    make(map[string]*chain.Descriptor),
		active:   new(big.Int).Set(opts.ActiveChain),
	}
	for _, d := range opts.Chains {
		w.known[d.ID.String()] = d
	}
	if _, ok := w.known[w.active.String()]; !ok {
		return nil, fmt.Errorf("wallet: active chain %s is not among the known chains", w.active)
	}
	return w, nil
}

// On subscribes to accountsChanged or chainChanged.
func (w *Injected) On(event string, handler func(json.RawMessage)) func() {
	return w.events.On(event, handler)
}

// ActiveChain returns the chain the wallet is currently on.
func (w *Injected) ActiveChain() *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.active)
}

// Knows reports whether the chain has been added to the wallet.
func (w *Injected) Knows(id *big.Int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.known[id.String()]
	return ok
}

// Request dispatches one wallet RPC call.
func (w *Injected) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	w.logger.Debug("wallet request", zap.String("method", method), zap.Int("params", len(params)))

	var (
		result any
		err    error
	)
	switch method {
	case MethodRequestAccounts:
		result, err = w.requestAccounts(ctx)
	case MethodAccounts:
		result = w.accounts()
	case MethodChainID:
		result = chain.EncodeID(w.ActiveChain())
	case MethodSwitchChain:
		err = w.switchChain(params)
	case MethodAddChain:
		err = w.addChain(ctx, params)
	case MethodCall:
		result, err = w.call(ctx, params)
	case MethodSendTransaction:
		result, err = w.sendTransaction(ctx, params)
	case MethodTransactionReceipt:
		result, err = w.receipt(ctx, params)
	case MethodPersonalSign:
		result, err = w.personalSign(params)
	default:
		err = NewRPCError(CodeUnsupportedMethod, "method %s is not supported", method)
	}
	if err != nil {
		w.logger.Debug("wallet request failed", zap.String("method", method), zap.Error(err))
		return nil, err
	}
	return json.Marshal(result)
}

func (w *Injected) accounts() []common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signer == nil {
		return []common.Address{}
	}
	return []common.Address{w.signer.Address()}
}

func (w *Injected) requestAccounts(ctx context.Context) ([]common.Address, error) {
	if accts := w.accounts(); len(accts) > 0 {
		return accts, nil
	}

	var addrs []common.Address
	for _, a := range w.keyring.ListAccounts() {
		addrs = append(addrs, a.Address)
	}
	if len(addrs) == 0 {
		return nil, NewRPCError(CodeUnauthorized, "no accounts in keystore")
	}

	approval, err := w.approver.ApproveConnect(ctx, addrs)
	if err != nil {
		return nil, rejection(err)
	}
	if err := w.SelectAccount(approval.Account, approval.Password); err != nil {
		return nil, err
	}
	return w.accounts(), nil
}

// SelectAccount unlocks address and makes it the connected account,
// notifying accountsChanged subscribers.
func (w *Injected) SelectAccount(address common.Address, password string) error {
	signer, err := w.keyring.Unlock(address, password)
	if err != nil {
		return NewRPCError(CodeUnauthorized, "unlock %s: %v", address.Hex(), err)
	}

	w.mu.Lock()
	prev := w.signer
	w.signer = signer
	w.mu.Unlock()

	if prev != nil && prev != signer {
		prev.Lock()
	}
	w.logger.Info("account connected", zap.String("address", address.Hex()))
	return w.events.Emit(EventAccountsChanged, []common.Address{address})
}

// Lock forgets the connected account and notifies subscribers with an empty
// account list.
func (w *Injected) Lock() {
	w.mu.Lock()
	prev := w.signer
	w.signer = nil
	w.mu.Unlock()

	if prev == nil {
		return
	}
	prev.Lock()
	_ = w.events.Emit(EventAccountsChanged, []common.Address{})
}

func (w *Injected) switchChain(params []any) error {
	var p SwitchChainParams
	if err := decodeParam(params, 0, &p); err != nil {
		return err
	}
	id, err := chain.DecodeID(p.ChainID)
	if err != nil {
		return NewRPCError(CodeInvalidParams, "%v", err)
	}
	if !w.Knows(id) {
		return NewRPCError(CodeUnrecognizedChain,
			"Unrecognized chain ID %q. Try adding the chain using %s first.", p.ChainID, MethodAddChain)
	}
	w.setActive(id)
	return nil
}

func (w *Injected) addChain(ctx context.Context, params []any) error {
	var p chain.AddChainParams
	if err := decodeParam(params, 0, &p); err != nil {
		return err
	}
	desc, err := p.Descriptor()
	if err != nil {
		return NewRPCError(CodeInvalidParams, "%v", err)
	}

	if !w.Knows(desc.ID) {
		if err := w.approver.ApproveAddChain(ctx, p); err != nil {
			return rejection(err)
		}
		w.mu.Lock()
		w.known[desc.ID.String()] = desc
		w.mu.Unlock()
		if !w.backend.HasChain(desc.ID) {
			w.backend.AddChain(desc)
		}
		w.logger.Info("chain added", zap.String("chain_id", p.ChainID), zap.String("name", p.ChainName))
	}

	// Wallets offer to switch right after adding; treat that as accepted.
	w.setActive(desc.ID)
	return nil
}

func (w *Injected) setActive(id *big.Int) {
	w.mu.Lock()
	changed := w.active.Cmp(id) != 0
	if changed {
		w.active = new(big.Int).Set(id)
	}
	w.mu.Unlock()

	if changed {
		w.logger.Info("chain switched", zap.String("chain_id", chain.EncodeID(id)))
		_ = w.events.Emit(EventChainChanged, chain.EncodeID(id))
	}
}

func (w *Injected) call(ctx context.Context, params []any) (hexutil.Bytes, error) {
	var args TransactionArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, err
	}
	if args.To == nil {
		return nil, NewRPCError(CodeInvalidParams, "eth_call requires a to address")
	}

	msg := ethereum.CallMsg{To: args.To, Data: args.Data}
	if args.From != nil {
		msg.From = *args.From
	}
	if args.Value != nil {
		msg.Value = args.Value.ToInt()
	}
	out, err := w.backend.CallContract(ctx, w.ActiveChain(), msg)
	if err != nil {
		return nil, nodeError(err)
	}
	return out, nil
}

func (w *Injected) sendTransaction(ctx context.Context, params []any) (common.Hash, error) {
	var args TransactionArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return common.Hash{}, err
	}
	if args.To == nil {
		return common.Hash{}, NewRPCError(CodeInvalidParams, "contract creation is not supported")
	}

	w.mu.Lock()
	signer := w.signer
	chainID := new(big.Int).Set(w.active)
	desc := w.known[chainID.String()]
	w.mu.Unlock()

	if signer == nil {
		return common.Hash{}, NewRPCError(CodeUnauthorized, "no connected account")
	}
	if args.From != nil && *args.From != signer.Address() {
		return common.Hash{}, NewRPCError(CodeUnauthorized, "account %s is not connected", args.From.Hex())
	}

	intent := tx.Intent{
		ChainID:  chainID,
		From:     signer.Address(),
		To:       *args.To,
		ValueWei: new(big.Int),
		Data:     args.Data,
	}
	if args.Value != nil {
		intent.ValueWei = args.Value.ToInt()
	}
	if args.Gas != nil {
		gas := uint64(*args.Gas)
		intent.GasLimit = &gas
	}
	if err := tx.Validate(intent, w.policy); err != nil {
		return common.Hash{}, NewRPCError(CodeUnauthorized, "%v", err)
	}

	unsigned, fees, err := tx.BuildUnsignedTx(ctx, w.backend, intent)
	if err != nil {
		return common.Hash{}, nodeError(err)
	}

	err = w.approver.ApproveTransaction(ctx, TransactionRequest{
		ChainID: chainID,
		Chain:   desc,
		From:    intent.From,
		To:      intent.To,
		Value:   intent.ValueWei,
		Data:    intent.Data,
		Fees:    fees,
	})
	if err != nil {
		return common.Hash{}, rejection(err)
	}

	signed, err := signer.SignTransaction(unsigned, chainID)
	if err != nil {
		return common.Hash{}, NewRPCError(CodeUnauthorized, "sign: %v", err)
	}
	if err := w.backend.SendTransaction(ctx, chainID, signed); err != nil {
		return common.Hash{}, nodeError(err)
	}

	w.logger.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("chain_id", chain.EncodeID(chainID)),
		zap.String("to", intent.To.Hex()),
	)
	return signed.Hash(), nil
}

func (w *Injected) receipt(ctx context.Context, params []any) (*types.Receipt, error) {
	var hash common.Hash
	if err := decodeParam(params, 0, &hash); err != nil {
		return nil, err
	}
	r, err := w.backend.TransactionReceipt(ctx, w.ActiveChain(), hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, nodeError(err)
	}
	return r, nil
}

func (w *Injected) personalSign(params []any) (hexutil.Bytes, error) {
	var data hexutil.Bytes
	if err := decodeParam(params, 0, &data); err != nil {
		return nil, err
	}

	w.mu.Lock()
	signer := w.signer
	w.mu.Unlock()
	if signer == nil {
		return nil, NewRPCError(CodeUnauthorized, "no connected account")
	}

	sig, err := signer.SignMessage(data)
	if err != nil {
		return nil, NewRPCError(CodeUnauthorized, "sign: %v", err)
	}
	return sig, nil
}

func decodeParam(params []any, i int, dst any) error {
	if i >= len(params) {
		return NewRPCError(CodeInvalidParams, "missing parameter %d", i)
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return NewRPCError(CodeInvalidParams, "parameter %d: %v", i, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewRPCError(CodeInvalidParams, "parameter %d: %v", i, err)
	}
	return nil
}

func rejection(err error) error {
	if errors.Is(err, ErrUserRejected) {
		return NewRPCError(CodeUserRejected, "User rejected the request.")
	}
	return NewRPCError(CodeInternal, "%v", err)
}

func nodeError(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewRPCError(CodeInternal, "%v", err)
}
