package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// WalletState is a point-in-time view of the wallet session.
type WalletState struct {
	Account    common.Address
	Connected  bool
	Connecting bool
	LastError  string
}

// Wallet tracks the connected account. Connect while already connected
// returns the current account without prompting the wallet again.
type Wallet struct {
	provider wallet.Provider
	logger   *zap.Logger

	mu          sync.Mutex
	state       WalletState
	observers   observers[WalletState]
	unsubscribe func()
}

// NewWallet mounts a wallet session. A pre-authorized account is restored
// through eth_accounts, and accountsChanged is subscribed for the lifetime of
// the session. A nil provider yields a session that can only report
// ErrWalletUnavailable.
func NewWallet(ctx context.Context, provider wallet.Provider, logger *zap.Logger) *Wallet {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Wallet{provider: provider, logger: logger}
	if provider == nil {
		return w
	}

	w.unsubscribe = provider.On(wallet.EventAccountsChanged, w.handleAccountsChanged)

	raw, err := provider.Request(ctx, wallet.MethodAccounts)
	if err != nil {
		logger.Warn("failed to read accounts", zap.Error(err))
		return w
	}
	if accts, err := parseAccounts(raw); err == nil && len(accts) > 0 {
		w.update(func(s *WalletState) {
			s.Account = accts[0]
			s.Connected = true
		})
	}
	return w
}

// Connect asks the wallet for account access and adopts the first account.
// On failure the account stays unset and LastError carries the message.
func (w *Wallet) Connect(ctx context.Context) (common.Address, error) {
	if w.provider == nil {
		w.update(func(s *WalletState) { s.LastError = "wallet not installed" })
		return common.Address{}, wallet.ErrWalletUnavailable
	}

	w.mu.Lock()
	if w.state.Connected {
		acct := w.state.Account
		w.mu.Unlock()
		return acct, nil
	}
	if w.state.Connecting {
		w.mu.Unlock()
		return common.Address{}, ErrBusy
	}
	w.state.Connecting = true
	w.state.LastError = ""
	snap := w.state
	w.mu.Unlock()
	w.observers.notify(snap)

	acct, err := w.requestAccount(ctx)
	if err != nil {
		w.logger.Warn("wallet connect failed", zap.Error(err))
		w.update(func(s *WalletState) {
			s.Connecting = false
			s.LastError = err.Error()
		})
		return common.Address{}, err
	}

	w.logger.Info("wallet connected", zap.String("account", acct.Hex()))
	w.update(func(s *WalletState) {
		s.Connecting = false
		s.Account = acct
		s.Connected = true
	})
	return acct, nil
}

func (w *Wallet) requestAccount(ctx context.Context) (common.Address, error) {
	raw, err := w.provider.Request(ctx, wallet.MethodRequestAccounts)
	if err != nil {
		return common.Address{}, wallet.Classify(err)
	}
	accts, err := parseAccounts(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", wallet.ErrProviderError, err)
	}
	if len(accts) == 0 {
		return common.Address{}, fmt.Errorf("%w: wallet returned no accounts", wallet.ErrProviderError)
	}
	return accts[0], nil
}

// Disconnect forgets the account locally. Wallet permissions are untouched.
func (w *Wallet) Disconnect() {
	w.update(func(s *WalletState) {
		s.Account = common.Address{}
		s.Connected = false
	})
}

// Account returns the connected account, if any.
func (w *Wallet) Account() (common.Address, bool) {
	s := w.Snapshot()
	return s.Account, s.Connected
}

// Snapshot returns the current state.
func (w *Wallet) Snapshot() WalletState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// OnChange registers fn to be called after every state change.
func (w *Wallet) OnChange(fn func(WalletState)) func() {
	return w.observers.add(fn)
}

// Close drops the accountsChanged subscription.
func (w *Wallet) Close() {
	w.mu.Lock()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (w *Wallet) handleAccountsChanged(raw json.RawMessage) {
	accts, err := parseAccounts(raw)
	if err != nil {
		w.logger.Warn("ignoring malformed accountsChanged", zap.Error(err))
		return
	}
	if len(accts) == 0 {
		w.logger.Info("wallet reported no accounts; disconnecting")
		w.Disconnect()
		return
	}
	w.update(func(s *WalletState) {
		s.Account = accts[0]
		s.Connected = true
	})
}

func (w *Wallet) update(fn func(*WalletState)) {
	w.mu.Lock()
	prev := w.state
	fn(&w.state)
	next := w.state
	w.mu.Unlock()

	if prev != next {
		w.observers.notify(next)
	}
}

func parseAccounts(raw json.RawMessage) ([]common.Address, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	out := make([]common.Address, 0, len(list))
	for _, a := range list {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("invalid account %q", a)
		}
		out = append(out, common.HexToAddress(a))
	}
	return out, nil
}
