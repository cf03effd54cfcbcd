package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountLocked   = errors.New("account is locked")
	ErrInvalidKey      = errors.New("invalid private key")
)

// KeystoreSigner implements Signer using go-ethereum's encrypted keystore
type KeystoreSigner struct {
	// mu keeps signing from racing with Lock, which zeros the key.
	mu      sync.RWMutex
	account accounts.Account
	key     *ecdsa.PrivateKey // nil when locked
}

// KeystoreManager manages the keystore directory and accounts
type KeystoreManager struct {
	ks      *keystore.KeyStore
	dataDir string
}

// NewKeystoreManager opens (creating if needed) <dataDir>/keystore.
func NewKeystoreManager(dataDir string) (*KeystoreManager, error) {
	keystoreDir := filepath.Join(dataDir, "keystore")
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	ks := keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	return &KeystoreManager{
		ks:      ks,
		dataDir: dataDir,
	}, nil
}

// Dir returns the keystore directory.
func (km *KeystoreManager) Dir() string {
	return filepath.Join(km.dataDir, "keystore")
}

// CreateAccount creates a new account with the given password
func (km *KeystoreManager) CreateAccount(password string) (accounts.Account, error) {
	return km.ks.NewAccount(password)
}

// ImportKey imports a hex private key and encrypts it with the password
func (km *KeystoreManager) ImportKey(privateKeyHex string, password string) (accounts.Account, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return km.ks.ImportECDSA(privateKey, password)
}

// ListAccounts returns all accounts in the keystore
func (km *KeystoreManager) ListAccounts() []accounts.Account {
	return km.ks.Accounts()
}

// Unlock decrypts the key for address and returns a signer holding it.
func (km *KeystoreManager) Unlock(address common.Address, password string) (Signer, error) {
	return km.GetSigner(address, password)
}

// GetSigner returns a keystore signer for the given address
func (km *KeystoreManager) GetSigner(address common.Address, password string) (*KeystoreSigner, error) {
	var target *accounts.Account
	for _, acc := range km.ks.Accounts() {
		if acc.Address == address {
			target = &acc
			break
		}
	}
	if target == nil {
		return nil, ErrAccountNotFound
	}

	keyJSON, err := os.ReadFile(target.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock account: %w", err)
	}

	return &KeystoreSigner{
		account: *target,
		key:     key.PrivateKey,
	}, nil
}

// Address returns the address of the signer
func (ks *KeystoreSigner) Address() common.Address {
	return ks.account.Address
}

// SignTransaction signs a transaction
func (ks *KeystoreSigner) SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.key == nil {
		return nil, ErrAccountLocked
	}

	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, ks.key)
}

// SignMessage signs an arbitrary message using EIP-191 personal sign
func (ks *KeystoreSigner) SignMessage(message []byte) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.key == nil {
		return nil, ErrAccountLocked
	}

	sig, err := crypto.Sign(accounts.TextHash(message), ks.key)
	if err != nil {
		return nil, err
	}

	// crypto.Sign yields V in {0,1}; wallets hand out {27,28}.
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Lock zeros the private key. Safe to call multiple times.
func (ks *KeystoreSigner) Lock() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.key != nil {
		ks.key.D.SetInt64(0)
		ks.key = nil
	}
}
