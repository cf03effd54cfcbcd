package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSigner builds a KeystoreSigner around the test key without touching
// disk, so tests skip the scrypt cost.
func memSigner(t *testing.T) *KeystoreSigner {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)
	return &KeystoreSigner{
		account: accounts.Account{Address: crypto.PubkeyToAddress(key.PublicKey)},
		key:     key,
	}
}

func TestKeystoreSigner_SignTransaction(t *testing.T) {
	t.Run("signs for the given chain", func(t *testing.T) {
		signer := memSigner(t)
		chainID := big.NewInt(44787)

		unsigned := types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     0,
			GasTipCap: big.NewInt(1),
			GasFeeCap: big.NewInt(2),
			Gas:       21000,
			To:        &testAddress,
			Value:     big.NewInt(1000),
		})
		signed, err := signer.SignTransaction(unsigned, chainID)
		require.NoError(t, err)

		from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
		require.NoError(t, err)
		assert.Equal(t, testAddress, from)
	})

	t.Run("signs legacy transactions with replay protection", func(t *testing.T) {
		signer := memSigner(t)
		chainID := big.NewInt(31)

		unsigned := types.NewTransaction(0, testAddress, big.NewInt(1000), 21000, big.NewInt(60000000), nil)
		signed, err := signer.SignTransaction(unsigned, chainID)
		require.NoError(t, err)
		assert.True(t, signed.Protected())
		assert.Equal(t, int64(31), signed.ChainId().Int64())
	})

	t.Run("returns error when locked", func(t *testing.T) {
		signer := memSigner(t)
		signer.Lock()

		unsigned := types.NewTransaction(0, testAddress, big.NewInt(1000), 21000, big.NewInt(1000000000), nil)
		_, err := signer.SignTransaction(unsigned, big.NewInt(1))
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeystoreSigner_SignMessage(t *testing.T) {
	t.Run("signature recovers to the signer", func(t *testing.T) {
		signer := memSigner(t)
		message := []byte("Sign in to ChatDeFi")

		sig, err := signer.SignMessage(message)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.True(t, sig[64] == 27 || sig[64] == 28)

		recoverable := append([]byte(nil), sig...)
		recoverable[64] -= 27
		pub, err := crypto.SigToPub(accounts.TextHash(message), recoverable)
		require.NoError(t, err)
		assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub))
	})

	t.Run("returns error when locked", func(t *testing.T) {
		signer := memSigner(t)
		signer.Lock()

		_, err := signer.SignMessage([]byte("test"))
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeystoreSigner_Lock(t *testing.T) {
	signer := memSigner(t)
	_, err := signer.SignMessage([]byte("test"))
	require.NoError(t, err)

	signer.Lock()
	signer.Lock()

	_, err = signer.SignMessage([]byte("test"))
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Equal(t, testAddress, signer.Address())
}
