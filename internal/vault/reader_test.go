package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatdefi/internal/chain"
)

type callerFunc func(chainID *big.Int, msg ethereum.CallMsg) ([]byte, error)

func (f callerFunc) CallContract(_ context.Context, chainID *big.Int, msg ethereum.CallMsg) ([]byte, error) {
	return f(chainID, msg)
}

func TestReaderUserAssets(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	reg := chain.DefaultRegistry()

	var seen []string
	caller := callerFunc(func(chainID *big.Int, msg ethereum.CallMsg) ([]byte, error) {
		assert.Equal(t, chain.RootstockTestnetID, chainID)
		m, err := ABI.MethodById(msg.Data[:4])
		require.NoError(t, err)
		seen = append(seen, m.Name)
		switch m.Name {
		case "balanceOf":
			return m.Outputs.Pack(big.NewInt(100))
		case "convertToAssets":
			args, err := m.Inputs.Unpack(msg.Data[4:])
			require.NoError(t, err)
			assert.Equal(t, big.NewInt(100), args[0])
			return m.Outputs.Pack(big.NewInt(105))
		}
		return nil, errors.New("unexpected call")
	})

	got, err := NewReader(caller, reg).UserAssets(context.Background(), account, chain.RootstockTestnetID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(105), got)
	assert.Equal(t, []string{"balanceOf", "convertToAssets"}, seen)
}

func TestReaderZeroShares(t *testing.T) {
	calls := 0
	caller := callerFunc(func(_ *big.Int, msg ethereum.CallMsg) ([]byte, error) {
		calls++
		m, _ := ABI.MethodById(msg.Data[:4])
		return m.Outputs.Pack(big.NewInt(0))
	})
	got, err := NewReader(caller, chain.DefaultRegistry()).UserAssets(context.Background(), common.Address{}, chain.CeloAlfajoresID)
	require.NoError(t, err)
	assert.Zero(t, got.Sign())
	assert.Equal(t, 1, calls)
}

func TestReaderUnsupportedChain(t *testing.T) {
	_, err := NewReader(nil, chain.DefaultRegistry()).UserAssets(context.Background(), common.Address{}, big.NewInt(1))
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
}
