package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcNode answers eth_chainId and eth_getBalance. When gate is set every
// request first signals entered and then blocks until gate is closed.
func rpcNode(t *testing.T, id *big.Int, entered chan<- struct{}, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gate != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-gate
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result := "0x0"
		switch req.Method {
		case "eth_chainId":
			result = EncodeID(id)
		case "eth_getBalance":
			result = "0xde0b6b3a7640000"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	return srv
}

func TestClientSlowChainDoesNotBlockOthers(t *testing.T) {
	saga, err := DefaultRegistry().LookupKey("saga")
	require.NoError(t, err)

	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	slow := rpcNode(t, saga.ID, entered, gate)
	fast := rpcNode(t, CeloAlfajoresID, nil, nil)
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	defer fast.Close()
	defer slow.Close()
	defer release()

	c := NewClient(DefaultRegistry().WithRPCOverrides(map[string][]string{
		"saga": {slow.URL},
		"celo": {fast.URL},
	}))
	defer c.Close()

	addr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	sagaDone := make(chan error, 1)
	go func() {
		_, err := c.GetBalance(context.Background(), saga.ID, addr)
		sagaDone <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bal, err := c.GetBalance(ctx, CeloAlfajoresID, addr)
	require.NoError(t, err, "celo is reachable while saga is still dialing")
	assert.Equal(t, "1000000000000000000", bal.String())

	release()
	require.NoError(t, <-sagaDone)
}

func TestClientReusesConnection(t *testing.T) {
	node := rpcNode(t, CeloAlfajoresID, nil, nil)
	defer node.Close()

	c := NewClient(DefaultRegistry().WithRPCOverrides(map[string][]string{"celo": {node.URL}}))
	defer c.Close()

	first, err := c.getClient(CeloAlfajoresID)
	require.NoError(t, err)
	second, err := c.getClient(CeloAlfajoresID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = c.getClient(big.NewInt(1))
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestClientChainIDMismatch(t *testing.T) {
	node := rpcNode(t, RootstockTestnetID, nil, nil)
	defer node.Close()

	c := NewClient(DefaultRegistry().WithRPCOverrides(map[string][]string{"celo": {node.URL}}))
	defer c.Close()

	_, err := c.getClient(CeloAlfajoresID)
	assert.ErrorContains(t, err, "chain ID mismatch")
}
