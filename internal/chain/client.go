package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client manages JSON-RPC connections to the EVM chains it knows about.
// Chains are keyed by decimal chain id.
type Client struct {
	chains  map[string]*Descriptor
	clients map[string]*ethclient.Client
	mu      sync.RWMutex
}

// NewClient creates a multi-chain client for every chain in the registry.
func NewClient(reg *Registry) *Client {
	c := &Client{
		chains:  make(map[string]*Descriptor),
		clients: make(map[string]*ethclient.Client),
	}
	if reg != nil {
		for _, d := range reg.Descriptors() {
			c.chains[d.ID.String()] = d
		}
	}
	return c
}

// AddChain adds or overrides a chain. An existing connection is dropped so the
// next call dials the new RPC endpoints.
func (c *Client) AddChain(desc *Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := desc.ID.String()
	c.chains[key] = desc.clone()
	if client, ok := c.clients[key]; ok {
		client.Close()
		delete(c.clients, key)
	}
}

// Descriptor returns the chain configuration for id.
func (c *Client) Descriptor(id *big.Int) (*Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id == nil {
		return nil, fmt.Errorf("%w: unknown chain id", ErrUnsupportedChain)
	}
	d, ok := c.chains[id.String()]
	if !ok {
		return nil, fmt.Errorf("%w: chain id %s", ErrUnsupportedChain, id)
	}
	return d, nil
}

// HasChain reports whether the client can reach id.
func (c *Client) HasChain(id *big.Int) bool {
	_, err := c.Descriptor(id)
	return err == nil
}

// getClient returns an ethclient for the given chain, dialing one if needed.
// Dials run without the lock so a slow endpoint does not hold up other
// chains. When two callers race, the first stored connection wins.
func (c *Client) getClient(id *big.Int) (*ethclient.Client, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: unknown chain id", ErrUnsupportedChain)
	}
	key := id.String()

	c.mu.RLock()
	desc, ok := c.chains[key]
	client, exists := c.clients[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chain id %s", ErrUnsupportedChain, key)
	}
	if exists {
		return client, nil
	}

	client, err := dial(desc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.clients[key]; ok {
		client.Close()
		return existing, nil
	}
	if c.chains[key] != desc {
		// AddChain replaced the endpoints while we were dialing.
		client.Close()
		return nil, fmt.Errorf("%s was reconfigured; retry", desc.Name)
	}
	c.clients[key] = client
	return client, nil
}

// dial connects to the first RPC URL of desc that answers with the expected
// chain id.
func dial(desc *Descriptor) (*ethclient.Client, error) {
	var lastErr error
	for _, rpcURL := range desc.RPCURLs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}

		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		got, err := client.ChainID(ctx)
		cancel()

		if err != nil {
			client.Close()
			lastErr = err
			continue
		}

		if got.Cmp(desc.ID) != 0 {
			client.Close()
			lastErr = fmt.Errorf("chain ID mismatch: expected %s, got %s", desc.ID, got)
			continue
		}
		return client, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no rpc urls configured")
	}
	return nil, fmt.Errorf("failed to connect to %s: %w", desc.Name, lastErr)
}

// GetBalance returns the native token balance for an address on a chain
func (c *Client) GetBalance(ctx context.Context, chainID *big.Int, address common.Address) (*big.Int, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, address, nil)
}

// GetNonce returns the pending nonce for an address
func (c *Client) GetNonce(ctx context.Context, chainID *big.Int, address common.Address) (uint64, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, address)
}

// EstimateGas estimates gas for a transaction
func (c *Client) EstimateGas(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

// SuggestGasPrice returns the suggested legacy gas price
func (c *Client) SuggestGasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

// SuggestGasTipCap returns the suggested gas tip cap for EIP-1559 transactions
func (c *Client) SuggestGasTipCap(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasTipCap(ctx)
}

// SendTransaction broadcasts a signed transaction
func (c *Client) SendTransaction(ctx context.Context, chainID *big.Int, tx *types.Transaction) error {
	client, err := c.getClient(chainID)
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, chainID *big.Int, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}

// CallContract executes a read-only contract call at the latest block
func (c *Client) CallContract(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) ([]byte, error) {
	client, err := c.getClient(chainID)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, nil)
}

// Close closes all client connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[string]*ethclient.Client)
}
