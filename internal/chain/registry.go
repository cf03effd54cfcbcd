package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedChain is returned when a chain id is not in the registry.
var ErrUnsupportedChain = errors.New("unsupported chain")

// NativeCurrency describes the gas token of a chain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Descriptor holds everything needed to talk to a supported chain and to the
// vault deployed on it. Descriptors are values: callers must not mutate the
// slices they hand out.
type Descriptor struct {
	Key            string
	ID             *big.Int
	Name           string // wallet-facing chain name
	DisplayName    string // short name shown in the strategy desk
	NativeCurrency NativeCurrency
	RPCURLs        []string
	ExplorerURLs   []string
	VaultAddress   common.Address
	AssetDecimals  uint8
	IsTestnet      bool
}

// HexID returns the 0x-prefixed chain id used at the wallet boundary.
func (d *Descriptor) HexID() string {
	return EncodeID(d.ID)
}

// ExplorerTxURL returns a link to the transaction on the first explorer.
func (d *Descriptor) ExplorerTxURL(hash common.Hash) string {
	if len(d.ExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimSuffix(d.ExplorerURLs[0], "/") + "/tx/" + hash.Hex()
}

// AddChainParams renders the descriptor as a wallet_addEthereumChain parameter.
func (d *Descriptor) AddChainParams() AddChainParams {
	return AddChainParams{
		ChainID:           d.HexID(),
		ChainName:         d.Name,
		NativeCurrency:    d.NativeCurrency,
		RPCURLs:           append([]string(nil), d.RPCURLs...),
		BlockExplorerURLs: append([]string(nil), d.ExplorerURLs...),
	}
}

func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.ID = new(big.Int).Set(d.ID)
	c.RPCURLs = append([]string(nil), d.RPCURLs...)
	c.ExplorerURLs = append([]string(nil), d.ExplorerURLs...)
	return &c
}

// AddChainParams is the EIP-3085 payload of wallet_addEthereumChain.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// Descriptor converts wallet_addEthereumChain params back into a descriptor.
// Vault fields are left empty; the wallet only needs the network parts.
func (p AddChainParams) Descriptor() (*Descriptor, error) {
	id, err := DecodeID(p.ChainID)
	if err != nil {
		return nil, err
	}
	if len(p.RPCURLs) == 0 {
		return nil, fmt.Errorf("chain %s: at least one rpc url is required", p.ChainID)
	}
	return &Descriptor{
		Key:            id.String(),
		ID:             id,
		Name:           p.ChainName,
		DisplayName:    p.ChainName,
		NativeCurrency: p.NativeCurrency,
		RPCURLs:        append([]string(nil), p.RPCURLs...),
		ExplorerURLs:   append([]string(nil), p.BlockExplorerURLs...),
	}, nil
}

// Well-known chain ids.
var (
	CeloAlfajoresID    = big.NewInt(44787)
	RootstockTestnetID = big.NewInt(31)
	// SagaChainletID is kept as a big.Int end to end; see EncodeID.
	SagaChainletID, _ = new(big.Int).SetString("2743785636557000", 10)
)

// Registry is a fixed, read-only table of the chains the vault is deployed on.
type Registry struct {
	byID  map[string]*Descriptor
	byKey map[string]*Descriptor
	order []string
}

// NewRegistry builds a registry from the given descriptors.
func NewRegistry(descs ...*Descriptor) *Registry {
	r := &Registry{
		byID:  make(map[string]*Descriptor, len(descs)),
		byKey: make(map[string]*Descriptor, len(descs)),
	}
	for _, d := range descs {
		c := d.clone()
		r.byID[c.ID.String()] = c
		r.byKey[c.Key] = c
		r.order = append(r.order, c.Key)
	}
	return r
}

// DefaultRegistry returns the three chains the ID:1 vault is deployed on.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultChains()...)
}

// DefaultChains returns the default chain descriptors
func DefaultChains() []*Descriptor {
	return []*Descriptor{
		{
			Key:         "celo",
			ID:          new(big.Int).Set(CeloAlfajoresID),
			Name:        "Celo Alfajores Testnet",
			DisplayName: "Celo Testnet",
			NativeCurrency: NativeCurrency{
				Name:     "CELO",
				Symbol:   "CELO",
				Decimals: 18,
			},
			RPCURLs:       []string{"https://alfajores-forno.celo-testnet.org/"},
			ExplorerURLs:  []string{"https://alfajores.celoscan.io/"},
			VaultAddress:  common.HexToAddress("0xd4756D307DF8509352F20Bc3A25a7B987F37bdE0"),
			AssetDecimals: 6, // USDC on Alfajores
			IsTestnet:     true,
		},
		{
			Key:         "rootstock",
			ID:          new(big.Int).Set(RootstockTestnetID),
			Name:        "RSK Testnet",
			DisplayName: "Rootstock Testnet",
			NativeCurrency: NativeCurrency{
				Name:     "RSK Bitcoin",
				Symbol:   "tRBTC",
				Decimals: 18,
			},
			RPCURLs:       []string{"https://public-node.testnet.rsk.co"},
			ExplorerURLs:  []string{"https://explorer.testnet.rsk.co"},
			VaultAddress:  common.HexToAddress("0x2E30A7809ACa616751F00FF46A0B4E9761aB71E2"),
			AssetDecimals: 18,
			IsTestnet:     true,
		},
		{
			Key:         "saga",
			ID:          new(big.Int).Set(SagaChainletID),
			Name:        "Saga Chainlet forge-2743785636557000-1",
			DisplayName: "Saga",
			NativeCurrency: NativeCurrency{
				Name:     "SAGA",
				Symbol:   "SAGA",
				Decimals: 18,
			},
			RPCURLs:       []string{"https://forge-2743785636557000-1.jsonrpc.sagarpc.io"},
			ExplorerURLs:  []string{"https://forge-2743785636557000-1.sagaexplorer.io"},
			VaultAddress:  common.HexToAddress("0x814b2fa4018cd54b1BbD8662a8B53FeB4eD24D7D"),
			AssetDecimals: 18,
			IsTestnet:     true,
		},
	}
}

// Lookup returns the descriptor for a chain id.
func (r *Registry) Lookup(id *big.Int) (*Descriptor, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: unknown chain id", ErrUnsupportedChain)
	}
	d, ok := r.byID[id.String()]
	if !ok {
		return nil, fmt.Errorf("%w: chain id %s", ErrUnsupportedChain, id.String())
	}
	return d, nil
}

// LookupKey returns the descriptor for a short key such as "celo". Decimal and
// 0x-prefixed chain ids are accepted as well.
func (r *Registry) LookupKey(key string) (*Descriptor, error) {
	if d, ok := r.byKey[key]; ok {
		return d, nil
	}
	if id, err := ParseID(key); err == nil {
		return r.Lookup(id)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, key)
}

// IsSupported reports whether id is one of the registered chains.
func (r *Registry) IsSupported(id *big.Int) bool {
	if id == nil {
		return false
	}
	_, ok := r.byID[id.String()]
	return ok
}

// Descriptors returns all chains in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Keys returns the sorted chain keys.
func (r *Registry) Keys() []string {
	keys := append([]string(nil), r.order...)
	sort.Strings(keys)
	return keys
}

// WithRPCOverrides returns a copy of the registry where the chains named in
// overrides use the given RPC URLs instead of the defaults.
func (r *Registry) WithRPCOverrides(overrides map[string][]string) *Registry {
	descs := make([]*Descriptor, 0, len(r.order))
	for _, key := range r.order {
		d := r.byKey[key].clone()
		if urls, ok := overrides[key]; ok && len(urls) > 0 {
			d.RPCURLs = append([]string(nil), urls...)
		}
		descs = append(descs, d)
	}
	return NewRegistry(descs...)
}
