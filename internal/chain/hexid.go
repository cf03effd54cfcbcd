package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EncodeID renders a chain id as the 0x-prefixed hex string wallets expect.
// All ids go through math/big so chainlet ids beyond 2^53 keep every bit.
func EncodeID(id *big.Int) string {
	if id == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(id)
}

// DecodeID parses a 0x-prefixed hex chain id.
func DecodeID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || (s[:2] != "0x" && s[:2] != "0X") {
		return nil, fmt.Errorf("invalid chain id %q: missing 0x prefix", s)
	}
	id, ok := new(big.Int).SetString(s[2:], 16)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

// ParseID accepts either a hex (0x...) or a decimal chain id.
func ParseID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return DecodeID(s)
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}
