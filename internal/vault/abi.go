package vault

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// The ERC-4626 surface the dashboard uses. The vault share token and its
// underlying asset share the ERC-20 part.
const vaultABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"asset","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"convertToAssets","stateMutability":"view",
   "inputs":[{"name":"shares","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"deposit","stateMutability":"nonpayable",
   "inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],
   "outputs":[{"name":"shares","type":"uint256"}]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],
   "outputs":[{"name":"shares","type":"uint256"}]},
  {"type":"event","name":"Deposit","anonymous":false,
   "inputs":[{"name":"sender","type":"address","indexed":true},
             {"name":"owner","type":"address","indexed":true},
             {"name":"assets","type":"uint256","indexed":false},
             {"name":"shares","type":"uint256","indexed":false}]},
  {"type":"event","name":"Withdraw","anonymous":false,
   "inputs":[{"name":"sender","type":"address","indexed":true},
             {"name":"receiver","type":"address","indexed":true},
             {"name":"owner","type":"address","indexed":true},
             {"name":"assets","type":"uint256","indexed":false},
             {"name":"shares","type":"uint256","indexed":false}]}
]`

// ABI is the parsed vault interface.
var ABI = mustParseABI(vaultABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("vault: parse abi: %v", err))
	}
	return parsed
}

func unpackBig(method string, data []byte) (*big.Int, error) {
	out, err := ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected %T", method, out[0])
	}
	return v, nil
}

func unpackAddress(method string, data []byte) (common.Address, error) {
	out, err := ABI.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode %s: unexpected %T", method, out[0])
	}
	return v, nil
}
