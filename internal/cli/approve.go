package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/ui"
	"github.com/yolodolo42/chatdefi/internal/vault"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// passwordEnv unlocks the keystore without a prompt, for scripts.
const passwordEnv = "CHATDEFI_PASSWORD"

// terminalApprover plays the wallet popup on the terminal.
type terminalApprover struct {
	in        *bufio.Reader
	out       io.Writer
	account   string
	assumeYes bool
	password  func(prompt string) (string, error)
	pick      func(title string, items []ui.SelectorItem) (string, error)
}

func newTerminalApprover(account string, assumeYes bool) *terminalApprover {
	return &terminalApprover{
		in:        bufio.NewReader(os.Stdin),
		out:       os.Stderr,
		account:   account,
		assumeYes: assumeYes,
		password:  readPassword,
		pick:      ui.Pick,
	}
}

func (a *terminalApprover) ApproveConnect(_ context.Context, accounts []common.Address) (wallet.ConnectApproval, error) {
	if len(accounts) == 0 {
		return wallet.ConnectApproval{}, errors.New("no keystore accounts; run 'chatdefi wallet create' or 'chatdefi wallet import'")
	}

	var account common.Address
	switch {
	case a.account != "":
		account = common.HexToAddress(a.account)
		if !slices.Contains(accounts, account) {
			return wallet.ConnectApproval{}, fmt.Errorf("account %s is not in the keystore", account.Hex())
		}
	case len(accounts) == 1:
		account = accounts[0]
	default:
		items := make([]ui.SelectorItem, len(accounts))
		for i, acc := range accounts {
			items[i] = ui.SelectorItem{ID: acc.Hex(), Label: acc.Hex()}
		}
		choice, err := a.pick("Connect which account?", items)
		if err != nil {
			return wallet.ConnectApproval{}, fmt.Errorf("%w: %v", wallet.ErrUserRejected, err)
		}
		account = common.HexToAddress(choice)
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		var err error
		password, err = a.password(fmt.Sprintf("Password for %s: ", account.Hex()))
		if err != nil {
			return wallet.ConnectApproval{}, fmt.Errorf("failed to read password: %w", err)
		}
	}
	return wallet.ConnectApproval{Account: account, Password: password}, nil
}

func (a *terminalApprover) ApproveAddChain(_ context.Context, params chain.AddChainParams) error {
	fmt.Fprintln(a.out, ui.TitleStyle.Render("Add network"))
	a.field("Network", params.ChainName)
	a.field("Chain ID", params.ChainID)
	a.field("Currency", params.NativeCurrency.Symbol)
	a.field("RPC", strings.Join(params.RPCURLs, ", "))
	if len(params.BlockExplorerURLs) > 0 {
		a.field("Explorer", params.BlockExplorerURLs[0])
	}
	return a.confirm("Allow chatdefi to add this network?")
}

func (a *terminalApprover) ApproveTransaction(_ context.Context, req wallet.TransactionRequest) error {
	fmt.Fprintln(a.out, ui.TitleStyle.Render("Confirm transaction"))

	native := chain.NativeCurrency{Symbol: "ETH", Decimals: 18}
	var assetDecimals uint8 = 18
	network := chain.EncodeID(req.ChainID)
	if req.Chain != nil {
		native = req.Chain.NativeCurrency
		network = req.Chain.Name
		if req.Chain.AssetDecimals > 0 {
			assetDecimals = req.Chain.AssetDecimals
		}
	}

	a.field("Network", network)
	a.field("From", req.From.Hex())
	a.field("To", req.To.Hex())
	if call := describeCall(req.Data, assetDecimals); call != "" {
		a.field("Call", call)
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		a.field("Value", chain.FormatBalance(req.Value, native.Decimals)+" "+native.Symbol)
	}
	a.field("Gas limit", fmt.Sprintf("%d", req.Fees.GasLimit))
	if req.Fees.EstimatedCostWei != nil {
		a.field("Max fee", chain.FormatBalance(req.Fees.EstimatedCostWei, native.Decimals)+" "+native.Symbol)
	}
	return a.confirm("Sign and send?")
}

func (a *terminalApprover) field(name, value string) {
	fmt.Fprintf(a.out, "  %s %s\n", ui.SystemStyle.Render(fmt.Sprintf("%-10s", name)), value)
}

func (a *terminalApprover) confirm(question string) error {
	if a.assumeYes {
		return nil
	}
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("%w: %v", wallet.ErrUserRejected, err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return wallet.ErrUserRejected
}

// describeCall renders vault calldata as name(arg, ...). Amounts are shown in
// asset units.
func describeCall(data []byte, decimals uint8) string {
	if len(data) < 4 {
		return ""
	}
	method, err := vault.ABI.MethodById(data[:4])
	if err != nil {
		return fmt.Sprintf("0x%x", data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return method.Name
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case *big.Int:
			parts[i] = chain.FormatUnits(v, decimals)
		case common.Address:
			parts[i] = v.Hex()
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return method.Name + "(" + strings.Join(parts, ", ") + ")"
}
