package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/yolodolo42/chatdefi/internal/config"
	"github.com/yolodolo42/chatdefi/internal/ui"
	"github.com/yolodolo42/chatdefi/internal/wallet"
)

const minPasswordLen = 8

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage keystore accounts",
	Long: `Create, import and list the accounts of the local keystore wallet.

Keys are stored encrypted under <data_dir>/keystore. The wallet asks for the
password when a dashboard command connects.`,
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Args:  cobra.NoArgs,
	RunE:  runWalletCreate,
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an account from a private key",
	Args:  cobra.NoArgs,
	RunE:  runWalletImport,
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keystore accounts",
	Args:  cobra.NoArgs,
	RunE:  runWalletList,
}

var walletUseCmd = &cobra.Command{
	Use:   "use <address>",
	Short: "Connect this account by default",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletUse,
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletListCmd)
	walletCmd.AddCommand(walletUseCmd)

	walletImportCmd.Flags().String("key", "", "Private key to import (hex, with or without 0x prefix)")
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// newPassword asks twice and enforces the minimum length.
func newPassword(prompt string) (string, error) {
	password, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func keystore() (*wallet.KeystoreManager, error) {
	km, err := wallet.NewKeystoreManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}
	return km, nil
}

func runWalletCreate(cmd *cobra.Command, args []string) error {
	km, err := keystore()
	if err != nil {
		return err
	}
	password, err := newPassword("Enter password for new wallet: ")
	if err != nil {
		return err
	}

	account, err := km.CreateAccount(password)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render(ui.SymbolCheck + " Wallet created"))
	fmt.Printf("Address:  %s\n", account.Address.Hex())
	fmt.Printf("Keystore: %s\n", account.URL.Path)
	fmt.Println(ui.WarningStyle.Render("\nBack up your keystore file and remember your password."))
	return nil
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	privateKey, _ := cmd.Flags().GetString("key")
	if privateKey == "" {
		var err error
		privateKey, err = readPassword("Enter private key (hex): ")
		if err != nil {
			return fmt.Errorf("failed to read private key: %w", err)
		}
		privateKey = strings.TrimSpace(privateKey)
	}
	if privateKey == "" {
		return errors.New("private key is required")
	}

	km, err := keystore()
	if err != nil {
		return err
	}
	password, err := newPassword("Enter password to encrypt wallet: ")
	if err != nil {
		return err
	}

	account, err := km.ImportKey(privateKey, password)
	if err != nil {
		return fmt.Errorf("failed to import key: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render(ui.SymbolCheck + " Wallet imported"))
	fmt.Printf("Address:  %s\n", account.Address.Hex())
	fmt.Printf("Keystore: %s\n", account.URL.Path)
	return nil
}

func runWalletList(cmd *cobra.Command, args []string) error {
	km, err := keystore()
	if err != nil {
		return err
	}

	accounts := km.ListAccounts()
	if len(accounts) == 0 {
		fmt.Println("No wallets found.")
		fmt.Println(ui.HelpStyle.Render("Use 'chatdefi wallet create' to create a new wallet."))
		return nil
	}

	current := common.Address{}
	if cfg.Wallet.Account != "" {
		current = common.HexToAddress(cfg.Wallet.Account)
	}
	for _, acc := range accounts {
		marker := ui.SystemStyle.Render(ui.SymbolEmpty)
		if acc.Address == current {
			marker = ui.SuccessStyle.Render(ui.SymbolBullet)
		}
		fmt.Printf("%s %s\n", marker, acc.Address.Hex())
	}
	return nil
}

func runWalletUse(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address: %s", args[0])
	}
	address := common.HexToAddress(args[0])

	km, err := keystore()
	if err != nil {
		return err
	}
	found := false
	for _, acc := range km.ListAccounts() {
		if acc.Address == address {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("account %s is not in the keystore", address.Hex())
	}

	if err := config.Persist(viper.GetViper(), "wallet.account", address.Hex()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Default account set to %s\n", address.Hex())
	return nil
}
