package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/auth"
	"github.com/yolodolo42/chatdefi/internal/llm"
	"github.com/yolodolo42/chatdefi/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage LLM provider API keys",
	Long: `Connect, disconnect and manage API keys for the assistant's LLM providers.

Keys are read from the provider's environment variable first, then from
llm.providers.<id>.api_key in the config file, then from <data_dir>/auth.json.`,
}

var authConnectCmd = &cobra.Command{
	Use:   "connect [provider]",
	Short: "Store an API key for a provider",
	Long: `Store an API key for an LLM provider.

Supported providers:
  openai      - OpenAI (OPENAI_API_KEY)
  openrouter  - OpenRouter (OPENROUTER_API_KEY)
  anthropic   - Anthropic (ANTHROPIC_API_KEY)
  gemini      - Google Gemini (GOOGLE_API_KEY)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthConnect,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected providers",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

var authDisconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Remove the stored key of a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDisconnect,
}

var authDefaultCmd = &cobra.Command{
	Use:   "default [provider]",
	Short: "Get or set the default provider",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthDefault,
}

var authTestCmd = &cobra.Command{
	Use:   "test <provider>",
	Short: "Send a short request to check a provider's key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthTest,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authConnectCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authDisconnectCmd)
	authCmd.AddCommand(authDefaultCmd)
	authCmd.AddCommand(authTestCmd)

	authConnectCmd.Flags().String("key", "", "API key (will prompt if not provided)")
}

func authManager() (*auth.Manager, error) {
	return auth.NewManager(cfg.DataDir, viper.GetViper())
}

func parseProvider(s string) (llm.ProviderID, error) {
	id := llm.ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(llm.AllProviderIDs(), id) {
		return "", fmt.Errorf("%w: %s", llm.ErrUnknownProvider, s)
	}
	return id, nil
}

func runAuthConnect(cmd *cobra.Command, args []string) error {
	var (
		id  llm.ProviderID
		err error
	)
	if len(args) == 0 {
		items := make([]ui.SelectorItem, 0, len(llm.AllProviderIDs()))
		for _, p := range llm.AllProviderIDs() {
			items = append(items, ui.SelectorItem{ID: string(p), Label: string(p), Description: llm.EnvVarForProvider(p)})
		}
		choice, err := ui.Pick("Connect which provider?", items)
		if err != nil {
			return err
		}
		id = llm.ProviderID(choice)
	} else if id, err = parseProvider(args[0]); err != nil {
		return err
	}

	manager, err := authManager()
	if err != nil {
		return err
	}

	apiKey, _ := cmd.Flags().GetString("key")
	if apiKey == "" {
		fmt.Printf("Get a key at %s\n", auth.KeyHint(id))
		fmt.Println(ui.HelpStyle.Render(fmt.Sprintf("Tip: you can also set %s", llm.EnvVarForProvider(id))))
		apiKey, err = readPassword(fmt.Sprintf("Enter API key for %s: ", id))
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key is required")
	}

	if err := manager.SetAPIKey(id, apiKey); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	if manager.DefaultProvider() == "" {
		if err := manager.SetDefaultProvider(id); err != nil {
			return err
		}
	}

	fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s Connected to %s", ui.SymbolCheck, id)))
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := authManager()
	if err != nil {
		return err
	}

	connected := manager.Connected()
	if len(connected) == 0 {
		fmt.Println("No providers connected.")
		fmt.Println(ui.HelpStyle.Render("\nUse 'chatdefi auth connect <provider>' or set one of:"))
		for _, id := range llm.AllProviderIDs() {
			fmt.Printf("  %s\n", llm.EnvVarForProvider(id))
		}
		return nil
	}

	chosen, _ := manager.Choose(llm.ProviderID(cfg.LLM.Provider))
	for _, id := range llm.AllProviderIDs() {
		marker := ui.SystemStyle.Render(ui.SymbolEmpty)
		if slices.Contains(connected, id) {
			marker = ui.SuccessStyle.Render(ui.SymbolBullet)
		}
		suffix := ""
		if id == chosen {
			suffix = ui.HelpStyle.Render(" (in use)")
		}
		fmt.Printf("%s %s%s\n", marker, id, suffix)
	}
	return nil
}

func runAuthDisconnect(cmd *cobra.Command, args []string) error {
	id, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	manager, err := authManager()
	if err != nil {
		return err
	}
	if err := manager.RemoveAPIKey(id); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	fmt.Printf("Disconnected from %s\n", id)
	if manager.HasKey(id) {
		fmt.Println(ui.WarningStyle.Render(fmt.Sprintf("A key is still set through %s or the config file.", llm.EnvVarForProvider(id))))
	}
	return nil
}

func runAuthDefault(cmd *cobra.Command, args []string) error {
	manager, err := authManager()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		def := manager.DefaultProvider()
		if def == "" {
			fmt.Println("No default provider set.")
			return nil
		}
		fmt.Printf("Default provider: %s\n", def)
		return nil
	}

	id, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	if err := manager.SetDefaultProvider(id); err != nil {
		return fmt.Errorf("provider %s is not connected; run 'chatdefi auth connect %s': %w", id, id, err)
	}
	fmt.Printf("Default provider set to: %s\n", id)
	return nil
}

func runAuthTest(cmd *cobra.Command, args []string) error {
	id, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	manager, err := authManager()
	if err != nil {
		return err
	}
	key, err := manager.APIKey(id)
	if err != nil {
		return fmt.Errorf("no credentials found for %s", id)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	provider, err := llm.NewProvider(ctx, id, key, "")
	if err != nil {
		return err
	}
	resp, err := ui.Busy(ctx, fmt.Sprintf("Testing %s (%s)", id, provider.DefaultModel()),
		func(ctx context.Context, _ ui.StatusFunc) (*llm.ChatResponse, error) {
			return provider.Chat(ctx, &llm.ChatRequest{
				Messages:  []llm.Message{{Role: "user", Content: "Reply with the single word: ok"}},
				MaxTokens: 8,
			})
		})
	if err != nil {
		return fmt.Errorf("%s rejected the request: %w", id, err)
	}

	fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s %s works (%s...%s)", ui.SymbolCheck, id, key[:min(4, len(key))], key[max(0, len(key)-4):])))
	logger.Debug("auth test reply", zap.String("reply", resp.Content))
	return nil
}
