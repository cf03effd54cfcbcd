package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yolodolo42/chatdefi/internal/config"
	"github.com/yolodolo42/chatdefi/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Dump(viper.GetViper())
		if err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Println(ui.HelpStyle.Render("# " + used))
		}
		fmt.Println(out)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Validate and save one setting",
	Long: `Validate and save one setting to the config file, e.g.

  chatdefi config set llm.provider anthropic
  chatdefi config set tx.wait_timeout 5m
  chatdefi config set wallet.known_chains celo,saga`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	var value any = args[1]
	if key == "wallet.known_chains" {
		value = strings.Split(args[1], ",")
	}

	v := viper.GetViper()
	v.Set(key, value)
	if _, err := config.Load(v); err != nil {
		return err
	}
	if err := config.Persist(v, key, value); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("%s = %v\n", key, value)
	return nil
}
