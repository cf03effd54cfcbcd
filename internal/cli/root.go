package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/config"
	"github.com/yolodolo42/chatdefi/internal/logging"
)

var (
	cfgFile   string
	assumeYes bool
	cfg       *config.Config
	logger    = zap.NewNop()

	rootCmd = &cobra.Command{
		Use:   "chatdefi",
		Short: "DeFi yield dashboard with an AI assistant",
		Long: `chatdefi is a terminal dashboard for the ChatDeFi yield vaults.

It connects a local keystore wallet to the ERC-4626 vault deployed on
Celo Alfajores, Rootstock testnet and a Saga chainlet, lists the yield
strategies, and answers DeFi questions through an AI assistant. Every
transaction is shown for confirmation before it is signed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunChat(cmd.Context())
		},
	}
)

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatdefi/config.yaml)")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
	pf.String("account", "", "Keystore account to connect (default: ask, or the only one)")
	pf.BoolVarP(&assumeYes, "yes", "y", false, "Approve wallet prompts without asking")

	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("wallet.account", pf.Lookup("account"))
}

func initConfig() error {
	if err := config.Init(viper.GetViper(), cfgFile); err != nil {
		return err
	}
	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg, logger = c, l
	logger.Debug("config loaded",
		zap.String("file", viper.ConfigFileUsed()),
		zap.String("chain", cfg.Chain),
		zap.String("data_dir", cfg.DataDir))
	return nil
}
