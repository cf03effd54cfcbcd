// Package config loads chatdefi settings from flags, the environment, an
// optional .env file and $HOME/.chatdefi/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yolodolo42/chatdefi/internal/chain"
	"github.com/yolodolo42/chatdefi/internal/llm"
)

const (
	EnvPrefix  = "CHATDEFI"
	DirName    = ".chatdefi"
	fileName   = "config"
	fileType   = "yaml"
	dotEnvName = ".env"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the resolved configuration.
type Config struct {
	Chain   string                 `mapstructure:"chain"`
	DataDir string                 `mapstructure:"data_dir"`
	Log     LogConfig              `mapstructure:"log"`
	LLM     LLMConfig              `mapstructure:"llm"`
	Server  ServerConfig           `mapstructure:"server"`
	Tx      TxConfig               `mapstructure:"tx"`
	Chains  map[string]ChainConfig `mapstructure:"chains"`
	Wallet  WalletConfig           `mapstructure:"wallet"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type TxConfig struct {
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// ChainConfig overrides a built-in chain.
type ChainConfig struct {
	RPCURLs []string `mapstructure:"rpc_urls"`
}

type WalletConfig struct {
	// Account is the keystore address to connect; empty means ask.
	Account string `mapstructure:"account"`
	// KnownChains are the chains the local wallet can switch to without
	// being asked to add them first.
	KnownChains []string `mapstructure:"known_chains"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("chain", "celo")
	v.SetDefault("data_dir", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("llm.provider", string(llm.ProviderOpenAI))
	v.SetDefault("llm.model", "")
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("tx.wait_timeout", "3m")
	v.SetDefault("wallet.account", "")
	v.SetDefault("wallet.known_chains", []string{"celo"})
}

// Dir returns $HOME/.chatdefi.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Init prepares v: defaults, .env files, environment binding and the config
// file. cfgFile wins over the default location. A missing config file is
// not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	dir, err := Dir()
	if err != nil {
		return err
	}

	// .env never overrides variables that are already set.
	for _, path := range []string{dotEnvName, filepath.Join(dir, dotEnvName)} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigName(fileName)
		v.SetConfigType(fileType)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.DataDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	cfg.Chain = strings.ToLower(strings.TrimSpace(cfg.Chain))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	reg := chain.DefaultRegistry()
	if _, err := reg.LookupKey(c.Chain); err != nil {
		return fmt.Errorf("%w: chain: %v", ErrInvalidConfig, err)
	}
	for key := range c.Chains {
		if _, err := reg.LookupKey(key); err != nil {
			return fmt.Errorf("%w: chains.%s: %v", ErrInvalidConfig, key, err)
		}
	}
	for _, key := range c.Wallet.KnownChains {
		if _, err := reg.LookupKey(key); err != nil {
			return fmt.Errorf("%w: wallet.known_chains: %v", ErrInvalidConfig, err)
		}
	}
	if c.Wallet.Account != "" && !common.IsHexAddress(c.Wallet.Account) {
		return fmt.Errorf("%w: wallet.account is not an address: %q", ErrInvalidConfig, c.Wallet.Account)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	if !slices.Contains(llm.AllProviderIDs(), llm.ProviderID(c.LLM.Provider)) {
		return fmt.Errorf("%w: llm.provider: %w", ErrInvalidConfig, llm.ErrUnknownProvider)
	}
	if c.Tx.WaitTimeout <= 0 {
		return fmt.Errorf("%w: tx.wait_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// RPCOverrides returns the chains.<key>.rpc_urls settings keyed by chain.
func (c *Config) RPCOverrides() map[string][]string {
	out := make(map[string][]string, len(c.Chains))
	for key, cc := range c.Chains {
		if len(cc.RPCURLs) > 0 {
			out[key] = cc.RPCURLs
		}
	}
	return out
}

// Registry returns the built-in chains with RPC overrides applied.
func (c *Config) Registry() *chain.Registry {
	return chain.DefaultRegistry().WithRPCOverrides(c.RPCOverrides())
}

// Persist writes key=value back to the config file in use, creating
// $HOME/.chatdefi/config.yaml when there is none yet.
func Persist(v *viper.Viper, key string, value any) error {
	v.Set(key, value)
	if v.ConfigFileUsed() != "" {
		return v.WriteConfig()
	}
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, fileName+"."+fileType)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	v.SetConfigFile(path)
	return nil
}
