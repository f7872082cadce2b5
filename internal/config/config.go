// Package config provides file-backed configuration for the swap daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType selects the Monero network the daemon derives addresses for.
type NetworkType string

const (
	NetworkMainnet  NetworkType = "mainnet"
	NetworkStagenet NetworkType = "stagenet"
	NetworkTestnet  NetworkType = "testnet"
)

// Config holds all configuration for the swap daemon.
type Config struct {
	// NetworkType is the Monero network (mainnet, stagenet or testnet).
	NetworkType NetworkType `yaml:"network_type"`

	// EVM settings
	EVM EVMConfig `yaml:"evm"`

	// Monero wallet RPC settings
	Monero MoneroConfig `yaml:"monero"`

	// RPC server settings
	RPC RPCConfig `yaml:"rpc"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// IsTestnet returns true when not running against Monero mainnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType != NetworkMainnet
}

// EVMConfig holds settlement-chain settings.
type EVMConfig struct {
	// Endpoint is the JSON-RPC URL of an EVM node.
	Endpoint string `yaml:"endpoint"`

	// ContractAddress is the deployed settlement contract address.
	ContractAddress string `yaml:"contract_address"`

	// KeyFile is the path to the hex-encoded secp256k1 private key.
	// Relative paths are resolved against the data directory.
	KeyFile string `yaml:"key_file"`

	// ChainID pins the chain id used for transaction signing.
	ChainID int64 `yaml:"chain_id"`

	// ConfirmTimeout bounds how long to wait for a transaction receipt.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// MoneroConfig holds monero-wallet-rpc settings. The wallet RPC process
// must run in --wallet-dir mode so the daemon can switch between the
// funding wallet and the per-swap watch and sweep wallets.
type MoneroConfig struct {
	// WalletRPCURL is the monero-wallet-rpc JSON-RPC endpoint.
	WalletRPCURL string `yaml:"wallet_rpc_url"`

	// WalletFile is the funding wallet's filename inside the wallet dir.
	WalletFile string `yaml:"wallet_file"`

	// WalletPassword is the funding wallet's password.
	WalletPassword string `yaml:"wallet_password"`

	// AccountIndex is the wallet account swaps are funded from.
	AccountIndex uint32 `yaml:"account_index"`
}

// RPCConfig holds the daemon's own JSON-RPC server settings.
type RPCConfig struct {
	// ListenAddr is the host:port the JSON-RPC and WebSocket server binds.
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stdout).
	File string `yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkMainnet,
		EVM: EVMConfig{
			Endpoint:       "http://127.0.0.1:8545",
			KeyFile:        "evm.key",
			ChainID:        1,
			ConfirmTimeout: 5 * time.Minute,
		},
		Monero: MoneroConfig{
			WalletRPCURL: "http://127.0.0.1:18083/json_rpc",
			WalletFile:   "swap-wallet",
			AccountIndex: 0,
		},
		RPC: RPCConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			DataDir: "~/.swapd",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Validate checks the settings a running daemon cannot do without.
func (c *Config) Validate() error {
	switch c.NetworkType {
	case NetworkMainnet, NetworkStagenet, NetworkTestnet:
	default:
		return fmt.Errorf("unknown network type %q", c.NetworkType)
	}
	if c.EVM.Endpoint == "" {
		return fmt.Errorf("evm.endpoint is required")
	}
	if c.EVM.ContractAddress == "" {
		return fmt.Errorf("evm.contract_address is required")
	}
	if c.EVM.KeyFile == "" {
		return fmt.Errorf("evm.key_file is required")
	}
	if c.EVM.ChainID == 0 {
		return fmt.Errorf("evm.chain_id is required")
	}
	if c.Monero.WalletRPCURL == "" {
		return fmt.Errorf("monero.wallet_rpc_url is required")
	}
	if c.Monero.WalletFile == "" {
		return fmt.Errorf("monero.wallet_file is required")
	}
	if c.RPC.ListenAddr == "" {
		return fmt.Errorf("rpc.listen_addr is required")
	}
	return nil
}

// ResolveKeyFile returns the EVM key file path, resolving relative paths
// against the data directory.
func (c *Config) ResolveKeyFile() string {
	if filepath.IsAbs(c.EVM.KeyFile) {
		return c.EVM.KeyFile
	}
	return filepath.Join(ExpandPath(c.Storage.DataDir), c.EVM.KeyFile)
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Swap Daemon Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
