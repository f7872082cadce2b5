// Package main provides the swapd daemon - the swap coordination node.
package main

import (
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/moneroswap/swapd/internal/config"
	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
	"github.com/moneroswap/swapd/internal/monero"
	"github.com/moneroswap/swapd/internal/rpc"
	"github.com/moneroswap/swapd/internal/storage"
	"github.com/moneroswap/swapd/internal/swap"
	"github.com/moneroswap/swapd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.swapd", "Data directory")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		evmEndpoint = flag.String("evm-endpoint", "", "EVM node JSON-RPC URL, overrides config")
		walletRPC   = flag.String("wallet-rpc", "", "monero-wallet-rpc URL, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("swapd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Load or create config file
	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	cfg.Storage.DataDir = *dataDir
	if *apiAddr != "" {
		cfg.RPC.ListenAddr = *apiAddr
	}
	if *evmEndpoint != "" {
		cfg.EVM.Endpoint = *evmEndpoint
	}
	if *walletRPC != "" {
		cfg.Monero.WalletRPCURL = *walletRPC
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "path", config.ConfigPath(*dataDir), "error", err)
	}

	// Update logging with config level
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	// Initialize storage
	dataPath := config.ExpandPath(cfg.Storage.DataDir)
	store, err := storage.New(&storage.Config{
		DataDir: dataPath,
	})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", dataPath)

	// Connect to the EVM node and load the funding key
	ethClient, err := ethclient.Dial(cfg.EVM.Endpoint)
	if err != nil {
		log.Fatal("Failed to connect to EVM node", "endpoint", cfg.EVM.Endpoint, "error", err)
	}
	defer ethClient.Close()

	key, err := ethcrypto.LoadECDSA(cfg.ResolveKeyFile())
	if err != nil {
		log.Fatal("Failed to load EVM key", "path", cfg.ResolveKeyFile(), "error", err)
	}

	evmClient, err := swapevm.NewClient(&swapevm.Config{
		EthClient:       ethClient,
		ContractAddress: common.HexToAddress(cfg.EVM.ContractAddress),
		PrivateKey:      key,
		ChainID:         big.NewInt(cfg.EVM.ChainID),
		ConfirmTimeout:  cfg.EVM.ConfirmTimeout,
	})
	if err != nil {
		log.Fatal("Failed to create settlement client", "error", err)
	}
	log.Info("Settlement client initialized",
		"contract", cfg.EVM.ContractAddress, "chain_id", cfg.EVM.ChainID, "account", evmClient.Address().Hex())

	// Monero wallet RPC client
	xmrClient := monero.NewClient(&monero.Config{
		RPCURL:         cfg.Monero.WalletRPCURL,
		WalletFile:     cfg.Monero.WalletFile,
		WalletPassword: cfg.Monero.WalletPassword,
	})
	log.Info("Monero wallet client initialized", "url", cfg.Monero.WalletRPCURL)

	// The RPC server is created after the controller but referenced by its
	// notify callback; events only fire once everything is running.
	var rpcServer *rpc.Server

	controller, err := swap.NewController(&swap.Config{
		Store:        swap.NewStore(),
		EVM:          evmClient,
		XMR:          xmrClient,
		Network:      moneroNetwork(cfg.NetworkType),
		AccountIndex: cfg.Monero.AccountIndex,
		Recorder:     store,
		Notify: func(e swap.Event) {
			if rpcServer != nil {
				if hub := rpcServer.Hub(); hub != nil {
					hub.BroadcastSwapEvent(e)
				}
			}
		},
	})
	if err != nil {
		log.Fatal("Failed to create swap controller", "error", err)
	}
	log.Info("Swap controller initialized")

	// Reload unfinished swaps from the database on startup
	if n, err := recoverSwaps(controller, store); err != nil {
		log.Warn("Failed to load unfinished swaps", "error", err)
	} else if n > 0 {
		log.Info("Unfinished swaps loaded from database", "count", n)
	}

	// Start RPC server
	rpcServer = rpc.NewServer(controller)
	if err := rpcServer.Start(cfg.RPC.ListenAddr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg, evmClient.Address().Hex())

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

// recoverSwaps loads every swap that has not reached a terminal state back
// into the controller's in-memory store.
func recoverSwaps(controller *swap.Controller, store *storage.Storage) (int, error) {
	swaps, err := store.UnfinishedSwaps()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, s := range swaps {
		if err := controller.Restore(s); err != nil {
			logging.Warn("Skipping unrecoverable swap", "swap_id", s.IDHex(), "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

func moneroNetwork(t config.NetworkType) mcrypto.Network {
	switch t {
	case config.NetworkStagenet:
		return mcrypto.Stagenet
	case config.NetworkTestnet:
		return mcrypto.Testnet
	default:
		return mcrypto.Mainnet
	}
}

func printBanner(log *logging.Logger, cfg *config.Config, evmAccount string) {
	networkLabel := string(cfg.NetworkType)

	log.Info("")
	log.Info("=================================================")
	log.Infof("  Swap Daemon (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  EVM account: %s", evmAccount)
	log.Infof("  Contract:    %s", cfg.EVM.ContractAddress)
	log.Info("")
	log.Infof("  API: http://%s", cfg.RPC.ListenAddr)
	log.Infof("  WS:  ws://%s/ws", cfg.RPC.ListenAddr)
	log.Info("")
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
