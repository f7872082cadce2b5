// Package monero talks to a monero-wallet-rpc daemon over JSON-RPC. It
// covers the calls the swap lifecycle needs: funding the shared lock
// address, watching its balance, and sweeping it once the spend key halves
// can be combined.
package monero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moneroswap/swapd/internal/mcrypto"
	"github.com/moneroswap/swapd/pkg/logging"
)

const defaultRequestTimeout = 5 * time.Minute

var (
	// ErrTransferFailed means the wallet rejected or could not build a
	// transfer.
	ErrTransferFailed = errors.New("monero transfer failed")

	// ErrInsufficientBalance means the wallet's unlocked balance cannot
	// cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient unlocked balance")
)

// Client is a monero-wallet-rpc client. The wallet process owns one active
// wallet file at a time, so all calls that change wallet state are
// serialised behind a single mutex, and every watch or sweep restore
// reopens the funding wallet before releasing it.
type Client struct {
	rpcURL         string
	walletFile     string
	walletPassword string
	httpClient     *http.Client
	log            *logging.Logger
	requestID      atomic.Uint64

	// walletMu guards transfer, sweep, and wallet-file operations.
	walletMu sync.Mutex
}

// Config wires a Client. The wallet RPC process must run in --wallet-dir
// mode; WalletFile names the funding wallet inside that directory.
type Config struct {
	// RPCURL is the wallet RPC endpoint, e.g.
	// "http://127.0.0.1:18083/json_rpc".
	RPCURL string

	// WalletFile is the funding wallet's filename, reopened after every
	// watch-only or sweep restore.
	WalletFile string

	// WalletPassword is the funding wallet's password.
	WalletPassword string

	Logger *logging.Logger
}

// NewClient creates a wallet RPC client.
func NewClient(cfg *Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("monero")
	}
	return &Client{
		rpcURL:         cfg.RPCURL,
		walletFile:     cfg.WalletFile,
		walletPassword: cfg.WalletPassword,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		log: logger,
	}
}

// Balance holds the wallet's total and unlocked balance in piconero.
type Balance struct {
	Total          uint64
	Unlocked       uint64
	BlocksToUnlock uint64
}

// Balance returns the balance of the given account index.
func (c *Client) Balance(ctx context.Context, accountIndex uint32) (*Balance, error) {
	result, err := c.call(ctx, "get_balance", map[string]interface{}{
		"account_index": accountIndex,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Balance         uint64 `json:"balance"`
		UnlockedBalance uint64 `json:"unlocked_balance"`
		BlocksToUnlock  uint64 `json:"blocks_to_unlock"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse get_balance response: %w", err)
	}
	return &Balance{
		Total:          resp.Balance,
		Unlocked:       resp.UnlockedBalance,
		BlocksToUnlock: resp.BlocksToUnlock,
	}, nil
}

// PrimaryAddress returns the wallet's primary address for an account.
func (c *Client) PrimaryAddress(ctx context.Context, accountIndex uint32) (string, error) {
	result, err := c.call(ctx, "get_address", map[string]interface{}{
		"account_index": accountIndex,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("parse get_address response: %w", err)
	}
	return resp.Address, nil
}

// TransferResult describes a confirmed-enough outgoing transfer.
type TransferResult struct {
	TxHash string
	TxKey  string
	Amount uint64
	Fee    uint64
}

// Transfer sends amount piconero to the destination address. The unlocked
// balance is checked first so an underfunded wallet fails fast rather than
// burning an RPC round trip on a doomed transfer.
func (c *Client) Transfer(ctx context.Context, accountIndex uint32, dest string, amount uint64) (*TransferResult, error) {
	c.walletMu.Lock()
	defer c.walletMu.Unlock()

	balance, err := c.Balance(ctx, accountIndex)
	if err != nil {
		return nil, err
	}
	if balance.Unlocked < amount {
		return nil, fmt.Errorf("%w: have %d, need %d piconero",
			ErrInsufficientBalance, balance.Unlocked, amount)
	}

	result, err := c.call(ctx, "transfer", map[string]interface{}{
		"destinations": []map[string]interface{}{
			{"address": dest, "amount": amount},
		},
		"account_index": accountIndex,
		"get_tx_key":    true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}

	var resp struct {
		TxHash string `json:"tx_hash"`
		TxKey  string `json:"tx_key"`
		Amount uint64 `json:"amount"`
		Fee    uint64 `json:"fee"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse transfer response: %w", err)
	}

	c.log.Info("monero transfer sent",
		"tx_hash", resp.TxHash, "amount", resp.Amount, "fee", resp.Fee)

	return &TransferResult{
		TxHash: resp.TxHash,
		TxKey:  resp.TxKey,
		Amount: resp.Amount,
		Fee:    resp.Fee,
	}, nil
}

// WatchOnlyBalance restores a view-only wallet for the given address and
// returns its total balance in piconero. Used to confirm a counterparty's
// lock without holding any spend key. The funding wallet is reopened before
// the mutex is released so later transfers sign with the right keys.
func (c *Client) WatchOnlyBalance(ctx context.Context, viewKey *mcrypto.PrivateViewKey, address string) (balance uint64, err error) {
	c.walletMu.Lock()
	defer c.walletMu.Unlock()
	defer func() {
		if rerr := c.reopenFundingWallet(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}()

	walletName := "swap-watch-" + address[:16]

	if _, gerr := c.call(ctx, "generate_from_keys", map[string]interface{}{
		"filename": walletName,
		"address":  address,
		"viewkey":  viewKey.Hex(),
		"password": "",
	}); gerr != nil {
		c.log.Debug("generate_from_keys failed, trying open_wallet",
			"wallet", walletName, "error", gerr)
		if _, oerr := c.call(ctx, "open_wallet", map[string]interface{}{
			"filename": walletName,
			"password": "",
		}); oerr != nil {
			return 0, fmt.Errorf("restore watch wallet: %w", oerr)
		}
	}

	if _, err := c.call(ctx, "refresh", map[string]interface{}{}); err != nil {
		return 0, fmt.Errorf("refresh watch wallet: %w", err)
	}

	result, err := c.call(ctx, "get_balance", map[string]interface{}{
		"account_index": uint32(0),
	})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Balance uint64 `json:"balance"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("parse get_balance response: %w", err)
	}
	return resp.Balance, nil
}

// SweepResult describes a completed sweep of a watched address.
type SweepResult struct {
	TxHashes []string
	Amounts  []uint64
}

// SweepFromKeys restores a wallet from the combined spend key of a shared
// lock address, refreshes it, and sweeps everything to dest. The temporary
// wallet file is named after the address so repeated calls for the same swap
// reuse it instead of colliding. The funding wallet is reopened afterwards;
// if that fails the sweep result still stands, since the funds have moved.
func (c *Client) SweepFromKeys(
	ctx context.Context,
	spendKey *mcrypto.PrivateSpendKey,
	viewKey *mcrypto.PrivateViewKey,
	address string,
	dest string,
) (*SweepResult, error) {
	c.walletMu.Lock()
	defer c.walletMu.Unlock()
	defer func() {
		if rerr := c.reopenFundingWallet(ctx); rerr != nil {
			c.log.Error("failed to reopen funding wallet",
				"wallet", c.walletFile, "error", rerr)
		}
	}()

	walletName := "swap-claim-" + address[:16]

	_, err := c.call(ctx, "generate_from_keys", map[string]interface{}{
		"filename": walletName,
		"address":  address,
		"spendkey": spendKey.Hex(),
		"viewkey":  viewKey.Hex(),
		"password": "",
	})
	if err != nil {
		// Wallet file may survive a previous attempt; fall through to
		// opening it.
		c.log.Debug("generate_from_keys failed, trying open_wallet",
			"wallet", walletName, "error", err)
		if _, err := c.call(ctx, "open_wallet", map[string]interface{}{
			"filename": walletName,
			"password": "",
		}); err != nil {
			return nil, fmt.Errorf("restore sweep wallet: %w", err)
		}
	}

	if _, err := c.call(ctx, "refresh", map[string]interface{}{}); err != nil {
		return nil, fmt.Errorf("refresh sweep wallet: %w", err)
	}

	result, err := c.call(ctx, "sweep_all", map[string]interface{}{
		"address":       dest,
		"account_index": uint32(0),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sweep_all: %s", ErrTransferFailed, err)
	}

	var resp struct {
		TxHashList []string `json:"tx_hash_list"`
		AmountList []uint64 `json:"amount_list"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse sweep_all response: %w", err)
	}
	if len(resp.TxHashList) == 0 {
		return nil, fmt.Errorf("%w: sweep produced no transactions", ErrTransferFailed)
	}

	c.log.Info("swept shared address", "address", address, "txs", len(resp.TxHashList))

	return &SweepResult{
		TxHashes: resp.TxHashList,
		Amounts:  resp.AmountList,
	}, nil
}

// reopenFundingWallet switches the wallet RPC back to the funding wallet
// after a watch or sweep restore. Called with walletMu held.
func (c *Client) reopenFundingWallet(ctx context.Context) error {
	if c.walletFile == "" {
		return nil
	}
	if _, err := c.call(ctx, "open_wallet", map[string]interface{}{
		"filename": c.walletFile,
		"password": c.walletPassword,
	}); err != nil {
		return fmt.Errorf("reopen funding wallet %q: %w", c.walletFile, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse wallet rpc response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("wallet rpc error %d: %s", response.Error.Code, response.Error.Message)
	}
	return response.Result, nil
}
